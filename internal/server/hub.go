package server

import (
	"sync"

	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
)

// CaptureEventType is the message type of capture notifications pushed to clients.
const CaptureEventType = "capture_event"

// Client is one connected WebSocket client as seen by the Hub.
type Client struct {
	send   chan<- any
	status chan struct{}
}

// StatusUpdates receives a value whenever the client should get a fresh status.
func (c *Client) StatusUpdates() <-chan struct{} {
	return c.status
}

// TriggerStatus requests a status push without blocking.
func (c *Client) TriggerStatus() {
	select {
	case c.status <- struct{}{}:
	default:
	}
}

// Hub fans capture notifications out to every connected client. It
// implements capture.Listener; all sends are non-blocking so the controller
// is never held up by a slow client. It is safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

// Register adds a client whose messages go to send.
func (h *Hub) Register(send chan<- any) *Client {
	c := &Client{send: send, status: make(chan struct{}, 1)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// Unregister removes c. No message is sent to c after it returns.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Len returns the number of registered clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StateChanged pushes the new state and schedules a status refresh.
func (h *Hub) StateChanged(state types.CaptureState) {
	h.broadcast(types.WSCaptureEvent{Type: CaptureEventType, State: state})
}

// ArtifactReady pushes the finished artifact's metadata.
func (h *Hub) ArtifactReady(info types.ArtifactInfo) {
	h.broadcast(types.WSCaptureEvent{Type: CaptureEventType, Artifact: &info})
}

// CaptureFailed pushes a failure notification.
func (h *Hub) CaptureFailed(kind types.ErrorKind, err error) {
	ev := types.WSCaptureEvent{Type: CaptureEventType, ErrorKind: kind}
	if err != nil {
		ev.Error = err.Error()
	}
	h.broadcast(ev)
}

func (h *Hub) broadcast(msg any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		trySend(c.send, CaptureEventType, msg)
		c.TriggerStatus()
	}
}
