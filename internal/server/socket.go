package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
)

// SocketOptions configures a SocketHandler.
type SocketOptions struct {
	Commands         *CommandHandler
	Hub              *Hub
	Status           func() types.WSStatusResponse
	Spectrum         func() types.FrequencySnapshot
	SpectrumInterval time.Duration
	StatusInterval   time.Duration
}

// SocketHandler serves the /ws endpoint: it reads commands and pushes
// status, spectrum and capture events.
type SocketHandler struct {
	opts SocketOptions
}

// NewSocketHandler creates a WebSocket handler.
func NewSocketHandler(opts SocketOptions) *SocketHandler {
	return &SocketHandler{opts: opts}
}

// ServeHTTP upgrades the connection and runs it until the client goes away.
func (s *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}
	s.Serve(conn)
}

// Serve runs a connection. The send channel is never closed: late replies
// from async handlers are dropped once the writer has stopped.
func (s *SocketHandler) Serve(conn WebSocketConn) {
	send := make(chan any, 32)
	done := make(chan struct{})
	quit := make(chan struct{})

	client := s.opts.Hub.Register(send)
	defer s.opts.Hub.Unregister(client)

	go runWriter(conn, send, quit)
	go s.runReader(conn, send, done, client)

	s.runEventLoop(send, done, client)
	close(quit)
}

// runWriter is the sole writer to the connection.
func runWriter(conn WebSocketConn, send <-chan any, quit <-chan struct{}) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for {
		select {
		case msg := <-send:
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-quit:
			return
		}
	}
}

// runReader reads commands from the connection and dispatches them.
func (s *SocketHandler) runReader(conn WebSocketConn, send chan<- any, done chan<- struct{}, client *Client) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.opts.Commands.Handle(cmd, send, client.TriggerStatus)
	}
}

// runEventLoop pushes periodic status and spectrum updates until done closes.
func (s *SocketHandler) runEventLoop(send chan<- any, done <-chan struct{}, client *Client) {
	spectrumTicker := time.NewTicker(s.opts.SpectrumInterval)
	statusTicker := time.NewTicker(s.opts.StatusInterval)
	defer spectrumTicker.Stop()
	defer statusTicker.Stop()

	push := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	if !push(s.opts.Status()) {
		return
	}

	var last types.FrequencySnapshot
	for {
		select {
		case <-done:
			return
		case <-client.StatusUpdates():
			if !push(s.opts.Status()) {
				return
			}
		case <-statusTicker.C:
			if !push(s.opts.Status()) {
				return
			}
		case <-spectrumTicker.C:
			bars := s.opts.Spectrum()
			if bars == last {
				continue
			}
			last = bars
			if !push(types.WSSpectrumResponse{Type: "spectrum", Bars: bars}) {
				return
			}
		}
	}
}
