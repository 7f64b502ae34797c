package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oszuidwest/zwfm-voicecapture/internal/eventlog"
	"github.com/oszuidwest/zwfm-voicecapture/internal/search"
	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
	"github.com/stretchr/testify/require"
)

type fakeCapture struct {
	mu     sync.Mutex
	starts int
	stops  int
	err    error
	state  types.CaptureState
}

func (f *fakeCapture) StartRecording() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.err != nil {
		return f.err
	}
	f.state = types.StateRequesting
	return nil
}

func (f *fakeCapture) StopRecording() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.state = types.StateIdle
	return nil
}

func (f *fakeCapture) Status() types.CaptureStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.state
	if state == "" {
		state = types.StateIdle
	}
	return types.CaptureStatus{State: state}
}

type fakeQueries struct {
	mu      sync.Mutex
	queries []search.Query
}

func (f *fakeQueries) Dispatch(_ context.Context, q search.Query) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return nil
}

type fakeSettings struct {
	input  string
	err    error
	picked string
}

func (f *fakeSettings) SetAudioInput(input string) error {
	if f.err != nil {
		return f.err
	}
	f.input = input
	return nil
}

func (f *fakeSettings) SetInput(input string) {
	f.picked = input
}

func recv(t *testing.T, send <-chan any) any {
	t.Helper()
	select {
	case msg := <-send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func run(h *CommandHandler, typ, data string) (chan any, *int) {
	send := make(chan any, 8)
	triggered := 0
	cmd := WSCommand{Type: typ}
	if data != "" {
		cmd.Data = []byte(data)
	}
	h.Handle(cmd, send, func() { triggered++ })
	return send, &triggered
}

func TestCaptureCommands(t *testing.T) {
	capt := &fakeCapture{}
	h := NewCommandHandler(Deps{Capture: capt, Queries: &fakeQueries{}})

	send, triggered := run(h, "capture/start", "")
	res := recv(t, send).(types.WSCommandResult)
	require.True(t, res.Success)
	require.Equal(t, "capture/start_result", res.Type)
	require.Equal(t, types.CaptureStatus{State: types.StateRequesting}, res.Data)
	require.Equal(t, 1, *triggered)

	send, _ = run(h, "capture/stop", "")
	res = recv(t, send).(types.WSCommandResult)
	require.True(t, res.Success)
	require.Equal(t, 1, capt.stops)
}

func TestCaptureStartError(t *testing.T) {
	capt := &fakeCapture{err: errors.New("controller closed")}
	h := NewCommandHandler(Deps{Capture: capt, Queries: &fakeQueries{}})

	send, _ := run(h, "capture/start", "")
	res := recv(t, send).(types.WSCommandResult)
	require.False(t, res.Success)
	require.Equal(t, "controller closed", res.Error)
}

func TestUnknownCommand(t *testing.T) {
	h := NewCommandHandler(Deps{Capture: &fakeCapture{}, Queries: &fakeQueries{}})

	for _, typ := range []string{"outputs/add", "capture/pause", "query/audio", "events/clear", "audio/update"} {
		send, triggered := run(h, typ, "")
		res := recv(t, send).(types.WSCommandResult)
		require.False(t, res.Success, typ)
		require.Equal(t, typ+"_result", res.Type)
		require.Equal(t, 1, *triggered)
	}
}

func TestTextQuery(t *testing.T) {
	queries := &fakeQueries{}
	h := NewCommandHandler(Deps{Capture: &fakeCapture{}, Queries: queries})

	send, _ := run(h, "query/text", `{"text":"  weather tomorrow "}`)
	res := recv(t, send).(types.WSCommandResult)
	require.True(t, res.Success)

	queries.mu.Lock()
	defer queries.mu.Unlock()
	require.Len(t, queries.queries, 1)
	require.Equal(t, "weather tomorrow", queries.queries[0].Text)
	require.Nil(t, queries.queries[0].Artifact)
}

func TestTextQueryValidation(t *testing.T) {
	queries := &fakeQueries{}
	h := NewCommandHandler(Deps{Capture: &fakeCapture{}, Queries: queries})

	send, _ := run(h, "query/text", `{"text":""}`)
	res := recv(t, send).(types.WSCommandResult)
	require.False(t, res.Success)
	verr, ok := res.Error.(*types.ValidationError)
	require.True(t, ok)
	require.Len(t, verr.Errors, 1)
	require.Equal(t, "text", verr.Errors[0].Field)
	require.Equal(t, "is required", verr.Errors[0].Message)

	send, _ = run(h, "query/text", `{"text":`)
	res = recv(t, send).(types.WSCommandResult)
	require.False(t, res.Success)
	require.Contains(t, res.Error, "invalid JSON")
	require.Empty(t, queries.queries)
}

func TestEventsGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	logger, err := eventlog.NewLogger(path)
	require.NoError(t, err)
	require.NoError(t, logger.LogCapture(eventlog.CaptureRequested, "", nil))
	require.NoError(t, logger.LogCapture(eventlog.CaptureError, "s1", &eventlog.CaptureDetails{ErrorKind: "device"}))
	require.NoError(t, logger.LogQuery(eventlog.QueryDispatched, &eventlog.QueryDetails{Kind: "text", Text: "hi"}))
	require.NoError(t, logger.Close())

	h := NewCommandHandler(Deps{Capture: &fakeCapture{}, Queries: &fakeQueries{}, EventLogPath: path})

	send, _ := run(h, "events/get", `{"filter":"capture","limit":1}`)
	res := recv(t, send).(types.WSEventLogResult)
	require.True(t, res.Success)
	require.True(t, res.HasMore)
	entries := res.Entries.([]eventlog.Event)
	require.Len(t, entries, 1)
	require.Equal(t, eventlog.CaptureError, entries[0].Type)

	send, _ = run(h, "events/get", "")
	res = recv(t, send).(types.WSEventLogResult)
	require.True(t, res.Success)
	require.False(t, res.HasMore)
	require.Len(t, res.Entries.([]eventlog.Event), 3)

	send, _ = run(h, "events/get", `{"filter":"outputs"}`)
	cmdRes := recv(t, send).(types.WSCommandResult)
	require.False(t, cmdRes.Success)
}

func TestEventsGetWithoutLog(t *testing.T) {
	h := NewCommandHandler(Deps{Capture: &fakeCapture{}, Queries: &fakeQueries{}})

	send, _ := run(h, "events/get", "")
	res := recv(t, send).(types.WSEventLogResult)
	require.False(t, res.Success)
	require.NotEmpty(t, res.Error)
}

func TestAudioInput(t *testing.T) {
	settings := &fakeSettings{}
	h := NewCommandHandler(Deps{Capture: &fakeCapture{}, Queries: &fakeQueries{}, Settings: settings, Input: settings})

	send, _ := run(h, "audio/input", `{"input":"hw:1,0"}`)
	res := recv(t, send).(types.WSCommandResult)
	require.True(t, res.Success)
	require.Equal(t, "hw:1,0", settings.input)
	require.Equal(t, "hw:1,0", settings.picked)

	settings.err = errors.New("disk full")
	send, _ = run(h, "audio/input", `{"input":"hw:2,0"}`)
	res = recv(t, send).(types.WSCommandResult)
	require.False(t, res.Success)
	require.Equal(t, "hw:1,0", settings.picked)
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	send := make(chan any, 1)
	client := hub.Register(send)
	require.Equal(t, 1, hub.Len())

	hub.StateChanged(types.StateRecording)
	msg := recv(t, send).(types.WSCaptureEvent)
	require.Equal(t, CaptureEventType, msg.Type)
	require.Equal(t, types.StateRecording, msg.State)

	select {
	case <-client.StatusUpdates():
	default:
		t.Fatal("status update not triggered")
	}

	// A full client does not block the broadcaster.
	hub.ArtifactReady(types.ArtifactInfo{Name: "voice-query-x.webm", Size: 3})
	hub.CaptureFailed(types.ErrorDevice, errors.New("denied"))
	msg = recv(t, send).(types.WSCaptureEvent)
	require.Equal(t, "voice-query-x.webm", msg.Artifact.Name)

	hub.Unregister(client)
	require.Equal(t, 0, hub.Len())
	hub.StateChanged(types.StateIdle)
	require.Empty(t, send)
}

func TestTrustedOrigin(t *testing.T) {
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "example.com", true},
		{"http://localhost:3000", "example.com", true},
		{"http://127.0.0.1:8080", "example.com", true},
		{"http://[::1]:8080", "example.com", true},
		{"http://192.168.1.20", "example.com", true},
		{"http://10.0.0.5:8080", "example.com", true},
		{"https://capture.example.com", "capture.example.com:8080", true},
		{"https://evil.example.org", "capture.example.com", false},
		{"http://8.8.8.8", "capture.example.com", false},
		{"://bad", "capture.example.com", false},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Host = tt.host
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		require.Equal(t, tt.want, trustedOrigin(r), tt.origin)
	}
}

func TestSocketRoundTrip(t *testing.T) {
	capt := &fakeCapture{}
	hub := NewHub()
	bars := types.IdleSnapshot()
	handler := NewSocketHandler(SocketOptions{
		Commands: NewCommandHandler(Deps{Capture: capt, Queries: &fakeQueries{}}),
		Hub:      hub,
		Status: func() types.WSStatusResponse {
			return types.WSStatusResponse{Type: "status", Capture: capt.Status()}
		},
		Spectrum:         func() types.FrequencySnapshot { return bars },
		SpectrumInterval: 10 * time.Millisecond,
		StatusInterval:   time.Hour,
	})

	srv := httptest.NewServer(handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	readType := func(want string) map[string]any {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		for {
			var msg map[string]any
			require.NoError(t, conn.ReadJSON(&msg))
			if msg["type"] == want {
				return msg
			}
		}
	}

	status := readType("status")
	require.Equal(t, "idle", status["capture"].(map[string]any)["state"])

	spectrum := readType("spectrum")
	require.Len(t, spectrum["bars"], types.BandCount)

	require.NoError(t, conn.WriteJSON(WSCommand{Type: "capture/start"}))
	result := readType("capture/start_result")
	require.Equal(t, true, result["success"])

	status = readType("status")
	require.Equal(t, "requesting", status["capture"].(map[string]any)["state"])

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)
	hub.StateChanged(types.StateRecording)
	event := readType(CaptureEventType)
	require.Equal(t, "recording", event["state"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestSocketDropsOversizedCommand(t *testing.T) {
	hub := NewHub()
	handler := NewSocketHandler(SocketOptions{
		Commands: NewCommandHandler(Deps{Capture: &fakeCapture{}, Queries: &fakeQueries{}}),
		Hub:      hub,
		Status: func() types.WSStatusResponse {
			return types.WSStatusResponse{Type: "status"}
		},
		Spectrum:         types.IdleSnapshot,
		SpectrumInterval: time.Hour,
		StatusInterval:   time.Hour,
	})

	srv := httptest.NewServer(handler)
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	payload := strings.Repeat("x", maxCommandBytes+1)
	require.NoError(t, conn.WriteJSON(WSCommand{Type: "capture/start", Data: []byte(`"` + payload + `"`)}))

	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}
