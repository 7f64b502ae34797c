package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-voicecapture/internal/eventlog"
	"github.com/oszuidwest/zwfm-voicecapture/internal/search"
	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
)

const (
	// DefaultEventLimit is the page size for events/get when no limit is given.
	DefaultEventLimit = 100
	// QueryTimeout bounds a text query dispatch.
	QueryTimeout = 30 * time.Second
)

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Capture is the part of the capture controller driven by clients.
type Capture interface {
	StartRecording() error
	StopRecording() error
	Status() types.CaptureStatus
}

// Settings persists settings changed by clients.
type Settings interface {
	SetAudioInput(input string) error
}

// InputSelector switches the device used by the next recording.
type InputSelector interface {
	SetInput(input string)
}

// Deps holds the collaborators of a CommandHandler.
type Deps struct {
	Capture      Capture
	Queries      search.Dispatcher
	Settings     Settings      // optional
	Input        InputSelector // optional
	EventLogPath string        // empty disables events/get
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	capture      Capture
	queries      search.Dispatcher
	settings     Settings
	input        InputSelector
	eventLogPath string
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(d Deps) *CommandHandler {
	return &CommandHandler{
		capture:      d.Capture,
		queries:      d.Queries,
		settings:     d.Settings,
		input:        d.Input,
		eventLogPath: d.EventLogPath,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "capture/start").
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	namespace, action, _ := strings.Cut(cmd.Type, "/")

	switch namespace {
	case "capture":
		h.handleCapture(action, cmd, send)
	case "query":
		h.handleQuery(action, cmd, send)
	case "events":
		h.handleEvents(action, cmd, send)
	case "audio":
		h.handleAudio(action, cmd, send)
	case "status":
		// Status is pushed after every command.
		slog.Debug("status/get received, status update will be triggered")
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
		SendError(send, cmd.Type, errors.New("unknown command"))
	}

	triggerStatusUpdate()
}

// handleCapture routes capture/* commands.
func (h *CommandHandler) handleCapture(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "start":
		if err := h.capture.StartRecording(); err != nil {
			SendError(send, cmd.Type, err)
			return
		}
		SendSuccess(send, cmd.Type, h.capture.Status())
	case "stop":
		// Stopping waits for finalization and dispatch.
		HandleActionAsync(cmd, send, func() (any, error) {
			if err := h.capture.StopRecording(); err != nil {
				return nil, err
			}
			return h.capture.Status(), nil
		})
	default:
		slog.Warn("unknown capture action", "action", action)
		SendError(send, cmd.Type, errors.New("unknown command"))
	}
}

// handleQuery routes query/* commands.
func (h *CommandHandler) handleQuery(action string, cmd WSCommand, send chan<- any) {
	if action != "text" {
		slog.Warn("unknown query action", "action", action)
		SendError(send, cmd.Type, errors.New("unknown command"))
		return
	}

	var req TextQueryRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}
	HandleActionAsync(cmd, send, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), QueryTimeout)
		defer cancel()
		return nil, h.queries.Dispatch(ctx, search.TextQuery(req.Text))
	})
}

// handleEvents routes events/* commands.
func (h *CommandHandler) handleEvents(action string, cmd WSCommand, send chan<- any) {
	if action != "get" {
		slog.Warn("unknown events action", "action", action)
		SendError(send, cmd.Type, errors.New("unknown command"))
		return
	}

	var req EventsRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}
	if req.Limit == 0 {
		req.Limit = DefaultEventLimit
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in event log handler", "panic", r)
			}
		}()

		result := types.WSEventLogResult{
			Type:    cmd.Type + "_result",
			Success: true,
			Path:    h.eventLogPath,
		}

		if h.eventLogPath == "" {
			result.Success = false
			result.Error = "event log not configured"
		} else {
			entries, hasMore, err := eventlog.ReadLast(h.eventLogPath, req.Limit, req.Offset, eventlog.TypeFilter(req.Filter))
			if err != nil {
				result.Success = false
				result.Error = err.Error()
			} else {
				result.Entries = entries
				result.HasMore = hasMore
			}
		}

		trySend(send, cmd.Type, result)
	}()
}

// handleAudio routes audio/* commands.
func (h *CommandHandler) handleAudio(action string, cmd WSCommand, send chan<- any) {
	if action != "input" {
		slog.Warn("unknown audio action", "action", action)
		SendError(send, cmd.Type, errors.New("unknown command"))
		return
	}

	HandleCommand(cmd, send, func(req *AudioInputRequest) (any, error) {
		slog.Info("audio/input: changing audio input", "input", req.Input)
		if h.settings != nil {
			if err := h.settings.SetAudioInput(req.Input); err != nil {
				return nil, err
			}
		}
		if h.input != nil {
			h.input.SetInput(req.Input)
		}
		return nil, nil
	})
}
