package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/oszuidwest/zwfm-voicecapture/internal/audio"
	"github.com/oszuidwest/zwfm-voicecapture/internal/eventlog"
	"github.com/oszuidwest/zwfm-voicecapture/internal/search"
	"github.com/oszuidwest/zwfm-voicecapture/internal/server"
)

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseJSON reads and parses JSON from request body.
// Returns parsed value and true on success, zero value and false on failure.
func parseJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	return v, true
}

// handleAPIStatus returns the same status the WebSocket pushes.
// GET /api/status
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.buildWSStatus())
}

// handleAPIDevices returns available audio devices.
// GET /api/devices
func (s *Server) handleAPIDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"devices": audio.AudioDevices(),
	})
}

// handleAPIStart starts a recording.
// POST /api/capture/start
func (s *Server) handleAPIStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := s.controller.StartRecording(); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.controller.Status())
}

// handleAPIStop stops the recording and waits for its dispatch.
// POST /api/capture/stop
func (s *Server) handleAPIStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := s.controller.StopRecording(); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.controller.Status())
}

// handleAPIQuery dispatches a text query.
// POST /api/query
func (s *Server) handleAPIQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[server.TextQueryRequest](s, w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), server.QueryTimeout)
	defer cancel()

	if err := s.queries.Dispatch(ctx, search.TextQuery(req.Text)); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, search.ErrInvalidQuery) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "dispatched"})
}

// handleAPIEvents returns a page of the event log, newest first.
// GET /api/events?limit=100&offset=0&filter=capture
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.eventLogPath == "" {
		s.writeError(w, http.StatusNotFound, "event log not configured")
		return
	}

	q := r.URL.Query()
	limit := server.DefaultEventLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	offset := 0
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = n
	}
	filter := eventlog.TypeFilter(q.Get("filter"))
	switch filter {
	case eventlog.FilterAll, eventlog.FilterCapture, eventlog.FilterQuery, eventlog.FilterError:
	default:
		s.writeError(w, http.StatusBadRequest, "filter must be one of: capture query error")
		return
	}

	entries, hasMore, err := eventlog.ReadLast(s.eventLogPath, limit, offset, filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"entries":  entries,
		"has_more": hasMore,
	})
}
