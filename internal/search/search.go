// Package search is the single entry point through which spoken and typed
// queries reach the search backend.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/oszuidwest/zwfm-voicecapture/internal/eventlog"
	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
)

// MaxTextLength is the longest accepted text query in bytes.
const MaxTextLength = 512

// Query kinds.
const (
	KindText  = "text"
	KindAudio = "audio"
)

// ErrInvalidQuery is returned for a query that carries neither or both payloads.
var ErrInvalidQuery = errors.New("invalid query")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Query carries exactly one of a text string or a recorded artifact.
type Query struct {
	Text     string          `validate:"required_without=Artifact,excluded_with=Artifact,max=512"`
	Artifact *types.Artifact `validate:"required_without=Text"`
}

// TextQuery wraps a typed query.
func TextQuery(text string) Query {
	return Query{Text: strings.TrimSpace(text)}
}

// AudioQuery wraps a finished recording. The query takes ownership of a.
func AudioQuery(a *types.Artifact) Query {
	return Query{Artifact: a}
}

// Kind returns KindAudio for artifact queries and KindText otherwise.
func (q Query) Kind() string {
	if q.Artifact != nil {
		return KindAudio
	}
	return KindText
}

// Validate checks that exactly one payload is present and well formed.
func (q Query) Validate() error {
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	return nil
}

// Dispatcher delivers a query to the search backend.
type Dispatcher interface {
	Dispatch(ctx context.Context, q Query) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, q Query) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, q Query) error {
	return f(ctx, q)
}

// EventLog records dispatch outcomes.
type EventLog interface {
	LogQuery(eventType eventlog.EventType, details *eventlog.QueryDetails) error
}

// Gateway validates queries, forwards them to a backend, and records the outcome.
// Both text and audio queries pass through Dispatch.
type Gateway struct {
	backend Dispatcher
	events  EventLog

	mu         sync.Mutex
	dispatched int
	failed     int
}

// NewGateway creates a gateway in front of backend. events may be nil.
func NewGateway(backend Dispatcher, events EventLog) *Gateway {
	return &Gateway{backend: backend, events: events}
}

// Dispatch validates q and hands it to the backend.
func (g *Gateway) Dispatch(ctx context.Context, q Query) error {
	details := &eventlog.QueryDetails{Kind: q.Kind()}
	if q.Artifact != nil {
		details.Artifact = q.Artifact.Name
		details.SizeBytes = len(q.Artifact.Content)
	} else {
		details.Text = q.Text
	}

	err := q.Validate()
	if err == nil {
		err = g.backend.Dispatch(ctx, q)
	}

	g.mu.Lock()
	if err != nil {
		g.failed++
	} else {
		g.dispatched++
	}
	g.mu.Unlock()

	if err != nil {
		details.Error = err.Error()
		slog.Warn("query dispatch failed", "kind", details.Kind, "error", err)
		g.record(eventlog.DispatchFailed, details)
		return err
	}

	slog.Info("query dispatched", "kind", details.Kind, "artifact", details.Artifact, "size", details.SizeBytes)
	g.record(eventlog.QueryDispatched, details)
	return nil
}

// Counts returns how many queries were dispatched and how many failed.
func (g *Gateway) Counts() (dispatched, failed int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dispatched, g.failed
}

func (g *Gateway) record(eventType eventlog.EventType, details *eventlog.QueryDetails) {
	if g.events == nil {
		return
	}
	if err := g.events.LogQuery(eventType, details); err != nil {
		slog.Warn("failed to log query event", "error", err)
	}
}

// LogBackend is the backend used when no search service is attached.
// It logs each query and discards it.
type LogBackend struct{}

// Dispatch logs q.
func (LogBackend) Dispatch(_ context.Context, q Query) error {
	if q.Artifact != nil {
		slog.Info("search query received", "kind", KindAudio, "name", q.Artifact.Name, "media_type", q.Artifact.MediaType, "size", len(q.Artifact.Content))
		return nil
	}
	slog.Info("search query received", "kind", KindText, "text", q.Text)
	return nil
}
