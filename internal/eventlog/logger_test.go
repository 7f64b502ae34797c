package eventlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := NewLogger(filepath.Join(t.TempDir(), "logs", "events.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestReadLastNewestFirst(t *testing.T) {
	l := newTestLogger(t)

	require.NoError(t, l.LogCapture(CaptureRequested, "s1", nil))
	require.NoError(t, l.LogCapture(CaptureStarted, "s1", nil))
	require.NoError(t, l.LogCapture(CaptureFinalized, "s1", &CaptureDetails{Artifact: "q.webm", SizeBytes: 10}))

	events, hasMore, err := ReadLast(l.Path(), 10, 0, FilterAll)
	require.NoError(t, err)
	require.False(t, hasMore)
	require.Len(t, events, 3)
	require.Equal(t, CaptureFinalized, events[0].Type)
	require.Equal(t, CaptureRequested, events[2].Type)
	require.Equal(t, "s1", events[0].SessionID)
	require.False(t, events[0].Timestamp.IsZero())
}

func TestReadLastPaginationAndFilter(t *testing.T) {
	l := newTestLogger(t)

	for range 3 {
		require.NoError(t, l.LogCapture(CaptureStarted, "s", nil))
		require.NoError(t, l.LogQuery(QueryDispatched, &QueryDetails{Kind: "text", Text: "weather"}))
	}
	require.NoError(t, l.LogCapture(AnalysisError, "s", &CaptureDetails{ErrorKind: "analysis", Error: "closed"}))

	events, hasMore, err := ReadLast(l.Path(), 2, 0, FilterQuery)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.True(t, hasMore)

	events, hasMore, err = ReadLast(l.Path(), 2, 2, FilterQuery)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.False(t, hasMore)

	events, _, err = ReadLast(l.Path(), 10, 0, FilterError)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, AnalysisError, events[0].Type)

	events, _, err = ReadLast(l.Path(), 10, 0, FilterCapture)
	require.NoError(t, err)
	require.Len(t, events, 4)
}

func TestReadLastSkipsMalformedAndMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	events, hasMore, err := ReadLast(path, 10, 0, FilterAll)
	require.NoError(t, err)
	require.Empty(t, events)
	require.False(t, hasMore)

	content := `{"ts":"2026-01-01T00:00:00Z","type":"capture_started"}` + "\nnot json\n" +
		`{"ts":"2026-01-01T00:00:01Z","type":"capture_aborted"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	events, _, err = ReadLast(path, 10, 0, FilterAll)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, CaptureAborted, events[0].Type)

	events, _, err = ReadLast(path, 0, 0, FilterAll)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestLogAfterClose(t *testing.T) {
	l := newTestLogger(t)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	require.ErrorIs(t, l.LogCapture(CaptureStarted, "s", nil), ErrClosed)
}
