package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/oszuidwest/zwfm-voicecapture/internal/eventlog"
	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	eventType eventlog.EventType
	details   eventlog.QueryDetails
}

type fakeEventLog struct {
	events []recordedEvent
}

func (f *fakeEventLog) LogQuery(t eventlog.EventType, d *eventlog.QueryDetails) error {
	f.events = append(f.events, recordedEvent{t, *d})
	return nil
}

func artifact(content string) *types.Artifact {
	return &types.Artifact{Content: []byte(content), MediaType: "audio/webm", Name: "voice-query-1.webm"}
}

func TestQueryValidate(t *testing.T) {
	tests := []struct {
		name    string
		query   Query
		wantErr bool
	}{
		{"text", TextQuery("weather tomorrow"), false},
		{"audio", AudioQuery(artifact("ab")), false},
		{"empty", Query{}, true},
		{"blank text", TextQuery("   "), true},
		{"both", Query{Text: "hi", Artifact: artifact("ab")}, true},
		{"too long", TextQuery(strings.Repeat("x", MaxTextLength+1)), true},
		{"empty artifact", AudioQuery(artifact("")), true},
		{"unnamed artifact", AudioQuery(&types.Artifact{Content: []byte("a"), MediaType: "audio/webm"}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidQuery)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestGatewayFunnelsBothKinds(t *testing.T) {
	var got []Query
	backend := DispatcherFunc(func(_ context.Context, q Query) error {
		got = append(got, q)
		return nil
	})
	events := &fakeEventLog{}
	g := NewGateway(backend, events)

	require.NoError(t, g.Dispatch(context.Background(), TextQuery("news")))
	require.NoError(t, g.Dispatch(context.Background(), AudioQuery(artifact("ab"))))

	require.Len(t, got, 2)
	require.Equal(t, KindText, got[0].Kind())
	require.Equal(t, KindAudio, got[1].Kind())
	require.Equal(t, "ab", string(got[1].Artifact.Content))

	dispatched, failed := g.Counts()
	require.Equal(t, 2, dispatched)
	require.Zero(t, failed)

	require.Len(t, events.events, 2)
	require.Equal(t, eventlog.QueryDispatched, events.events[1].eventType)
	require.Equal(t, 2, events.events[1].details.SizeBytes)
}

func TestGatewayRejectsInvalidQueryBeforeBackend(t *testing.T) {
	called := false
	g := NewGateway(DispatcherFunc(func(context.Context, Query) error {
		called = true
		return nil
	}), nil)

	err := g.Dispatch(context.Background(), Query{})
	require.ErrorIs(t, err, ErrInvalidQuery)
	require.False(t, called)

	_, failed := g.Counts()
	require.Equal(t, 1, failed)
}

func TestGatewayRecordsBackendFailure(t *testing.T) {
	boom := errors.New("backend down")
	events := &fakeEventLog{}
	g := NewGateway(DispatcherFunc(func(context.Context, Query) error { return boom }), events)

	require.ErrorIs(t, g.Dispatch(context.Background(), TextQuery("x")), boom)
	require.Len(t, events.events, 1)
	require.Equal(t, eventlog.DispatchFailed, events.events[0].eventType)
	require.Equal(t, "backend down", events.events[0].details.Error)
}

func TestLogBackendAcceptsEverything(t *testing.T) {
	require.NoError(t, LogBackend{}.Dispatch(context.Background(), TextQuery("x")))
	require.NoError(t, LogBackend{}.Dispatch(context.Background(), AudioQuery(artifact("a"))))
}
