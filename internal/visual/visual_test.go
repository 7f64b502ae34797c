package visual

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	bands types.Bands
	err   error
	reads int
}

func (f *fakeSource) Sample() (types.Bands, error) {
	f.reads++
	return f.bands, f.err
}

func TestBarHeight(t *testing.T) {
	tests := []struct {
		in   uint8
		want int
	}{
		{0, 3},
		{10, 3},
		{31, 3},
		{32, 3},
		{43, 4},
		{128, 12},
		{200, 18},
		{254, 23},
		{255, 24},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, BarHeight(tt.in), "input %d", tt.in)
	}

	for v := range 256 {
		h := BarHeight(uint8(v))
		require.GreaterOrEqual(t, h, types.MinBarHeight)
		require.LessOrEqual(t, h, types.MaxBarHeight)
	}
}

func TestSnapshotKeepsBandOrder(t *testing.T) {
	var b types.Bands
	for i := range b {
		b[i] = uint8(i * 13)
	}
	s := Snapshot(b)
	for i := range s {
		require.Equal(t, BarHeight(b[i]), s[i])
	}
	require.Equal(t, types.IdleSnapshot(), Snapshot(types.Bands{}))
}

func TestLoopTicksOncePerFrame(t *testing.T) {
	sched := NewManualScheduler(time.Unix(0, 0))
	src := &fakeSource{}
	src.bands[0] = 255

	var got []types.FrequencySnapshot
	l := NewLoop(sched, src, nil, func(s types.FrequencySnapshot) { got = append(got, s) }, nil)

	l.Start()
	l.Start()
	require.Equal(t, 1, sched.Pending())

	for range 3 {
		require.Equal(t, 1, sched.Step())
	}
	require.Len(t, got, 3)
	require.Equal(t, 24, got[0][0])
	require.Equal(t, 3, got[0][1])
	require.EqualValues(t, 3, l.Ticks())
}

func TestLoopStopsWithinOneTick(t *testing.T) {
	sched := NewManualScheduler(time.Unix(0, 0))
	src := &fakeSource{}
	l := NewLoop(sched, src, nil, func(types.FrequencySnapshot) {}, nil)

	l.Start()
	sched.Step()
	l.Stop()

	sched.Step()
	require.Zero(t, sched.Step())
	require.Equal(t, 1, src.reads)
	require.False(t, l.Running())
}

func TestLoopChecksActiveBeforeReading(t *testing.T) {
	sched := NewManualScheduler(time.Unix(0, 0))
	src := &fakeSource{}
	active := true
	l := NewLoop(sched, src, func() bool { return active }, func(types.FrequencySnapshot) {}, nil)

	l.Start()
	sched.Step()
	active = false
	sched.Step()

	require.Equal(t, 1, src.reads)
	require.Zero(t, sched.Pending())
	require.False(t, l.Running())
}

func TestLoopStopsOnSourceError(t *testing.T) {
	sched := NewManualScheduler(time.Unix(0, 0))
	src := &fakeSource{err: errors.New("closed")}

	var reported error
	published := 0
	l := NewLoop(sched, src, nil, func(types.FrequencySnapshot) { published++ }, func(err error) { reported = err })

	l.Start()
	sched.Step()

	require.EqualError(t, reported, "closed")
	require.Zero(t, published)
	require.Zero(t, sched.Pending())
}

func TestLoopRestartDropsStaleChain(t *testing.T) {
	sched := NewManualScheduler(time.Unix(0, 0))
	src := &fakeSource{}
	l := NewLoop(sched, src, nil, func(types.FrequencySnapshot) {}, nil)

	l.Start()
	l.Stop()
	l.Start()
	require.Equal(t, 2, sched.Pending())

	sched.Step()
	require.Equal(t, 1, src.reads)
	require.Equal(t, 1, sched.Pending())
}

func TestTickerSchedulerRunsRequestedFrames(t *testing.T) {
	sched := NewTickerScheduler(200)
	defer sched.Stop()
	require.Equal(t, 5*time.Millisecond, sched.Interval())

	var ran atomic.Int32
	done := make(chan struct{})
	sched.RequestFrame(func(time.Time) {
		ran.Add(1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("frame callback never ran")
	}
	require.EqualValues(t, 1, ran.Load())

	sched.Stop()
	sched.RequestFrame(func(time.Time) { ran.Add(1) })
	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 1, ran.Load())
}
