package visual

import (
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
)

// Source provides the latest band readings.
type Source interface {
	Sample() (types.Bands, error)
}

// Loop pulls one sample per frame, converts it to bar heights, and publishes them.
// Each tick checks that it is still wanted before reading and reschedules
// itself only at its end, so the loop ends on the first tick after Stop or
// after active reports false.
type Loop struct {
	sched   FrameScheduler
	source  Source
	active  func() bool
	publish func(types.FrequencySnapshot)
	onError func(error)

	mu      sync.Mutex // held for the whole tick; Stop waits on it
	running bool
	gen     uint64
	ticks   uint64
}

// NewLoop creates a stopped loop. active may be nil; onError may be nil.
func NewLoop(sched FrameScheduler, source Source, active func() bool, publish func(types.FrequencySnapshot), onError func(error)) *Loop {
	if active == nil {
		active = func() bool { return true }
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &Loop{
		sched:   sched,
		source:  source,
		active:  active,
		publish: publish,
		onError: onError,
	}
}

// Start schedules the first tick. Calling Start on a running loop has no effect.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.gen++
	gen := l.gen
	l.mu.Unlock()

	l.schedule(gen)
}

// Stop ends the loop. When Stop returns no tick is running and none will read the source again.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
}

// Running reports whether the loop will tick again.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Ticks returns the number of snapshots published since creation.
func (l *Loop) Ticks() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticks
}

func (l *Loop) schedule(gen uint64) {
	l.sched.RequestFrame(func(time.Time) { l.tick(gen) })
}

func (l *Loop) tick(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// A callback left over from an earlier Start belongs to a dead chain.
	if !l.running || gen != l.gen {
		return
	}
	if !l.active() {
		l.running = false
		return
	}

	bands, err := l.source.Sample()
	if err != nil {
		l.running = false
		l.onError(err)
		return
	}

	l.ticks++
	l.publish(Snapshot(bands))
	l.schedule(gen)
}
