package visual

import (
	"sync"
	"time"
)

// FrameScheduler runs callbacks once per display frame.
type FrameScheduler interface {
	// RequestFrame schedules fn to run once on the next frame.
	RequestFrame(fn func(now time.Time))
}

// TickerScheduler runs requested callbacks serially on a single goroutine,
// one batch per tick. A callback requested during a tick runs on the next one.
type TickerScheduler struct {
	interval time.Duration

	mu      sync.Mutex
	pending []func(time.Time)
	started bool

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewTickerScheduler creates a scheduler with the given frame rate.
func NewTickerScheduler(frameRate int) *TickerScheduler {
	return &TickerScheduler{
		interval: time.Second / time.Duration(max(frameRate, 1)),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Interval returns the time between frames.
func (s *TickerScheduler) Interval() time.Duration {
	return s.interval
}

// RequestFrame queues fn for the next tick. The ticker goroutine starts on first use.
func (s *TickerScheduler) RequestFrame(fn func(time.Time)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.stop:
		return
	default:
	}

	s.pending = append(s.pending, fn)
	if !s.started {
		s.started = true
		go s.run()
	}
}

// Stop halts the ticker and drops pending callbacks. It waits for a running tick to finish.
func (s *TickerScheduler) Stop() {
	s.once.Do(func() {
		s.mu.Lock()
		close(s.stop)
		started := s.started
		s.pending = nil
		s.mu.Unlock()

		if started {
			<-s.done
		}
	})
}

func (s *TickerScheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			batch := s.pending
			s.pending = nil
			s.mu.Unlock()

			for _, fn := range batch {
				fn(now)
			}
		}
	}
}

// ManualScheduler runs frames only when Step is called.
type ManualScheduler struct {
	mu      sync.Mutex
	pending []func(time.Time)
	now     time.Time
}

// NewManualScheduler creates a scheduler whose clock starts at start.
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

// RequestFrame queues fn for the next Step.
func (s *ManualScheduler) RequestFrame(fn func(time.Time)) {
	s.mu.Lock()
	s.pending = append(s.pending, fn)
	s.mu.Unlock()
}

// Pending returns the number of callbacks waiting for the next frame.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Step advances the clock by one 60 Hz frame and runs the callbacks queued before the call.
// It returns how many callbacks ran.
func (s *ManualScheduler) Step() int {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.now = s.now.Add(time.Second / 60)
	now := s.now
	s.mu.Unlock()

	for _, fn := range batch {
		fn(now)
	}
	return len(batch)
}
