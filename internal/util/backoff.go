package util

import (
	"sync"
	"time"
)

// Backoff spaces out retries of the release check: initial, then twice the
// previous delay, capped at limit. It is safe for concurrent use.
type Backoff struct {
	initial time.Duration
	limit   time.Duration

	mu      sync.Mutex
	attempt int
}

// NewBackoff returns a Backoff starting at initial and never exceeding limit.
func NewBackoff(initial, limit time.Duration) *Backoff {
	return &Backoff{initial: initial, limit: max(initial, limit)}
}

// Next returns the delay before the next retry and counts the attempt.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.initial
	for i := 0; i < b.attempt && delay < b.limit; i++ {
		delay *= 2
	}
	b.attempt++
	return min(delay, b.limit)
}

// Attempts returns how many delays Next has handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}

// Reset starts over from the initial delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempt = 0
	b.mu.Unlock()
}
