// Package device provides the microphone capability used by the capture
// controller: acquiring a live PCM stream, fanning its frames out to
// independent consumers, and releasing it.
package device

import (
	"context"
	"errors"
	"sync"
)

// Sentinel errors for device operations.
var (
	// ErrUnavailable is returned when the input device cannot be opened.
	ErrUnavailable = errors.New("audio input unavailable")

	// ErrUnknownStream is returned when releasing a stream this acquirer did not hand out.
	ErrUnknownStream = errors.New("stream not owned by this acquirer")
)

// Stream is a live microphone stream.
type Stream interface {
	// ID returns the stream's unique identifier.
	ID() string

	// Tracks returns the number of audio tracks carried by the stream.
	Tracks() int

	// Subscribe registers fn to receive every PCM frame in arrival order.
	// Once the returned cancel function returns, fn is never called again.
	Subscribe(fn func(frame []byte)) (cancel func())

	// Done is closed when the stream stops producing frames.
	Done() <-chan struct{}

	// Err reports why the stream ended, or nil while it is live or after a clean end.
	Err() error
}

// Acquirer grants exclusive access to the microphone.
type Acquirer interface {
	// Acquire opens the device. It may block until the device is available.
	Acquire(ctx context.Context) (Stream, error)

	// Release closes a stream returned by Acquire. It is safe to call more than once.
	Release(s Stream) error
}

// Broadcast is an in-memory Stream that delivers published frames to all subscribers.
// A single producer calls Publish; subscribers are invoked synchronously on that goroutine.
type Broadcast struct {
	id     string
	tracks int

	mu     sync.RWMutex // held for reading while delivering
	subs   map[int]func([]byte)
	nextID int

	done    chan struct{}
	endOnce sync.Once
	err     error
}

// NewBroadcast creates a live stream with the given identity.
func NewBroadcast(id string, tracks int) *Broadcast {
	return &Broadcast{
		id:     id,
		tracks: tracks,
		subs:   make(map[int]func([]byte)),
		done:   make(chan struct{}),
	}
}

// ID returns the stream identifier.
func (b *Broadcast) ID() string {
	return b.id
}

// Tracks returns the number of audio tracks.
func (b *Broadcast) Tracks() int {
	return b.tracks
}

// Subscribe registers a frame consumer.
func (b *Broadcast) Subscribe(fn func([]byte)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			// Taking the write lock waits out any delivery in progress.
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers a frame to every subscriber. Frames published after End are dropped.
func (b *Broadcast) Publish(frame []byte) {
	select {
	case <-b.done:
		return
	default:
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.subs {
		fn(frame)
	}
}

// End marks the stream finished. Only the first call has any effect.
func (b *Broadcast) End(err error) {
	b.endOnce.Do(func() {
		b.mu.Lock()
		b.err = err
		b.mu.Unlock()
		close(b.done)
	})
}

// Done is closed once End has been called.
func (b *Broadcast) Done() <-chan struct{} {
	return b.done
}

// Err returns the error passed to End.
func (b *Broadcast) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.err
}
