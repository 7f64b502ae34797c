package recording

import "sync"

// frameQueue hands PCM frames from the stream to the encoder goroutine.
// push never blocks and never drops: a slow encoder grows the queue
// instead of stalling every other subscriber of the stream.
type frameQueue struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	ready  chan struct{} // coalesced wakeup
}

func newFrameQueue() *frameQueue {
	return &frameQueue{ready: make(chan struct{}, 1)}
}

// push appends frame. Frames pushed after close are ignored.
func (q *frameQueue) push(frame []byte) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.frames = append(q.frames, frame)
	q.mu.Unlock()
	q.signal()
}

// close ends the queue. Frames already queued are still returned by next.
func (q *frameQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// next waits for queued frames and returns all of them in order.
// It returns false once the queue is closed and empty.
func (q *frameQueue) next() ([][]byte, bool) {
	for {
		q.mu.Lock()
		if len(q.frames) > 0 {
			batch := q.frames
			q.frames = nil
			q.mu.Unlock()
			return batch, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()
		<-q.ready
	}
}

// pending returns the number of frames waiting for the encoder.
func (q *frameQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

func (q *frameQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
