package recording

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/oszuidwest/zwfm-voicecapture/internal/device"
	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
)

// SessionState tracks the lifecycle of a Session.
type SessionState string

const (
	// SessionNew indicates the session has not been opened.
	SessionNew SessionState = "new"
	// SessionOpen indicates the session owns a stream and is encoding.
	SessionOpen SessionState = "open"
	// SessionClosed indicates the stream has been released.
	SessionClosed SessionState = "closed"
)

// Session owns one microphone stream and the encoder fed from it.
// Encoded segments are buffered in arrival order and assembled into an
// Artifact on Close. The stream is released exactly once, by Close, Discard,
// or a failed Open.
type Session struct {
	id      string
	enc     Encoder
	release func(device.Stream) error

	mu        sync.Mutex
	state     SessionState
	stream    device.Stream
	cancelTap func()
	observers []func()
	startedAt time.Time

	chunkMu sync.Mutex // guards chunks; taken from the encoder's goroutine
	chunks  [][]byte

	frames          *frameQueue
	aborted         atomic.Bool
	finalizeTimeout time.Duration
	writerDone      chan struct{}
	closing         chan struct{}
	watchDone       chan struct{}

	failed   chan struct{}
	failOnce sync.Once
	failErr  error

	closeOnce sync.Once
	artifact  *types.Artifact
	closeErr  error
}

// NewSession creates a session that encodes with enc and hands its stream
// back through release when it ends.
func NewSession(enc Encoder, release func(device.Stream) error) *Session {
	return &Session{
		id:      ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String(),
		enc:     enc,
		release: release,
		state:   SessionNew,
		closing: make(chan struct{}),
		failed:  make(chan struct{}),

		finalizeTimeout: types.FinalizeTimeout,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// StartedAt returns when Open succeeded, or the zero time.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// State returns the session lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ChunkCount returns the number of encoded segments buffered so far.
func (s *Session) ChunkCount() int {
	s.chunkMu.Lock()
	defer s.chunkMu.Unlock()
	return len(s.chunks)
}

// Open binds the encoder to stream and takes ownership of it.
// On any failure the stream is released before Open returns.
func (s *Session) Open(stream device.Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionNew {
		s.releaseStream(stream)
		return ErrSessionClosed
	}

	if stream.Tracks() == 0 {
		s.state = SessionClosed
		s.releaseStream(stream)
		return ErrNoTracks
	}

	if err := s.enc.Start(s.appendChunk); err != nil {
		s.state = SessionClosed
		s.releaseStream(stream)
		return fmt.Errorf("%w: %w", ErrEncoder, err)
	}

	s.stream = stream
	s.frames = newFrameQueue()
	s.writerDone = make(chan struct{})
	s.watchDone = make(chan struct{})
	s.state = SessionOpen
	s.startedAt = time.Now()

	go s.runWriter()
	go s.watchStream(stream)

	s.cancelTap = stream.Subscribe(s.frames.push)

	slog.Info("recording session opened", "session_id", s.id, "stream_id", stream.ID())
	return nil
}

// Observe attaches a read-only consumer of the session's PCM frames.
// fn must not modify or retain the frames. It is detached before the stream is released.
func (s *Session) Observe(fn func(frame []byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionOpen {
		return ErrSessionClosed
	}
	s.observers = append(s.observers, s.stream.Subscribe(fn))
	return nil
}

// Failed is closed when the stream or the encoder fails while the session is open.
func (s *Session) Failed() <-chan struct{} {
	return s.failed
}

// Err returns the failure that closed Failed, if any.
func (s *Session) Err() error {
	select {
	case <-s.failed:
		return s.failErr
	default:
		return nil
	}
}

// Close stops encoding, releases the stream, and assembles the buffered
// segments into an Artifact. It returns ErrEmptyRecording when nothing was
// encoded. Further calls return the result of the first.
func (s *Session) Close() (*types.Artifact, error) {
	s.closeOnce.Do(func() {
		s.artifact, s.closeErr = s.shutdown(true)
	})
	return s.artifact, s.closeErr
}

// Discard stops encoding and releases the stream without producing an artifact.
func (s *Session) Discard() error {
	var err error
	s.closeOnce.Do(func() {
		_, err = s.shutdown(false)
		s.closeErr = ErrSessionClosed
	})
	return err
}

// shutdown tears the session down in dependency order: observers and the
// encoder tap are detached, queued frames are flushed through the encoder,
// the stream is released, and finally the buffer is assembled.
// Flushing is bounded by finalizeTimeout; past it the encoder is closed
// under the writer and Close reports ErrFinalizeTimeout.
func (s *Session) shutdown(assemble bool) (*types.Artifact, error) {
	s.mu.Lock()
	wasOpen := s.state == SessionOpen
	s.state = SessionClosed
	stream := s.stream
	s.stream = nil
	observers := s.observers
	s.observers = nil
	cancelTap := s.cancelTap
	s.mu.Unlock()

	if !wasOpen {
		if assemble {
			return nil, ErrEmptyRecording
		}
		return nil, nil
	}

	close(s.closing)
	for _, cancel := range observers {
		cancel()
	}
	cancelTap()
	s.frames.close()

	var errs []error
	var encErr error
	timer := time.NewTimer(s.finalizeTimeout)
	defer timer.Stop()
	select {
	case <-s.writerDone:
		encErr = s.enc.Close()
	case <-timer.C:
		slog.Warn("encoder did not drain in time", "session_id", s.id, "queued_frames", s.frames.pending())
		s.aborted.Store(true)
		if err := s.enc.Close(); err != nil {
			slog.Warn("encoder close failed", "session_id", s.id, "error", err)
		}
		timer.Reset(s.finalizeTimeout)
		select {
		case <-s.writerDone:
		case <-timer.C:
			// The stream is released regardless; the writer exits when Write returns.
			slog.Error("encoder write still blocked after close", "session_id", s.id)
		}
		encErr = ErrFinalizeTimeout
	}

	if err := s.release(stream); err != nil {
		errs = append(errs, fmt.Errorf("release stream: %w", err))
	}
	<-s.watchDone

	if !assemble {
		slog.Info("recording session discarded", "session_id", s.id)
		return nil, errors.Join(errs...)
	}
	if len(errs) > 0 {
		slog.Warn("recording session release failed", "session_id", s.id, "error", errors.Join(errs...))
	}

	if errors.Is(encErr, ErrFinalizeTimeout) {
		return nil, encErr
	}
	if encErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoder, encErr)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}

	s.chunkMu.Lock()
	chunks := s.chunks
	s.chunks = nil
	s.chunkMu.Unlock()

	artifact, err := Assemble(chunks, s.enc.MediaType(), s.fileName())
	if err != nil {
		return nil, err
	}

	slog.Info("recording session closed", "session_id", s.id, "chunks", len(chunks), "bytes", len(artifact.Content))
	return artifact, nil
}

// Assemble concatenates chunks in order into one Artifact.
func Assemble(chunks [][]byte, mediaType, name string) (*types.Artifact, error) {
	size := 0
	for _, c := range chunks {
		size += len(c)
	}
	if size == 0 {
		return nil, ErrEmptyRecording
	}

	content := make([]byte, 0, size)
	for _, c := range chunks {
		content = append(content, c...)
	}

	return &types.Artifact{
		Content:   content,
		MediaType: mediaType,
		Name:      name,
	}, nil
}

func (s *Session) fileName() string {
	return fmt.Sprintf("%s-%s.%s", NamePrefix, s.id, s.enc.Extension())
}

// appendChunk buffers one encoded segment.
func (s *Session) appendChunk(segment []byte) {
	if len(segment) == 0 {
		return
	}
	s.chunkMu.Lock()
	s.chunks = append(s.chunks, segment)
	s.chunkMu.Unlock()
}

// runWriter feeds queued frames to the encoder until the queue is closed
// and empty. After a write error, or once shutdown gives up, the remaining
// frames are discarded.
func (s *Session) runWriter() {
	defer close(s.writerDone)

	broken := false
	for {
		batch, ok := s.frames.next()
		if !ok {
			return
		}
		for _, frame := range batch {
			if broken || s.aborted.Load() {
				break
			}
			if err := s.enc.Write(frame); err != nil {
				broken = true
				if !s.aborted.Load() {
					s.fail(fmt.Errorf("%w: %w", ErrEncoder, err))
				}
			}
		}
	}
}

// watchStream reports a stream that ends while the session still owns it.
func (s *Session) watchStream(stream device.Stream) {
	defer close(s.watchDone)

	select {
	case <-s.closing:
		return
	case <-stream.Done():
	}

	select {
	case <-s.closing:
		return
	default:
	}

	if err := stream.Err(); err != nil {
		s.fail(fmt.Errorf("%w: %w", ErrStreamEnded, err))
		return
	}
	s.fail(ErrStreamEnded)
}

func (s *Session) fail(err error) {
	s.failOnce.Do(func() {
		s.failErr = err
		close(s.failed)
		slog.Warn("recording session failed", "session_id", s.id, "error", err)
	})
}

// releaseStream hands stream back when Open did not keep it. Called with s.mu held.
func (s *Session) releaseStream(stream device.Stream) {
	if err := s.release(stream); err != nil {
		slog.Warn("failed to release stream", "session_id", s.id, "error", err)
	}
}
