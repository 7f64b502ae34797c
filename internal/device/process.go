package device

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/oszuidwest/zwfm-voicecapture/internal/audio"
	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
	"github.com/oszuidwest/zwfm-voicecapture/internal/util"
)

// FrameBytes is the size of one delivered frame: 20ms of mono S16LE at 48kHz.
const FrameBytes = types.SampleRate / 50 * types.Channels * types.BytesPerSample

// ProcessAcquirer opens the microphone by running the platform capture command
// (arecord or FFmpeg) and reading raw PCM from its stdout.
type ProcessAcquirer struct {
	ffmpegPath string
	build      func(input string) (string, []string, error)

	mu     sync.Mutex
	input  string
	active map[string]*processStream
}

// NewProcessAcquirer creates an acquirer for the given input device.
// An empty input selects the platform default.
func NewProcessAcquirer(input, ffmpegPath string) *ProcessAcquirer {
	a := &ProcessAcquirer{
		input:      input,
		ffmpegPath: ffmpegPath,
		active:     make(map[string]*processStream),
	}
	a.build = func(input string) (string, []string, error) {
		return audio.BuildCaptureCommand(input, a.ffmpegPath)
	}
	return a
}

// SetInput selects the device used by the next Acquire. A stream that is
// already open keeps its device.
func (a *ProcessAcquirer) SetInput(input string) {
	a.mu.Lock()
	a.input = input
	a.mu.Unlock()
}

// Input returns the device used by the next Acquire.
func (a *ProcessAcquirer) Input() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.input
}

// processStream is a Broadcast fed by a capture subprocess.
type processStream struct {
	*Broadcast

	cmd      *exec.Cmd
	cancel   context.CancelFunc
	stderr   *util.TailBuffer
	stopping atomic.Bool
	stopOnce sync.Once
}

// Acquire starts the capture process and waits until the first PCM frame arrives,
// which proves the device is open. If the process exits first, the last line of
// its stderr is returned wrapped in ErrUnavailable.
func (a *ProcessAcquirer) Acquire(ctx context.Context) (Stream, error) {
	input := a.Input()
	cmdName, args, err := a.build(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	// The process outlives Acquire, so it gets its own context.
	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, cmdName, args...)
	cmd.Cancel = func() error {
		return util.InterruptProcess(cmd.Process)
	}
	cmd.WaitDelay = types.ShutdownTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, util.WrapError("create stdout pipe", err)
	}

	stderr := util.NewTailBuffer(util.DefaultTailSize)
	cmd.Stderr = stderr

	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	ps := &processStream{
		Broadcast: NewBroadcast(id, types.Channels),
		cmd:       cmd,
		cancel:    cancel,
		stderr:    stderr,
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start %s: %w", ErrUnavailable, cmdName, err)
	}

	slog.Info("starting audio capture", "command", cmdName, "input", input, "stream_id", id)

	opened := make(chan struct{})
	go ps.pump(stdout, opened)

	select {
	case <-opened:
	case <-ps.Done():
		msg := stderr.LastLine()
		if msg == "" {
			msg = "capture process exited before producing audio"
		}
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, msg)
	case <-ctx.Done():
		ps.stop()
		return nil, context.Cause(ctx)
	}

	a.mu.Lock()
	a.active[id] = ps
	a.mu.Unlock()

	return ps, nil
}

// Release stops the capture process behind s and waits for it to exit.
func (a *ProcessAcquirer) Release(s Stream) error {
	if s == nil {
		return nil
	}

	a.mu.Lock()
	ps, ok := a.active[s.ID()]
	delete(a.active, s.ID())
	a.mu.Unlock()

	if !ok {
		if _, mine := s.(*processStream); mine {
			return nil // already released
		}
		return ErrUnknownStream
	}

	ps.stop()
	slog.Info("audio capture released", "stream_id", ps.ID())
	return nil
}

// pump reads PCM from the capture process and publishes whole-sample frames.
func (ps *processStream) pump(stdout io.Reader, opened chan<- struct{}) {
	var openOnce sync.Once
	buf := make([]byte, FrameBytes)
	carry := 0

	var readErr error
	for {
		n, err := stdout.Read(buf[carry:])
		n += carry
		whole := n - n%types.BytesPerSample
		if whole > 0 {
			openOnce.Do(func() { close(opened) })
			frame := make([]byte, whole)
			copy(frame, buf[:whole])
			ps.Publish(frame)
		}
		carry = copy(buf, buf[whole:n])

		if err != nil {
			if err != io.EOF {
				readErr = err
			}
			break
		}
	}

	waitErr := ps.cmd.Wait()
	ps.cancel()

	switch {
	case ps.stopping.Load():
		ps.End(nil)
	case readErr != nil:
		ps.End(readErr)
	case waitErr != nil:
		ps.End(fmt.Errorf("%w: %s", ErrUnavailable, ps.stderr.LastLine()))
	default:
		ps.End(nil)
	}
}

// stop signals the capture process and waits for the pump to finish.
func (ps *processStream) stop() {
	ps.stopOnce.Do(func() {
		ps.stopping.Store(true)
		ps.cancel()
		<-ps.Done()
	})
}
