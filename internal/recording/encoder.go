package recording

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-voicecapture/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
)

// Encoder converts raw PCM into encoded segments.
type Encoder interface {
	// Start begins encoding. onSegment receives each encoded segment in output order.
	Start(onSegment func(segment []byte)) error

	// Write feeds one PCM frame to the encoder.
	Write(pcm []byte) error

	// Close flushes the encoder. Every segment has been delivered when Close returns.
	Close() error

	// MediaType returns the fixed media type of the encoded output.
	MediaType() string

	// Extension returns the file extension for the encoded output, without a dot.
	Extension() string
}

// Opus-in-WebM output settings.
const (
	WebMMediaType = "audio/webm"
	WebMExtension = "webm"

	// DefaultBitrate is the Opus bitrate in kbit/s, ample for speech.
	DefaultBitrate = 32

	segmentBufferSize = 4096
)

// FFmpegEncoder encodes PCM to Opus in a WebM container with an FFmpeg subprocess.
// PCM goes in on stdin; stdout is read in chunks that become segments.
type FFmpegEncoder struct {
	ffmpegPath      string
	bitrate         int
	finalizeTimeout time.Duration

	mu       sync.Mutex
	proc     *ffmpeg.Process
	closed   bool
	readDone chan struct{}
	readErr  error
}

// NewFFmpegEncoder creates an encoder that runs the given FFmpeg binary.
func NewFFmpegEncoder(ffmpegPath string) *FFmpegEncoder {
	return &FFmpegEncoder{
		ffmpegPath:      ffmpegPath,
		bitrate:         DefaultBitrate,
		finalizeTimeout: types.FinalizeTimeout,
	}
}

// MediaType returns "audio/webm".
func (e *FFmpegEncoder) MediaType() string { return WebMMediaType }

// Extension returns "webm".
func (e *FFmpegEncoder) Extension() string { return WebMExtension }

// Args returns the FFmpeg arguments used for encoding.
func (e *FFmpegEncoder) Args() []string {
	args := ffmpeg.BaseInputArgs()
	args = append(args,
		"-c:a", "libopus",
		"-b:a", strconv.Itoa(e.bitrate)+"k",
		"-application", "voip",
		"-f", "webm",
		"-hide_banner",
		"-loglevel", "warning",
		"pipe:1",
	)
	return args
}

// Start launches FFmpeg and begins reading encoded output.
func (e *FFmpegEncoder) Start(onSegment func([]byte)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.proc != nil {
		return errors.New("encoder already started")
	}

	proc, err := ffmpeg.StartProcess(e.ffmpegPath, e.Args())
	if err != nil {
		return err
	}

	e.proc = proc
	e.readDone = make(chan struct{})
	go e.readSegments(proc.Stdout, onSegment)

	slog.Info("encoder started", "codec", "opus", "bitrate_kbps", e.bitrate)
	return nil
}

// readSegments delivers stdout chunks until FFmpeg closes its output.
func (e *FFmpegEncoder) readSegments(stdout io.Reader, onSegment func([]byte)) {
	defer close(e.readDone)

	buf := make([]byte, segmentBufferSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			segment := make([]byte, n)
			copy(segment, buf[:n])
			onSegment(segment)
		}
		if err != nil {
			if err != io.EOF {
				e.mu.Lock()
				e.readErr = err
				e.mu.Unlock()
			}
			return
		}
	}
}

// Write sends PCM to FFmpeg's stdin.
func (e *FFmpegEncoder) Write(pcm []byte) error {
	e.mu.Lock()
	proc := e.proc
	closed := e.closed
	e.mu.Unlock()

	if proc == nil || closed {
		return ErrEncoderClosed
	}

	// FFmpeg's own message is attached by Close, once the process has exited.
	if _, err := proc.Stdin.Write(pcm); err != nil {
		return fmt.Errorf("write pcm: %w", err)
	}
	return nil
}

// Close ends the input and waits for FFmpeg to flush and exit.
// FFmpeg is killed if it does not finish within FinalizeTimeout.
func (e *FFmpegEncoder) Close() error {
	e.mu.Lock()
	if e.proc == nil || e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	proc := e.proc
	e.mu.Unlock()

	var errs []error
	if err := proc.Stdin.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stdin: %w", err))
	}

	timer := time.NewTimer(e.finalizeTimeout)
	defer timer.Stop()

	select {
	case <-e.readDone:
	case <-timer.C:
		slog.Warn("encoder ffmpeg did not stop in time")
		if err := proc.Cmd.Process.Kill(); err != nil {
			errs = append(errs, fmt.Errorf("kill ffmpeg: %w", err))
		}
		<-e.readDone
	}

	waitErr := proc.Cmd.Wait()
	proc.Cancel()

	if waitErr != nil {
		if msg := proc.LastError(); msg != "" {
			errs = append(errs, fmt.Errorf("ffmpeg exited: %w: %s", waitErr, msg))
		} else {
			errs = append(errs, fmt.Errorf("ffmpeg exited: %w", waitErr))
		}
	}

	e.mu.Lock()
	if e.readErr != nil {
		errs = append(errs, fmt.Errorf("read output: %w", e.readErr))
	}
	e.mu.Unlock()

	return errors.Join(errs...)
}

// PCMMediaType describes the raw output of PCMEncoder.
const PCMMediaType = "audio/L16;rate=48000;channels=1"

// PCMEncoder passes PCM through unchanged; each written frame becomes one segment.
// It is used when FFmpeg is not installed.
type PCMEncoder struct {
	mu        sync.Mutex
	onSegment func([]byte)
	started   bool
	closed    bool
}

// NewPCMEncoder creates a pass-through encoder.
func NewPCMEncoder() *PCMEncoder {
	return &PCMEncoder{}
}

// MediaType returns the L16 media type.
func (e *PCMEncoder) MediaType() string { return PCMMediaType }

// Extension returns "pcm".
func (e *PCMEncoder) Extension() string { return "pcm" }

// Start records the segment callback.
func (e *PCMEncoder) Start(onSegment func([]byte)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errors.New("encoder already started")
	}
	e.started = true
	e.onSegment = onSegment
	return nil
}

// Write emits a copy of pcm as a segment.
func (e *PCMEncoder) Write(pcm []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.closed {
		return ErrEncoderClosed
	}
	if len(pcm) == 0 {
		return nil
	}
	segment := make([]byte, len(pcm))
	copy(segment, pcm)
	e.onSegment(segment)
	return nil
}

// Close stops accepting input.
func (e *PCMEncoder) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}
