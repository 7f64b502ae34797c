// Package ffmpeg provides shared FFmpeg process management utilities.
package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"

	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
	"github.com/oszuidwest/zwfm-voicecapture/internal/util"
)

// Process represents a running FFmpeg subprocess with piped stdin and stdout.
type Process struct {
	Cmd    *exec.Cmd
	Cancel context.CancelFunc
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr *util.TailBuffer // last lines only
}

// BaseInputArgs returns FFmpeg arguments for mono PCM input on stdin.
func BaseInputArgs() []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(types.SampleRate),
		"-ac", strconv.Itoa(types.Channels),
		"-i", "pipe:0",
	}
}

// StartProcess launches an FFmpeg subprocess. Cancel sends a graceful
// signal first and kills the process if it has not exited after ShutdownTimeout.
func StartProcess(ffmpegPath string, args []string) (*Process, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	cmd.Cancel = func() error {
		return util.InterruptProcess(cmd.Process)
	}
	cmd.WaitDelay = types.ShutdownTimeout

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		_ = stdinPipe.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	stderr := util.NewTailBuffer(util.DefaultTailSize)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		if closeErr := stdinPipe.Close(); closeErr != nil {
			slog.Warn("failed to close stdin pipe", "error", closeErr)
		}
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &Process{
		Cmd:    cmd,
		Cancel: cancel,
		Stdin:  stdinPipe,
		Stdout: stdoutPipe,
		Stderr: stderr,
	}, nil
}

// LastError returns the last meaningful stderr line of the process.
// Call it after Cmd.Wait so the output is complete.
func (p *Process) LastError() string {
	return p.Stderr.LastLine()
}
