package device

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptAcquirer returns an acquirer whose capture command is a shell script.
func scriptAcquirer(t *testing.T, body string) *ProcessAcquirer {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "capture.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))

	a := NewProcessAcquirer("", "")
	a.build = func(string) (string, []string, error) {
		return path, nil, nil
	}
	return a
}

type frameSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *frameSink) add(frame []byte) {
	s.mu.Lock()
	s.frames = append(s.frames, frame)
	s.mu.Unlock()
}

func (s *frameSink) joined() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Join(s.frames, nil)
}

func (s *frameSink) sizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make([]int, 0, len(s.frames))
	for _, f := range s.frames {
		sizes = append(sizes, len(f))
	}
	return sizes
}

func TestProcessAcquirerCarriesSplitSamples(t *testing.T) {
	a := scriptAcquirer(t, `printf '\001\002'
sleep 0.2
printf '\003'
sleep 0.2
printf '\004\005\006'
exec sleep 30`)

	stream, err := a.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stream.Tracks())

	var sink frameSink
	cancel := stream.Subscribe(sink.add)
	defer cancel()

	require.Eventually(t, func() bool {
		return bytes.HasSuffix(sink.joined(), []byte{3, 4, 5, 6})
	}, 3*time.Second, 10*time.Millisecond)

	// The opening frame may land before the subscription.
	require.Contains(t, [][]byte{{3, 4, 5, 6}, {1, 2, 3, 4, 5, 6}}, sink.joined())
	for _, n := range sink.sizes() {
		require.Zero(t, n%2, "frame of %d bytes splits a sample", n)
	}

	require.NoError(t, a.Release(stream))
	select {
	case <-stream.Done():
	default:
		t.Fatal("stream still live after release")
	}
	require.NoError(t, stream.Err())
	require.NoError(t, a.Release(stream))
}

func TestProcessAcquirerEarlyExitIsUnavailable(t *testing.T) {
	a := scriptAcquirer(t, `echo "arecord: main:850: audio open error: No such device" >&2
exit 1`)

	stream, err := a.Acquire(context.Background())
	require.Nil(t, stream)
	require.ErrorIs(t, err, ErrUnavailable)
	require.Contains(t, err.Error(), "audio open error: No such device")
}

func TestProcessAcquirerSilentExitIsUnavailable(t *testing.T) {
	a := scriptAcquirer(t, "exit 0")

	_, err := a.Acquire(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	require.Contains(t, err.Error(), "exited before producing audio")
}

func TestProcessAcquirerBuildFailure(t *testing.T) {
	a := NewProcessAcquirer("", "")
	a.build = func(string) (string, []string, error) {
		return "", nil, errors.New("ffmpeg not found")
	}

	_, err := a.Acquire(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	require.Contains(t, err.Error(), "ffmpeg not found")
}

func TestProcessAcquirerHonorsContext(t *testing.T) {
	a := scriptAcquirer(t, "exec sleep 30")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	stream, err := a.Acquire(ctx)
	require.Nil(t, stream)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestProcessAcquirerReportsDeviceLoss(t *testing.T) {
	a := scriptAcquirer(t, `printf '\001\002'
sleep 0.1
echo "arecord: pcm_read:2221: read error: No such device" >&2
exit 1`)

	stream, err := a.Acquire(context.Background())
	require.NoError(t, err)

	select {
	case <-stream.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not end")
	}
	require.ErrorIs(t, stream.Err(), ErrUnavailable)
	require.Contains(t, stream.Err().Error(), "read error: No such device")

	require.NoError(t, a.Release(stream))
}
