//go:build !windows

package util

import (
	"os"
	"syscall"
)

// ShutdownSignals returns the signals that stop the service. SIGHUP is
// included so closing the terminal of a kiosk session frees the microphone.
func ShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}
}

// InterruptProcess asks a capture or encoder child to stop. arecord closes
// the device on SIGINT; FFmpeg finishes the WebM container before exiting.
func InterruptProcess(p *os.Process) error {
	if p == nil {
		return os.ErrProcessDone
	}
	return p.Signal(syscall.SIGINT)
}
