//go:build windows

package util

import "os"

// ShutdownSignals returns the signals that stop the service.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// InterruptProcess is a no-op: Windows cannot deliver SIGINT to a child.
// The caller's WaitDelay kill applies instead, and the encoder has already
// flushed on stdin EOF by then.
func InterruptProcess(p *os.Process) error {
	if p == nil {
		return os.ErrProcessDone
	}
	return nil
}
