//go:build !windows

package launcher

import (
	"os"
	"syscall"
)

// interrupt asks the training program to stop the way Ctrl+C would, so it
// can finish writing its current checkpoint.
func interrupt(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Signal(syscall.SIGINT)
}
