//go:build windows

package launcher

import "os"

// interrupt kills the process; Windows has no SIGINT for child processes.
func interrupt(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}
