//go:build !windows

package process

import (
	"errors"
	"syscall"
)

func terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

// isGone reports whether err means the process exited before it was signalled.
func isGone(err error) bool {
	return errors.Is(err, syscall.ESRCH)
}
