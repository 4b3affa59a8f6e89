//go:build windows

package process

import (
	"errors"
	"os"
)

// terminate has no SIGTERM equivalent on Windows; the process is killed.
func terminate(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func isGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}
