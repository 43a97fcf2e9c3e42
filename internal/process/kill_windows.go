//go:build windows

package process

import (
	"os"
	"os/exec"
	"strconv"
)

// KillProcessGroup kills a browser and all its helper processes using
// taskkill. /F = force kill, /T = terminate child processes (tree kill).
func KillProcessGroup(pid int) error {
	if pid <= 0 {
		return ErrInvalidPID
	}
	return exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run()
}

// Alive reports whether a process with the given PID still exists.
// FindProcess opens a handle on Windows and fails once the process is gone.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
