//go:build !windows

package process

import "syscall"

// KillProcessGroup kills a browser and all its helper processes by sending
// SIGKILL to the process group (negative PID).
func KillProcessGroup(pid int) error {
	if pid <= 0 {
		return ErrInvalidPID
	}
	return syscall.Kill(-pid, syscall.SIGKILL)
}

// Alive reports whether a process with the given PID still exists.
// Signal 0 performs the permission and existence checks without delivering.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
