// Package process cleans up browser process trees that outlive their
// DevTools connection.
package process

import "errors"

// ErrInvalidPID is returned for PIDs that would address the caller's own
// process group (0) or no process at all.
var ErrInvalidPID = errors.New("invalid process id")
