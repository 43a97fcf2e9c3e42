package renderloop

import (
	"sync"
	"time"
)

// HandleState is the lifecycle state of a WorkerHandle.
type HandleState int

// Handle states. Idle and InUse handles are live; Draining handles are being
// torn down and are never handed out again; Dead handles are gone.
const (
	StateIdle HandleState = iota
	StateInUse
	StateDraining
	StateDead
)

func (s HandleState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInUse:
		return "in_use"
	case StateDraining:
		return "draining"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Outcome tells the pool how a checked-out handle was used.
type Outcome int

// Release outcomes.
const (
	OutcomeOK Outcome = iota
	// OutcomeFaulted marks the process as crashed or misbehaving. The handle
	// is always recycled.
	OutcomeFaulted
)

func (o Outcome) String() string {
	if o == OutcomeFaulted {
		return "faulted"
	}
	return "ok"
}

// WorkerHandle identifies one rendering process in a Pool.
// While checked out it belongs to exactly one caller.
type WorkerHandle struct {
	id      string
	proc    Process
	created time.Time

	mu        sync.Mutex
	uses      int
	lastCheck time.Time
	state     HandleState
}

func newWorkerHandle(id string, proc Process) *WorkerHandle {
	now := time.Now()
	return &WorkerHandle{
		id:        id,
		proc:      proc,
		created:   now,
		lastCheck: now,
		state:     StateIdle,
	}
}

// ID returns the handle's unique id.
func (h *WorkerHandle) ID() string { return h.id }

// Process returns the underlying process. Only valid while checked out.
func (h *WorkerHandle) Process() Process { return h.proc }

// Uses returns how many times the handle has been checked out.
func (h *WorkerHandle) Uses() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.uses
}

// State returns the current lifecycle state.
func (h *WorkerHandle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// LastCheck returns when the process last passed a health check.
func (h *WorkerHandle) LastCheck() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastCheck
}

// Age returns the time since the process was started.
func (h *WorkerHandle) Age() time.Duration {
	return time.Since(h.created)
}

func (h *WorkerHandle) setState(s HandleState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// checkout moves an idle handle to InUse and counts the use.
func (h *WorkerHandle) checkout() {
	h.mu.Lock()
	h.state = StateInUse
	h.uses++
	h.mu.Unlock()
}

// uncheckout undoes checkout for a handle that was never used.
func (h *WorkerHandle) uncheckout() {
	h.mu.Lock()
	h.state = StateIdle
	h.uses--
	h.mu.Unlock()
}

// checkDue reports whether a health check is due at now.
func (h *WorkerHandle) checkDue(interval time.Duration, now time.Time) bool {
	if interval <= 0 {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return now.Sub(h.lastCheck) >= interval
}

func (h *WorkerHandle) markChecked(now time.Time) {
	h.mu.Lock()
	h.lastCheck = now
	h.mu.Unlock()
}
