package renderloop

import "context"

// Process is one rendering-process instance owned by a pool handle.
// A Process is never used by two goroutines at once; the pool guarantees it.
type Process interface {
	// Render turns a prepared job into artifact bytes.
	Render(ctx context.Context, job *RenderJob) ([]byte, error)
	// Ping reports whether the process still answers.
	Ping(ctx context.Context) error
	// Close tears the process down. It must be safe to call after a crash.
	Close() error
}

// ProcessFactory starts a new Process. The pool calls it at startup and
// whenever a drained handle is replaced.
type ProcessFactory func(ctx context.Context) (Process, error)
