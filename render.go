package renderloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRenderAllowance is the share of a job's timeout reserved for the
// render itself when the job has no explicit acquire timeout.
const DefaultRenderAllowance = 5 * time.Second

// workerPool is the part of *Pool a Renderer needs.
type workerPool interface {
	With(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, h *WorkerHandle) error) error
}

// Compile-time interface check.
var _ workerPool = (*Pool)(nil)

// Renderer turns documents into PDF or PNG artifacts on pooled workers.
// It is safe for concurrent use; concurrency is bounded by the pool size.
type Renderer struct {
	pool            workerPool
	gate            Gate
	logger          *slog.Logger
	renderAllowance time.Duration
	defaults        RenderJob
}

// NewRenderer creates a Renderer on top of pool.
func NewRenderer(pool workerPool, opts ...Option) *Renderer {
	r := &Renderer{
		pool:            pool,
		logger:          slog.Default(),
		renderAllowance: DefaultRenderAllowance,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithGate checks every job against gate before a worker is acquired.
func WithGate(gate Gate) Option {
	return func(r *Renderer) {
		r.gate = gate
	}
}

// WithLogger sets the renderer's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRenderAllowance reserves d of each job's timeout for rendering when
// deriving the acquire timeout.
func WithRenderAllowance(d time.Duration) Option {
	return func(r *Renderer) {
		if d > 0 {
			r.renderAllowance = d
		}
	}
}

// WithDefaults fills fields left unset in each job from defaults, before the
// built-in defaults apply. Document is ignored.
func WithDefaults(defaults RenderJob) Option {
	return func(r *Renderer) {
		defaults.Document = ""
		r.defaults = defaults
	}
}

// Render produces one artifact. The job is validated and checked by the
// compliance gate before any worker is acquired.
func (r *Renderer) Render(ctx context.Context, in RenderJob) (result *RenderResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("%w: render panic: %v", ErrWorkerFaulted, rec)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	job := r.merge(in).ApplyDefaults()
	if err := job.Validate(); err != nil {
		return nil, err
	}

	if err := enforce(ctx, r.gate, r.logger, job.Action, ComplianceInput{
		Document: job.Document,
		Audit:    job.Audit,
	}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	start := time.Now()
	var (
		data     []byte
		workerID string
	)
	err = r.pool.With(ctx, r.acquireTimeout(job), func(ctx context.Context, h *WorkerHandle) error {
		workerID = h.ID()
		out, err := h.Process().Render(ctx, &job)
		if err != nil {
			return err
		}
		data = out
		return nil
	})
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrRenderTimeout) {
			err = fmt.Errorf("%w: %v after %s", ErrRenderTimeout, err, elapsed.Round(time.Millisecond))
		}
		r.logger.Debug("render failed", "worker_id", workerID, "format", job.Format, "elapsed", elapsed, "error", err)
		return nil, err
	}

	r.logger.Debug("render complete", "worker_id", workerID, "format", job.Format, "bytes", len(data), "elapsed", elapsed)
	return &RenderResult{
		Data:     data,
		Format:   job.Format,
		Elapsed:  elapsed,
		WorkerID: workerID,
	}, nil
}

// acquireTimeout is the job's explicit acquire timeout, or its total timeout
// minus the render allowance. The allowance never takes more than two thirds
// of the budget.
func (r *Renderer) acquireTimeout(job RenderJob) time.Duration {
	if job.AcquireTimeout > 0 {
		return job.AcquireTimeout
	}
	allowance := min(r.renderAllowance, job.Timeout*2/3)
	return job.Timeout - allowance
}

// merge fills unset job fields from the renderer defaults.
func (r *Renderer) merge(job RenderJob) RenderJob {
	d := r.defaults
	if job.Format == "" {
		job.Format = d.Format
	}
	if job.Viewport == nil {
		job.Viewport = d.Viewport
	}
	if job.Page == nil {
		job.Page = d.Page
	}
	if job.PrintBackground == nil {
		job.PrintBackground = d.PrintBackground
	}
	if job.Timeout == 0 {
		job.Timeout = d.Timeout
	}
	if job.AcquireTimeout == 0 {
		job.AcquireTimeout = d.AcquireTimeout
	}
	if job.Action == "" {
		job.Action = d.Action
	}
	if job.Audit == nil {
		job.Audit = d.Audit
	}
	return job
}
