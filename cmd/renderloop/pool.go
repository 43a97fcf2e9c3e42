package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alnah/go-renderloop"
	"github.com/alnah/go-renderloop/internal/config"
	"github.com/alnah/go-renderloop/internal/hints"
)

// engine is the pool and renderer shared by a command.
type engine struct {
	pool     *renderloop.Pool
	renderer *renderloop.Renderer
	gate     renderloop.Gate
	logger   *slog.Logger
}

// Close shuts the pool down.
func (e *engine) Close() error {
	return e.pool.Close()
}

// startEngine launches a pool of size workers (0 = cfg, then auto) and a
// renderer configured from cfg.
func startEngine(ctx context.Context, env *Environment, cfg *config.Config, logger *slog.Logger, workers int) (*engine, error) {
	size := workers
	if size == 0 {
		size = cfg.Pool.Size
	}
	size = renderloop.ResolvePoolSize(size)
	minSize := min(cfg.Pool.MinSize, size)

	factory := env.NewFactory(renderloop.BrowserOptions{
		Bin:       cfg.Browser.Bin,
		NoSandbox: cfg.Browser.NoSandbox,
		Flags:     cfg.Browser.Flags,
		Logger:    logger,
	})

	logger.Debug("starting worker pool", "size", size, "min_size", minSize)
	pool, err := renderloop.NewPool(ctx, factory, renderloop.PoolConfig{
		Size:               size,
		MinSize:            minSize,
		RecycleAfter:       cfg.Pool.RecycleAfter,
		HealthInterval:     cfg.Pool.HealthInterval.Value(),
		AcquireTimeout:     cfg.Pool.AcquireTimeout.Value(),
		RespawnBackoff:     cfg.Pool.RespawnBackoff.Value(),
		RespawnMaxBackoff:  cfg.Pool.RespawnMaxBackoff.Value(),
		MaxRespawnAttempts: cfg.Pool.MaxRespawnAttempts,
		Logger:             logger,
	})
	if err != nil {
		if errors.Is(err, renderloop.ErrBrowserConnect) {
			return nil, fmt.Errorf("starting worker pool: %w%s", err, hints.ForBrowserConnect())
		}
		return nil, fmt.Errorf("starting worker pool: %w", err)
	}

	gate := newGate(cfg, logger)
	opts := []renderloop.Option{
		renderloop.WithLogger(logger),
		renderloop.WithDefaults(jobTemplate(cfg, false)),
	}
	if d := cfg.Render.RenderAllowance.Value(); d > 0 {
		opts = append(opts, renderloop.WithRenderAllowance(d))
	}
	if gate != nil {
		opts = append(opts, renderloop.WithGate(gate))
	}

	return &engine{
		pool:     pool,
		renderer: renderloop.NewRenderer(pool, opts...),
		gate:     gate,
		logger:   logger,
	}, nil
}

// newGate returns the configured compliance gate, or nil when disabled.
func newGate(cfg *config.Config, logger *slog.Logger) renderloop.Gate {
	c := cfg.Compliance
	if !c.Enabled {
		return nil
	}
	g := renderloop.NewPolicyGate(logger)
	if c.MinScore > 0 {
		g.MinScore = c.MinScore
	}
	g.AllowScripts = c.AllowScripts
	g.RequireAudit = c.RequireAudit
	if len(c.RealDataMarkers) > 0 {
		g.RealDataMarkers = c.RealDataMarkers
	}
	return g
}

// withHint appends an actionable hint for well-known failures.
func withHint(err error, poolSize int) error {
	var ce *renderloop.ComplianceError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		principles := make([]string, 0, len(ce.Result.Violations))
		for _, v := range ce.Result.Violations {
			principles = append(principles, v.Principle)
		}
		return fmt.Errorf("%w%s", err, hints.ForComplianceViolation(principles))
	case errors.Is(err, renderloop.ErrRenderTimeout):
		return fmt.Errorf("%w%s", err, hints.ForRenderTimeout())
	case errors.Is(err, renderloop.ErrPoolExhausted):
		return fmt.Errorf("%w%s", err, hints.ForPoolExhausted(poolSize))
	case errors.Is(err, renderloop.ErrDegradedCapacity):
		return fmt.Errorf("%w%s", err, hints.ForDegradedCapacity())
	case errors.Is(err, renderloop.ErrBrowserConnect):
		return fmt.Errorf("%w%s", err, hints.ForBrowserConnect())
	}
	return err
}
