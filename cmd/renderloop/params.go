package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/alnah/go-renderloop"
	"github.com/alnah/go-renderloop/internal/config"
	"github.com/alnah/go-renderloop/internal/hints"
	"github.com/alnah/go-renderloop/internal/logging"
)

// Sentinel errors for CLI operations.
var (
	ErrNoInput            = errors.New("no input specified")
	ErrReadInput          = errors.New("failed to read input")
	ErrWriteOutput        = errors.New("failed to write output")
	ErrInvalidWorkerCount = errors.New("invalid worker count")
	ErrMissingTopic       = errors.New("--topic is required")
	ErrQualityNotReached  = errors.New("quality threshold not reached")
	ErrBatchFailed        = errors.New("batch had failures")
)

// File permission constants.
const (
	dirPermissions  = 0o750 // rwxr-x---: owner full, group read+execute
	filePermissions = 0o644 // rw-r--r--: owner read+write, others read
)

// loadConfig resolves configuration from the config file, the environment,
// and finally defaults. CLI flags are merged by the caller.
func loadConfig(f commonFlags) (*config.Config, error) {
	envCfg := loadEnvConfig()

	name := f.config
	if name == "" {
		name = envCfg.ConfigPath
	}

	cfg := config.DefaultConfig()
	if name != "" {
		var err error
		cfg, err = config.LoadConfig(name)
		if errors.Is(err, config.ErrConfigNotFound) {
			var searched []string
			if !strings.ContainsAny(name, `/\`) {
				searched = config.SearchPaths(name)
			}
			return nil, fmt.Errorf("loading config: %w%s", err, hints.ForConfigNotFound(searched))
		}
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}

	applyEnvConfig(envCfg, cfg)

	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	switch {
	case f.verbose:
		cfg.Log.Level = "debug"
	case f.quiet:
		cfg.Log.Level = "error"
	}
	return cfg, nil
}

// applyJobFlags merges explicitly set render flags into cfg.
func applyJobFlags(fs *flag.FlagSet, f *jobFlags, cfg *config.Config) {
	if fs.Changed("format") {
		cfg.Render.Format = f.format
	}
	if fs.Changed("width") {
		cfg.Render.Viewport.Width = f.width
	}
	if fs.Changed("height") {
		cfg.Render.Viewport.Height = f.height
	}
	if fs.Changed("scale") {
		cfg.Render.Viewport.Scale = f.scale
	}
	if fs.Changed("page-size") {
		cfg.Render.Page.Size = f.pageSize
	}
	if fs.Changed("orientation") {
		cfg.Render.Page.Orientation = f.orientation
	}
	if fs.Changed("margin") {
		cfg.Render.Page.Margin = f.margin
	}
	if fs.Changed("timeout") {
		cfg.Render.Timeout = config.Duration(f.timeout)
	}
}

// applyPolicyFlags merges explicitly set policy flags into cfg.
func applyPolicyFlags(fs *flag.FlagSet, f *policyFlags, cfg *config.Config) {
	if fs.Changed("max-iterations") {
		cfg.Correction.MaxIterations = f.maxIterations
	}
	if fs.Changed("threshold") {
		cfg.Correction.Threshold = f.threshold
	}
	if fs.Changed("window") {
		cfg.Correction.Window = f.window
	}
	if fs.Changed("epsilon") {
		cfg.Correction.Epsilon = f.epsilon
	}
}

// validateWorkers checks the --workers range.
func validateWorkers(n int) error {
	if n < 0 || n > renderloop.MaxPoolSize {
		return fmt.Errorf("%w: %d (must be 0-%d)", ErrInvalidWorkerCount, n, renderloop.MaxPoolSize)
	}
	return nil
}

// newLogger builds the process logger from the log section.
func newLogger(cfg *config.Config, env *Environment) *slog.Logger {
	return logging.New(cfg.Log.Level, cfg.Log.Format, env.Stderr)
}

// jobTemplate returns the render job defaults from cfg.
func jobTemplate(cfg *config.Config, noBackground bool) renderloop.RenderJob {
	job := renderloop.RenderJob{
		Format:   renderloop.Format(cfg.Render.Format),
		Viewport: cfg.Viewport(),
		Page:     cfg.PageSettings(),
		Timeout:  cfg.Render.Timeout.Value(),
	}
	if noBackground {
		off := false
		job.PrintBackground = &off
	}
	return job
}
