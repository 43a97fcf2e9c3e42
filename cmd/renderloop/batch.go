package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-renderloop"
	"github.com/alnah/go-renderloop/internal/fileutil"
	"github.com/alnah/go-renderloop/internal/hints"
)

// batchResult holds the outcome of a single render.
type batchResult struct {
	InputPath  string
	OutputPath string
	Err        error
	Duration   time.Duration
}

// runBatch renders every HTML and markdown file in a directory.
func runBatch(ctx context.Context, args []string, env *Environment) error {
	fs, f, positional, err := parseBatchFlags(args, env)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		printBatchUsage(env.Stderr)
		return fmt.Errorf("%w: expected one input directory", ErrNoInput)
	}
	if err := validateWorkers(f.workers); err != nil {
		return err
	}
	dir := positional[0]

	cfg, err := loadConfig(f.common)
	if err != nil {
		return err
	}
	applyJobFlags(fs, &f.job, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := newLogger(cfg, env)

	files, err := discoverDocuments(dir)
	if err != nil {
		return fmt.Errorf("discovering files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: no HTML or markdown files in %s", ErrNoInput, dir)
	}

	outDir := f.output
	if outDir == "" {
		outDir = dir
	}
	if err := os.MkdirAll(outDir, dirPermissions); err != nil {
		return fmt.Errorf("%w: %s: %w%s", ErrWriteOutput, outDir, err, hints.ForOutputDirectory())
	}

	loader, err := newDocumentLoader(f.job.css, env.Stdin)
	if err != nil {
		return err
	}

	workers := f.workers
	if workers == 0 {
		workers = cfg.Pool.Size
	}
	workers = min(renderloop.ResolvePoolSize(workers), len(files))

	eng, err := startEngine(ctx, env, cfg, logger, workers)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	template := jobTemplate(cfg, f.job.noBackground)
	results := renderBatch(ctx, eng, loader, template, files, outDir, workers, env)

	return reportBatch(env, results, f.common.quiet, workers)
}

// discoverDocuments lists the HTML and markdown files directly inside dir.
func discoverDocuments(dir string) ([]string, error) {
	html, err := fileutil.ListHTML(dir)
	if err != nil {
		return nil, err
	}
	md, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, err
	}
	return append(html, md...), nil
}

// renderBatch renders files concurrently, at most workers at a time.
// Every file is attempted; failures are reported per file.
func renderBatch(ctx context.Context, eng *engine, loader *documentLoader, template renderloop.RenderJob,
	files []string, outDir string, workers int, env *Environment) []batchResult {
	results := make([]batchResult, len(files))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, file := range files {
		g.Go(func() error {
			start := env.Now()
			out, err := renderOne(ctx, eng, loader, template, file, outDir)
			results[i] = batchResult{
				InputPath:  file,
				OutputPath: out,
				Err:        err,
				Duration:   env.Now().Sub(start),
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func renderOne(ctx context.Context, eng *engine, loader *documentLoader, template renderloop.RenderJob, file, outDir string) (string, error) {
	doc, err := loader.Load(ctx, file)
	if err != nil {
		return "", err
	}

	job := template
	job.Document = doc
	job.Action = renderloop.ActionRender
	job.Audit = renderAudit("batch", file)

	res, err := eng.renderer.Render(ctx, job)
	if err != nil {
		return "", fmt.Errorf("rendering %s: %w", file, err)
	}

	out := filepath.Join(outDir, fileutil.ReplaceExt(filepath.Base(file), string(res.Format)))
	return out, writeArtifact(out, res.Data, nil)
}

// reportBatch prints per-file outcomes and returns an error when any failed.
func reportBatch(env *Environment, results []batchResult, quiet bool, workers int) error {
	var failed int
	var firstErr error
	for _, r := range results {
		if r.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = r.Err
			}
			fmt.Fprintf(env.Stderr, "FAIL %s: %v\n", r.InputPath, r.Err)
			continue
		}
		if !quiet {
			fmt.Fprintf(env.Stderr, "ok   %s -> %s (%s)\n", r.InputPath, r.OutputPath, r.Duration.Round(time.Millisecond))
		}
	}

	if !quiet {
		fmt.Fprintf(env.Stderr, "\n%d rendered, %d failed\n", len(results)-failed, failed)
	}
	if failed > 0 {
		return withHint(fmt.Errorf("%w: %d of %d: %w", ErrBatchFailed, failed, len(results), firstErr), workers)
	}
	return nil
}
