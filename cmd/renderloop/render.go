package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alnah/go-renderloop"
)

// renderAudit is the audit context attached to CLI renders.
func renderAudit(command, input string) map[string]string {
	return map[string]string{"source": "cli", "command": command, "input": input}
}

// runRender renders a single document.
func runRender(ctx context.Context, args []string, env *Environment) error {
	fs, f, positional, err := parseRenderFlags(args, env)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		printRenderUsage(env.Stderr)
		return fmt.Errorf("%w: expected one input file", ErrNoInput)
	}
	input := positional[0]

	cfg, err := loadConfig(f.common)
	if err != nil {
		return err
	}
	applyJobFlags(fs, &f.job, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := newLogger(cfg, env)

	loader, err := newDocumentLoader(f.job.css, env.Stdin)
	if err != nil {
		return err
	}
	doc, err := loader.Load(ctx, input)
	if err != nil {
		return err
	}

	eng, err := startEngine(ctx, env, cfg, logger, 1)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	job := jobTemplate(cfg, f.job.noBackground)
	job.Document = doc
	job.Action = renderloop.ActionRender
	job.Audit = renderAudit("render", input)

	start := env.Now()
	res, err := eng.renderer.Render(ctx, job)
	if err != nil {
		return withHint(fmt.Errorf("rendering %s: %w", input, err), 1)
	}

	out := resolveOutputPath(input, f.output, string(res.Format))
	if err := writeArtifact(out, res.Data, env.Stdout); err != nil {
		return err
	}
	if !f.common.quiet && out != stdioPath {
		fmt.Fprintf(env.Stderr, "Created %s (%s)\n", out, env.Now().Sub(start).Round(time.Millisecond))
	}
	return nil
}
