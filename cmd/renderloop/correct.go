package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/alnah/go-renderloop"
	"github.com/alnah/go-renderloop/internal/assets"
	"github.com/alnah/go-renderloop/internal/config"
	"github.com/alnah/go-renderloop/internal/draft"
	"github.com/alnah/go-renderloop/internal/visual"
)

// slugUnsafe matches runs of characters not kept in output file names.
var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// maxSlugLength bounds file names derived from a topic.
const maxSlugLength = 60

// slugify turns a topic into a file name stem.
func slugify(topic string) string {
	s := strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(topic), "-"), "-")
	if len(s) > maxSlugLength {
		s = strings.TrimRight(s[:maxSlugLength], "-")
	}
	if s == "" {
		return "document"
	}
	return s
}

// correctOutput is the JSON summary printed by --json.
type correctOutput struct {
	SessionID  string                   `json:"session_id"`
	State      renderloop.TerminalState `json:"state"`
	Score      float64                  `json:"score"`
	Iterations int                      `json:"iterations"`
	Trace      []float64                `json:"trace"`
	Revision   int                      `json:"revision"`
	Output     string                   `json:"output,omitempty"`
	HTML       string                   `json:"html,omitempty"`
	Elapsed    string                   `json:"elapsed"`
	Error      string                   `json:"error,omitempty"`
}

// runCorrect generates a document for a topic and drives it through the
// correction loop until it reaches the quality threshold or a bound.
func runCorrect(ctx context.Context, args []string, env *Environment) error {
	fs, f, err := parseCorrectFlags(args, env)
	if err != nil {
		return err
	}
	if strings.TrimSpace(f.topic) == "" {
		printCorrectUsage(env.Stderr)
		return ErrMissingTopic
	}

	cfg, err := loadConfig(f.common)
	if err != nil {
		return err
	}
	// Screenshots are what the visual analyzer sees best.
	cfg.Render.Format = string(renderloop.FormatPNG)
	applyJobFlags(fs, &f.job, cfg)
	applyPolicyFlags(fs, &f.policy, cfg)
	if fs.Changed("styles") {
		cfg.Correction.StylesPath = f.styles
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := newLogger(cfg, env)

	styles, err := assets.NewResolver(cfg.Correction.StylesPath)
	if err != nil {
		return fmt.Errorf("loading draft styles: %w", err)
	}

	eng, err := startEngine(ctx, env, cfg, logger, 1)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	loop := newCorrectionLoop(cfg, eng, styles, f.report, env)

	job := jobTemplate(cfg, f.job.noBackground)
	job.Audit = map[string]string{"source": "cli", "command": "correct", "topic": f.topic}

	res, runErr := loop.Run(ctx, renderloop.RunRequest{
		Topic:   f.topic,
		Outline: f.outline,
		Job:     job,
	})
	if res == nil {
		return withHint(runErr, 1)
	}

	out := correctOutput{
		SessionID:  res.SessionID,
		State:      res.State,
		Score:      res.Score,
		Iterations: res.Iterations,
		Trace:      res.Trace,
		Revision:   res.Document.Revision,
		Elapsed:    res.Elapsed.Round(time.Millisecond).String(),
	}
	if runErr != nil {
		out.Error = runErr.Error()
	}

	if res.Artifact != nil {
		out.Output = resolveOutputPath(slugify(f.topic), f.output, string(res.Artifact.Format))
		if err := writeArtifact(out.Output, res.Artifact.Data, env.Stdout); err != nil {
			return err
		}
		if f.htmlOutput != "" {
			out.HTML = f.htmlOutput
			if err := writeArtifact(f.htmlOutput, []byte(res.Document.Content), env.Stdout); err != nil {
				return err
			}
		}
	}

	if f.json {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	} else if !f.common.quiet {
		printCorrectResult(env.Stderr, out, cfg.Correction.Threshold)
	}

	if runErr != nil {
		return withHint(fmt.Errorf("correcting %q: %w", f.topic, runErr), 1)
	}
	if !res.State.Succeeded() {
		return fmt.Errorf("%w: best score %.3f after %d iteration(s) (%s)",
			ErrQualityNotReached, res.Score, res.Iterations, res.State)
	}
	return nil
}

// newCorrectionLoop wires the draft generator and visual analyzer to the
// engine's renderer.
func newCorrectionLoop(cfg *config.Config, eng *engine, styles assets.StyleLoader, reportPath string, env *Environment) *renderloop.CorrectionLoop {
	policy := cfg.Policy()
	opts := []renderloop.LoopOption{renderloop.WithLoopLogger(eng.logger)}
	if eng.gate != nil {
		opts = append(opts, renderloop.WithLoopGate(eng.gate))
	}
	if reportPath != "" {
		opts = append(opts, renderloop.WithReporter(&fileReporter{path: reportPath, now: env.Now}))
	}
	return renderloop.NewCorrectionLoop(
		draft.New(styles, eng.logger),
		eng.renderer,
		visual.New(),
		renderloop.LoopConfig{
			Policy:           &policy,
			GeneratorTimeout: cfg.Correction.GeneratorTimeout.Value(),
			AnalyzerTimeout:  cfg.Correction.AnalyzerTimeout.Value(),
		},
		opts...,
	)
}

// printCorrectResult outputs a human-readable session summary.
func printCorrectResult(w io.Writer, out correctOutput, threshold float64) {
	fmt.Fprintf(w, "Session %s: %s\n", out.SessionID, out.State)
	fmt.Fprintf(w, "  Score:      %.3f (threshold %.2f)\n", out.Score, threshold)
	fmt.Fprintf(w, "  Iterations: %d\n", out.Iterations)
	if len(out.Trace) > 0 {
		scores := make([]string, len(out.Trace))
		for i, s := range out.Trace {
			scores[i] = fmt.Sprintf("%.3f", s)
		}
		fmt.Fprintf(w, "  Trace:      %s\n", strings.Join(scores, " -> "))
	}
	if out.Output != "" {
		fmt.Fprintf(w, "  Output:     %s (revision %d)\n", out.Output, out.Revision)
	}
	if out.HTML != "" {
		fmt.Fprintf(w, "  HTML:       %s\n", out.HTML)
	}
	fmt.Fprintf(w, "  Elapsed:    %s\n", out.Elapsed)
}
