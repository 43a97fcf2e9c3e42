package renderloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Collaborator timeouts applied when LoopConfig leaves them zero.
const (
	DefaultGeneratorTimeout = 2 * time.Minute
	DefaultAnalyzerTimeout  = time.Minute
)

// renderService is the part of *Renderer the loop needs.
type renderService interface {
	Render(ctx context.Context, job RenderJob) (*RenderResult, error)
}

// Compile-time interface check.
var _ renderService = (*Renderer)(nil)

// LoopConfig configures a CorrectionLoop.
type LoopConfig struct {
	// Policy is used when a request carries none. nil means DefaultPolicy.
	Policy           *Policy
	GeneratorTimeout time.Duration
	AnalyzerTimeout  time.Duration
}

// LoopOption configures a CorrectionLoop.
type LoopOption func(*CorrectionLoop)

// WithReporter records every finished run with rep.
func WithReporter(rep Reporter) LoopOption {
	return func(l *CorrectionLoop) {
		l.reporter = rep
	}
}

// WithLoopLogger sets the loop's logger.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *CorrectionLoop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLoopGate checks the correction request itself before anything is
// generated. Renders are still checked by the renderer's own gate.
func WithLoopGate(gate Gate) LoopOption {
	return func(l *CorrectionLoop) {
		l.gate = gate
	}
}

// RunRequest starts one correction session.
type RunRequest struct {
	Topic   string
	Outline []string
	// Policy overrides the loop's configured policy.
	Policy *Policy
	// Job is the template for every render; its Document is replaced by each
	// revision.
	Job RenderJob
}

// CorrectionResult is the outcome of Run. Artifact and Document hold the
// best-scoring revision, which is not necessarily the last one.
type CorrectionResult struct {
	SessionID  string        `json:"session_id"`
	State      TerminalState `json:"state"`
	Artifact   *RenderResult `json:"-"`
	Document   Document      `json:"document"`
	Score      float64       `json:"score"`
	Iterations int           `json:"iterations"`
	Trace      []float64     `json:"trace"`
	Elapsed    time.Duration `json:"elapsed"`
}

// CorrectionLoop drives documents through render, analysis and fix cycles
// until they converge or a bound is reached. One loop serves any number of
// concurrent runs; each run owns its session.
type CorrectionLoop struct {
	gen      Generator
	renderer renderService
	analyzer Analyzer
	cfg      LoopConfig
	policy   Policy
	gate     Gate
	reporter Reporter
	logger   *slog.Logger
}

// NewCorrectionLoop wires the collaborators of a loop.
func NewCorrectionLoop(gen Generator, renderer renderService, analyzer Analyzer, cfg LoopConfig, opts ...LoopOption) *CorrectionLoop {
	if cfg.GeneratorTimeout <= 0 {
		cfg.GeneratorTimeout = DefaultGeneratorTimeout
	}
	if cfg.AnalyzerTimeout <= 0 {
		cfg.AnalyzerTimeout = DefaultAnalyzerTimeout
	}
	policy := DefaultPolicy()
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}
	l := &CorrectionLoop{
		gen:      gen,
		renderer: renderer,
		analyzer: analyzer,
		cfg:      cfg,
		policy:   policy,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes one session to a terminal state.
//
// Converged, BudgetExhausted and NoImprovement return a result and a nil
// error. Any failure returns a result in state Failed, carrying the best
// revision seen so far if any, together with the cause.
func (l *CorrectionLoop) Run(ctx context.Context, req RunRequest) (*CorrectionResult, error) {
	policy := l.policy
	if req.Policy != nil {
		policy = *req.Policy
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	sess := NewCorrectionSession(policy)
	logger := l.logger.With("session_id", sess.ID)

	state, err := l.run(ctx, sess, req, logger)
	if err != nil {
		state = StateFailed
		logger.Warn("correction failed", "iterations", sess.Iterations, "error", err)
	} else {
		logger.Info("correction finished", "state", state, "score", sess.BestScore, "iterations", sess.Iterations)
	}

	res := &CorrectionResult{
		SessionID:  sess.ID,
		State:      state,
		Iterations: sess.Iterations,
		Trace:      sess.Trace,
		Elapsed:    time.Since(start),
	}
	if sess.HasBest() {
		res.Artifact = sess.BestArtifact
		res.Document = sess.Best
		res.Score = sess.BestScore
	}
	l.report(ctx, res, logger)
	return res, err
}

// run is the state machine: generate, then render, analyze and decide until
// a terminal decision.
func (l *CorrectionLoop) run(ctx context.Context, sess *CorrectionSession, req RunRequest, logger *slog.Logger) (TerminalState, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	job := req.Job
	if job.Action == "" {
		job.Action = ActionCorrect
	}
	if err := enforce(ctx, l.gate, logger, job.Action, ComplianceInput{
		Document: req.Topic + "\n" + strings.Join(req.Outline, "\n"),
		Audit:    job.Audit,
	}); err != nil {
		return "", err
	}

	doc, err := l.generate(ctx, req.Topic, req.Outline)
	if err != nil {
		return "", err
	}
	sess.Current = doc

	for {
		job.Document = sess.Current.Content
		artifact, err := l.renderer.Render(ctx, job)
		if err != nil {
			return "", fmt.Errorf("rendering revision %d: %w", sess.Current.Revision, err)
		}

		analysis, err := l.analyze(ctx, artifact)
		if err != nil {
			return "", err
		}

		d := sess.record(analysis.Score, artifact)
		logger.Debug("revision analyzed",
			"iteration", sess.Iterations,
			"revision", sess.Current.Revision,
			"score", analysis.Score,
			"issues", len(analysis.Issues),
		)
		if state, done := d.terminal(); done {
			return state, nil
		}

		fixed, err := l.fix(ctx, sess.Current, SortIssues(analysis.Issues))
		if err != nil {
			return "", err
		}
		sess.Advance(fixed)
	}
}

func (l *CorrectionLoop) generate(ctx context.Context, topic string, outline []string) (Document, error) {
	gctx, cancel := context.WithTimeout(ctx, l.cfg.GeneratorTimeout)
	defer cancel()

	doc, err := l.gen.Generate(gctx, topic, outline)
	if err != nil {
		return Document{}, collaboratorError(ctx, ErrGeneratorFailure, "generate", err)
	}
	if strings.TrimSpace(doc.Content) == "" {
		return Document{}, fmt.Errorf("%w: generate: %w", ErrGeneratorFailure, ErrEmptyDocument)
	}
	return doc, nil
}

func (l *CorrectionLoop) fix(ctx context.Context, doc Document, issues []QualityIssue) (Document, error) {
	gctx, cancel := context.WithTimeout(ctx, l.cfg.GeneratorTimeout)
	defer cancel()

	fixed, err := l.gen.Fix(gctx, doc, issues)
	if err != nil {
		return Document{}, collaboratorError(ctx, ErrGeneratorFailure, "fix", err)
	}
	if strings.TrimSpace(fixed.Content) == "" {
		return Document{}, fmt.Errorf("%w: fix: %w", ErrGeneratorFailure, ErrEmptyDocument)
	}
	if fixed.Revision <= doc.Revision {
		fixed.Revision = doc.Revision + 1
	}
	return fixed, nil
}

func (l *CorrectionLoop) analyze(ctx context.Context, artifact *RenderResult) (*QualityAnalysis, error) {
	actx, cancel := context.WithTimeout(ctx, l.cfg.AnalyzerTimeout)
	defer cancel()

	analysis, err := l.analyzer.Analyze(actx, artifact.Data, artifact.Format)
	if err != nil {
		return nil, collaboratorError(ctx, ErrAnalyzerFailure, "analyze", err)
	}
	if err := analysis.Validate(); err != nil {
		return nil, err
	}
	return analysis, nil
}

// collaboratorError wraps a collaborator failure in its sentinel. The
// caller's own cancellation is returned as is.
func collaboratorError(ctx context.Context, sentinel error, op string, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", sentinel, op, err)
}

// report hands the outcome to the reporter, detached from cancellation.
func (l *CorrectionLoop) report(ctx context.Context, res *CorrectionResult, logger *slog.Logger) {
	if l.reporter == nil {
		return
	}
	r := Report{
		SessionID:  res.SessionID,
		State:      res.State,
		Score:      res.Score,
		Iterations: res.Iterations,
	}
	if res.Artifact != nil {
		r.ArtifactSize = len(res.Artifact.Data)
		r.Format = res.Artifact.Format
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := l.reporter.Report(rctx, r); err != nil {
		logger.Warn("reporting correction result failed", "error", err)
	}
}
