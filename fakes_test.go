package renderloop

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Test Fakes - Process and factory
// ---------------------------------------------------------------------------

// usageTracker records how many renders run at once across processes.
type usageTracker struct {
	cur atomic.Int32
	max atomic.Int32
}

func (u *usageTracker) enter() {
	if u == nil {
		return
	}
	n := u.cur.Add(1)
	for {
		m := u.max.Load()
		if n <= m || u.max.CompareAndSwap(m, n) {
			return
		}
	}
}

func (u *usageTracker) leave() {
	if u == nil {
		return
	}
	u.cur.Add(-1)
}

// fakeProcess is an in-memory Process.
type fakeProcess struct {
	n         int
	delay     time.Duration
	renderErr error
	panicMsg  string
	usage     *usageTracker
	// output, when set, replaces the default "format:document" artifact.
	output func(job *RenderJob) []byte

	mu      sync.Mutex
	pingErr error
	// hang makes Ping block until its context ends; hanging receives a
	// value each time it starts to.
	hang    bool
	hanging chan struct{}

	busy     atomic.Bool
	overlaps atomic.Int32
	renders  atomic.Int32
	pings    atomic.Int32
	closed   atomic.Bool
}

func (p *fakeProcess) Render(ctx context.Context, job *RenderJob) ([]byte, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("%w: render on closed process %d", ErrWorkerFaulted, p.n)
	}
	if !p.busy.CompareAndSwap(false, true) {
		p.overlaps.Add(1)
	} else {
		defer p.busy.Store(false)
	}
	p.usage.enter()
	defer p.usage.leave()
	p.renders.Add(1)

	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.renderErr != nil {
		return nil, p.renderErr
	}
	if p.output != nil {
		return p.output(job), nil
	}
	return []byte(string(job.Format) + ":" + job.Document), nil
}

func (p *fakeProcess) Ping(ctx context.Context) error {
	p.pings.Add(1)
	if p.closed.Load() {
		return fmt.Errorf("process %d closed", p.n)
	}
	p.mu.Lock()
	hang, hanging, err := p.hang, p.hanging, p.pingErr
	p.mu.Unlock()
	if hang {
		if hanging != nil {
			select {
			case hanging <- struct{}{}:
			default:
			}
		}
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (p *fakeProcess) Close() error {
	p.closed.Store(true)
	return nil
}

func (p *fakeProcess) setPingErr(err error) {
	p.mu.Lock()
	p.pingErr = err
	p.mu.Unlock()
}

func (p *fakeProcess) hangPings(signal chan struct{}) {
	p.mu.Lock()
	p.hang, p.hanging = true, signal
	p.mu.Unlock()
}

// fakeFactory builds fakeProcesses and can fail or block selected starts.
type fakeFactory struct {
	// fail returns the start error for the n-th call (1-based).
	fail func(n int) error
	// setup configures the n-th process before it is returned.
	setup func(n int, p *fakeProcess)
	// block, when set, holds every call after blockAfter until closed.
	block      chan struct{}
	blockAfter int
	usage      *usageTracker

	mu    sync.Mutex
	calls int
	procs []*fakeProcess
}

func (f *fakeFactory) New(ctx context.Context) (Process, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	if f.block != nil && n > f.blockAfter {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail != nil {
		if err := f.fail(n); err != nil {
			return nil, err
		}
	}
	p := &fakeProcess{n: n, usage: f.usage}
	if f.setup != nil {
		f.setup(n, p)
	}
	f.mu.Lock()
	f.procs = append(f.procs, p)
	f.mu.Unlock()
	return p, nil
}

func (f *fakeFactory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFactory) Procs() []*fakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeProcess(nil), f.procs...)
}

// newTestPool starts a pool on f with fast respawns and registers Close.
func newTestPool(t *testing.T, f *fakeFactory, cfg PoolConfig) *Pool {
	t.Helper()
	if cfg.RespawnBackoff == 0 {
		cfg.RespawnBackoff = time.Millisecond
	}
	if cfg.RespawnMaxBackoff == 0 {
		cfg.RespawnMaxBackoff = 5 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = discardLogger()
	}
	p, err := NewPool(context.Background(), f.New, cfg)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// ---------------------------------------------------------------------------
// Test Fakes - Correction loop collaborators
// ---------------------------------------------------------------------------

// fakeGenerator appends the revision number to the document on each fix.
type fakeGenerator struct {
	genErr error
	fixErr error
	// fixErrAt fails the fix that would produce this revision.
	fixErrAt int

	mu         sync.Mutex
	fixes      int
	lastIssues []QualityIssue
}

func (g *fakeGenerator) Generate(ctx context.Context, topic string, outline []string) (Document, error) {
	if g.genErr != nil {
		return Document{}, g.genErr
	}
	return Document{Content: "<h1>" + topic + "</h1>", Revision: 0}, nil
}

func (g *fakeGenerator) Fix(ctx context.Context, doc Document, issues []QualityIssue) (Document, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fixes++
	g.lastIssues = issues
	next := doc.Revision + 1
	if g.fixErr != nil && (g.fixErrAt == 0 || g.fixErrAt == next) {
		return Document{}, g.fixErr
	}
	return Document{Content: fmt.Sprintf("%s<!-- r%d -->", doc.Content, next), Revision: next}, nil
}

func (g *fakeGenerator) Fixes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fixes
}

// scriptedAnalyzer returns scores in order, repeating the last one.
type scriptedAnalyzer struct {
	scores []float64
	issues []QualityIssue
	err    error
	errAt  int // 1-based call that fails, 0 means err applies to every call

	mu    sync.Mutex
	calls int
}

func (a *scriptedAnalyzer) Analyze(ctx context.Context, artifact []byte, format Format) (*QualityAnalysis, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil && (a.errAt == 0 || a.errAt == a.calls) {
		return nil, a.err
	}
	i := min(a.calls-1, len(a.scores)-1)
	return &QualityAnalysis{Score: a.scores[i], Issues: a.issues}, nil
}

func (a *scriptedAnalyzer) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// stubRenderer echoes the document back as the artifact.
type stubRenderer struct {
	err   error
	errAt int

	mu    sync.Mutex
	calls int
	jobs  []RenderJob
}

func (r *stubRenderer) Render(ctx context.Context, job RenderJob) (*RenderResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.jobs = append(r.jobs, job)
	if r.err != nil && (r.errAt == 0 || r.errAt == r.calls) {
		return nil, r.err
	}
	format := job.Format
	if format == "" {
		format = FormatPDF
	}
	return &RenderResult{Data: []byte(job.Document), Format: format, WorkerID: "stub"}, nil
}

// recordingReporter keeps every report.
type recordingReporter struct {
	mu      sync.Mutex
	reports []Report
	err     error
}

func (r *recordingReporter) Report(ctx context.Context, rep Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
	return r.err
}
