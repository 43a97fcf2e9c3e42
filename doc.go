// Package renderloop renders HTML documents to PDF or PNG on a pool of
// headless Chrome processes and drives a visual-feedback correction loop on
// top of it.
//
// # Quick Start
//
// Start a pool, wrap it in a renderer, render, and close the pool when done:
//
//	pool, err := renderloop.NewPool(ctx, renderloop.NewBrowserFactory(renderloop.BrowserOptions{}),
//	    renderloop.PoolConfig{Size: 2})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
//
//	r := renderloop.NewRenderer(pool)
//	res, err := r.Render(ctx, renderloop.RenderJob{
//	    Document: "<h1>Hello</h1>",
//	    Format:   renderloop.FormatPNG,
//	})
//
// # Worker Pool
//
// A Pool owns a fixed number of processes. Each WorkerHandle is held by at
// most one caller between Acquire and Release. A handle released as faulted,
// one that fails a health check, or one that reached its use threshold is
// drained and replaced; the replacement joins the pool only after it answers
// a ping. Use Pool.With for scoped acquisition that always releases, even on
// panic or cancellation.
//
// # Correction Loop
//
// A CorrectionLoop asks a Generator for a document, renders it, scores it
// with an Analyzer, and asks the Generator to fix the reported issues until
// one of these holds, checked in order:
//
//  1. the score reaches the policy threshold (converged)
//  2. the fix budget is spent (budget exhausted)
//  3. the score did not beat the recent window (no improvement)
//
// The result always carries the best revision seen, not the last one.
//
// # Compliance
//
// A Gate is checked before every render and before a correction run starts.
// Blocked actions fail with a *ComplianceError that matches
// ErrComplianceViolation. PolicyGate is the built-in rule set.
//
// # Errors
//
// Failures wrap the sentinels in errors.go; test them with errors.Is:
//
//	if errors.Is(err, renderloop.ErrPoolExhausted) {
//	    // retry later
//	}
package renderloop
