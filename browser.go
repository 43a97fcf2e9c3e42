package renderloop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/alnah/go-renderloop/internal/fileutil"
	"github.com/alnah/go-renderloop/internal/process"
)

// Page readiness tuning.
const (
	networkIdleWindow = 300 * time.Millisecond
	domStableWindow   = 200 * time.Millisecond
)

// fontsReadyJS resolves once every web font used by the document has loaded.
const fontsReadyJS = `() => document.fonts.ready.then(() => true)`

// BrowserOptions configures headless Chrome processes.
type BrowserOptions struct {
	// Bin is the Chrome binary. Empty uses ROD_BROWSER_BIN, then rod's lookup
	// (which downloads Chromium on first run if none is found).
	Bin string
	// NoSandbox disables the Chrome sandbox. It is forced on under CI and
	// whenever a pre-installed binary is used (containers).
	NoSandbox bool
	// Flags are extra command-line switches, without the leading dashes.
	Flags  map[string]string
	Logger *slog.Logger
}

// NewBrowserFactory returns a ProcessFactory that launches one headless Chrome
// per call.
func NewBrowserFactory(opts BrowserOptions) ProcessFactory {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return func(ctx context.Context) (Process, error) {
		return launchBrowser(ctx, opts)
	}
}

// browserProcess is a Process backed by one Chrome instance.
type browserProcess struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	pid      int
	logger   *slog.Logger
}

// Compile-time interface check.
var _ Process = (*browserProcess)(nil)

func launchBrowser(ctx context.Context, opts BrowserOptions) (*browserProcess, error) {
	l := launcher.New().Context(ctx)

	bin := opts.Bin
	if bin == "" {
		bin = os.Getenv("ROD_BROWSER_BIN")
	}
	if bin != "" {
		l = l.Bin(bin)
	}
	if opts.NoSandbox || bin != "" || os.Getenv("CI") == "true" || os.Getenv("ROD_NO_SANDBOX") == "1" {
		l = l.NoSandbox(true)
	}
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))
	for name, value := range opts.Flags {
		if value == "" {
			l.Set(flags.Flag(name))
			continue
		}
		l.Set(flags.Flag(name), value)
	}

	u, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	bp := &browserProcess{
		launcher: l,
		browser:  browser,
		pid:      l.PID(),
		logger:   opts.Logger,
	}
	bp.logger.Debug("browser launched", "pid", bp.pid)
	return bp, nil
}

// Render loads the job's document from a temp file and produces its artifact.
func (b *browserProcess) Render(ctx context.Context, job *RenderJob) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, cleanup, err := fileutil.WriteTempFile(job.Document, "html")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, b.classify(ctx, ErrPageCreate, err)
	}
	// Closed with the original page so cleanup works after ctx expires.
	defer func() { _ = page.Close() }()

	pg := page.Context(ctx)

	vp := job.Viewport
	if vp == nil {
		vp = DefaultViewport()
	}
	if err := pg.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: vp.Scale,
	}); err != nil {
		return nil, b.classify(ctx, ErrPageCreate, err)
	}

	// The idle listener must exist before navigation or in-flight requests
	// are missed.
	waitIdle := pg.WaitRequestIdle(networkIdleWindow, nil, nil, nil)
	if err := pg.Navigate("file://" + path); err != nil {
		return nil, b.classify(ctx, ErrPageLoad, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return nil, b.classify(ctx, ErrPageLoad, err)
	}
	waitIdle()
	if err := pg.WaitDOMStable(domStableWindow, 0); err != nil {
		return nil, b.classify(ctx, ErrPageLoad, err)
	}
	if _, err := pg.Eval(fontsReadyJS); err != nil {
		return nil, b.classify(ctx, ErrPageLoad, err)
	}

	if job.Format == FormatPNG {
		data, err := pg.Screenshot(true, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
		if err != nil {
			return nil, b.classify(ctx, ErrScreenshot, err)
		}
		return data, nil
	}

	reader, err := pg.PDF(buildPDFOptions(job))
	if err != nil {
		return nil, b.classify(ctx, ErrPDFGeneration, err)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, b.classify(ctx, ErrPDFGeneration, fmt.Errorf("reading PDF stream: %w", err))
	}
	return data, nil
}

// classify maps a CDP failure to a sentinel. Deadlines become ErrRenderTimeout
// and a dead browser becomes ErrWorkerFaulted so the handle gets recycled.
func (b *browserProcess) classify(ctx context.Context, sentinel, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrRenderTimeout, err)
	case ctx.Err() != nil:
		return ctx.Err()
	case b.pid > 0 && !process.Alive(b.pid):
		return fmt.Errorf("%w: browser pid %d exited: %v", ErrWorkerFaulted, b.pid, err)
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}

// Ping asks the browser for its version over CDP.
func (b *browserProcess) Ping(ctx context.Context) error {
	if _, err := b.browser.Context(ctx).Version(); err != nil {
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	return nil
}

// Close shuts the browser down and kills any helper processes it left behind.
func (b *browserProcess) Close() error {
	err := b.browser.Close()
	b.launcher.Kill()
	if b.pid > 0 && process.Alive(b.pid) {
		if kerr := process.KillProcessGroup(b.pid); kerr != nil {
			b.logger.Debug("killing browser process group", "pid", b.pid, "error", kerr)
		}
	}
	b.launcher.Cleanup()
	if err != nil && process.Alive(b.pid) {
		return fmt.Errorf("closing browser: %w", err)
	}
	return nil
}

// buildPDFOptions maps page settings to Chrome's print parameters.
func buildPDFOptions(job *RenderJob) *proto.PagePrintToPDF {
	page := job.Page
	if page == nil {
		page = DefaultPageSettings()
	}
	width, height := page.Dimensions()
	printBackground := job.PrintBackground == nil || *job.PrintBackground

	return &proto.PagePrintToPDF{
		PaperWidth:      floatPtr(width),
		PaperHeight:     floatPtr(height),
		MarginTop:       floatPtr(page.Margin),
		MarginBottom:    floatPtr(page.Margin),
		MarginLeft:      floatPtr(page.Margin),
		MarginRight:     floatPtr(page.Margin),
		PrintBackground: printBackground,
	}
}

// floatPtr returns a pointer to a float64 value.
func floatPtr(v float64) *float64 {
	return &v
}
