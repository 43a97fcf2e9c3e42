package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alnah/go-renderloop"
	"github.com/alnah/go-renderloop/internal/draft"
)

// ---------------------------------------------------------------------------
// Test Infrastructure - Fake browser processes
// ---------------------------------------------------------------------------

// fakePDF is what fake processes return for PDF jobs.
var fakePDF = []byte("%PDF-1.7\n% fake\n")

// pageStyle selects the screenshot a fake process returns.
type pageStyle int

const (
	pageClean pageStyle = iota
	pageBlank
	// pageOverflow is clipped at the right edge until the overflow remedy
	// has been applied to the document.
	pageOverflow
)

// fakeProcess is an in-memory Process standing in for Chrome.
type fakeProcess struct {
	style  pageStyle
	fail   error
	record func(renderloop.RenderJob)
}

func (p *fakeProcess) Render(_ context.Context, job *renderloop.RenderJob) ([]byte, error) {
	if p.record != nil {
		p.record(*job)
	}
	if p.fail != nil {
		return nil, p.fail
	}
	if job.Format == renderloop.FormatPDF {
		return fakePDF, nil
	}
	switch p.style {
	case pageBlank:
		return screenshot(nil), nil
	case pageOverflow:
		if draft.Applied(job.Document)["overflow"] == 0 {
			return screenshot(&image.Rectangle{Min: image.Pt(60, 40), Max: image.Pt(200, 80)}), nil
		}
	}
	return screenshot(&image.Rectangle{Min: image.Pt(40, 40), Max: image.Pt(120, 80)}), nil
}

func (p *fakeProcess) Ping(context.Context) error { return nil }
func (p *fakeProcess) Close() error               { return nil }

// screenshot draws an optional black block on a white 200x200 canvas.
func screenshot(ink *image.Rectangle) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := range 200 {
		for x := range 200 {
			c := color.Color(color.White)
			if ink != nil && image.Pt(x, y).In(*ink) {
				c = color.Black
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// jobLog collects jobs seen by fake processes.
type jobLog struct {
	mu   sync.Mutex
	jobs []renderloop.RenderJob
}

func (l *jobLog) add(j renderloop.RenderJob) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs = append(l.jobs, j)
}

func (l *jobLog) all() []renderloop.RenderJob {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]renderloop.RenderJob(nil), l.jobs...)
}

// testEnv returns an Environment whose browsers are fake processes.
func testEnv(style pageStyle, fail error) (*Environment, *bytes.Buffer, *bytes.Buffer, *jobLog) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	log := &jobLog{}
	env := &Environment{
		Now:    time.Now,
		Stdin:  bytes.NewReader(nil),
		Stdout: stdout,
		Stderr: stderr,
		NewFactory: func(renderloop.BrowserOptions) renderloop.ProcessFactory {
			return func(context.Context) (renderloop.Process, error) {
				return &fakeProcess{style: style, fail: fail, record: log.add}, nil
			}
		},
	}
	return env, stdout, stderr, log
}

// writeFiles creates files under a temp directory and returns it.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("mkdir %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return dir
}

// syncBuffer is a bytes.Buffer safe for concurrent writers, for commands
// that log from background goroutines while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
