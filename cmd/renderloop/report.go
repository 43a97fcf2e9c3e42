package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alnah/go-renderloop"
)

// fileReporter appends one JSON line per finished session.
type fileReporter struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// Compile-time interface check.
var _ renderloop.Reporter = (*fileReporter)(nil)

type reportLine struct {
	Time time.Time `json:"time"`
	renderloop.Report
}

// Report implements renderloop.Reporter.
func (r *fileReporter) Report(_ context.Context, rep renderloop.Report) error {
	line, err := json.Marshal(reportLine{Time: r.now().UTC(), Report: rep})
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePermissions) // #nosec G304 -- user-provided path
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteOutput, r.path, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %s: %w", ErrWriteOutput, r.path, err)
	}
	return f.Close()
}
