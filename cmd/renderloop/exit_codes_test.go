package main

// Notes:
// - exitCodeFor: every sentinel must map to its documented code even when
//   wrapped, since commands add context with fmt.Errorf("%w").

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/alnah/go-renderloop"
	"github.com/alnah/go-renderloop/internal/assets"
	"github.com/alnah/go-renderloop/internal/config"
)

// ---------------------------------------------------------------------------
// TestExitCodeFor - Error classification
// ---------------------------------------------------------------------------

func TestExitCodeFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"compliance", &renderloop.ComplianceError{Action: renderloop.ActionRender}, ExitCompliance},
		{"quality", ErrQualityNotReached, ExitQuality},
		{"pool exhausted", renderloop.ErrPoolExhausted, ExitCapacity},
		{"degraded", renderloop.ErrDegradedCapacity, ExitCapacity},
		{"pool closed", renderloop.ErrPoolClosed, ExitCapacity},
		{"pool startup", renderloop.ErrPoolStartup, ExitBrowser},
		{"browser connect", renderloop.ErrBrowserConnect, ExitBrowser},
		{"page load", renderloop.ErrPageLoad, ExitBrowser},
		{"pdf", renderloop.ErrPDFGeneration, ExitBrowser},
		{"screenshot", renderloop.ErrScreenshot, ExitBrowser},
		{"timeout", renderloop.ErrRenderTimeout, ExitBrowser},
		{"worker faulted", renderloop.ErrWorkerFaulted, ExitBrowser},
		{"not exist", os.ErrNotExist, ExitIO},
		{"permission", os.ErrPermission, ExitIO},
		{"read input", ErrReadInput, ExitIO},
		{"write output", ErrWriteOutput, ExitIO},
		{"no input", ErrNoInput, ExitIO},
		{"config not found", config.ErrConfigNotFound, ExitUsage},
		{"config value", config.ErrInvalidValue, ExitUsage},
		{"empty document", renderloop.ErrEmptyDocument, ExitUsage},
		{"format", renderloop.ErrInvalidFormat, ExitUsage},
		{"margin", renderloop.ErrInvalidMargin, ExitUsage},
		{"policy", renderloop.ErrInvalidPolicy, ExitUsage},
		{"pool config", renderloop.ErrInvalidPoolConfig, ExitUsage},
		{"styles path", assets.ErrInvalidBasePath, ExitUsage},
		{"workers", ErrInvalidWorkerCount, ExitUsage},
		{"topic", ErrMissingTopic, ExitUsage},
		{"unknown", errors.New("boom"), ExitGeneral},
		{"canceled", context.Canceled, ExitGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
			if tt.err == nil {
				return
			}
			wrapped := fmt.Errorf("rendering doc.html: %w", tt.err)
			if got := exitCodeFor(wrapped); got != tt.want {
				t.Errorf("exitCodeFor(wrapped %v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestExitCodeFor_Precedence(t *testing.T) {
	t.Parallel()

	// A batch failure carries the first per-file error.
	err := fmt.Errorf("%w: 1 of 2: %w", ErrBatchFailed, renderloop.ErrPoolExhausted)
	if got := exitCodeFor(err); got != ExitCapacity {
		t.Errorf("exitCodeFor(batch/exhausted) = %d, want %d", got, ExitCapacity)
	}

	// Compliance wins over anything it is joined with.
	err = errors.Join(os.ErrNotExist, &renderloop.ComplianceError{})
	if got := exitCodeFor(err); got != ExitCompliance {
		t.Errorf("exitCodeFor(joined) = %d, want %d", got, ExitCompliance)
	}
}
