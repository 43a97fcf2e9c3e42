package main

import (
	"errors"
	"os"

	"github.com/alnah/go-renderloop"
	"github.com/alnah/go-renderloop/internal/assets"
	"github.com/alnah/go-renderloop/internal/config"
)

// Exit codes for the renderloop CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess    = 0 // Command completed
	ExitGeneral    = 1 // General/unexpected error
	ExitUsage      = 2 // Invalid flags, config, or validation
	ExitIO         = 3 // File not found, permission denied
	ExitBrowser    = 4 // Browser/Chrome errors
	ExitCapacity   = 5 // Worker pool exhausted, degraded or closed
	ExitCompliance = 6 // Blocked by the compliance gate
	ExitQuality    = 7 // Correction ended below the quality threshold
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Compliance (exit 6)
	if errors.Is(err, renderloop.ErrComplianceViolation) {
		return ExitCompliance
	}

	// Quality (exit 7)
	if errors.Is(err, ErrQualityNotReached) {
		return ExitQuality
	}

	// Capacity (exit 5)
	if errors.Is(err, renderloop.ErrPoolExhausted) ||
		errors.Is(err, renderloop.ErrDegradedCapacity) ||
		errors.Is(err, renderloop.ErrPoolClosed) {
		return ExitCapacity
	}

	// Browser errors (exit 4)
	if errors.Is(err, renderloop.ErrPoolStartup) ||
		errors.Is(err, renderloop.ErrBrowserConnect) ||
		errors.Is(err, renderloop.ErrPageCreate) ||
		errors.Is(err, renderloop.ErrPageLoad) ||
		errors.Is(err, renderloop.ErrPDFGeneration) ||
		errors.Is(err, renderloop.ErrScreenshot) ||
		errors.Is(err, renderloop.ErrRenderTimeout) ||
		errors.Is(err, renderloop.ErrWorkerFaulted) {
		return ExitBrowser
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, ErrReadInput) ||
		errors.Is(err, ErrWriteOutput) ||
		errors.Is(err, ErrNoInput) {
		return ExitIO
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrFieldTooLong) ||
		errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, renderloop.ErrEmptyDocument) ||
		errors.Is(err, renderloop.ErrInvalidFormat) ||
		errors.Is(err, renderloop.ErrInvalidViewport) ||
		errors.Is(err, renderloop.ErrInvalidPageSize) ||
		errors.Is(err, renderloop.ErrInvalidOrientation) ||
		errors.Is(err, renderloop.ErrInvalidMargin) ||
		errors.Is(err, renderloop.ErrInvalidTimeout) ||
		errors.Is(err, renderloop.ErrInvalidPolicy) ||
		errors.Is(err, renderloop.ErrInvalidPoolConfig) ||
		errors.Is(err, assets.ErrInvalidBasePath) ||
		errors.Is(err, ErrInvalidWorkerCount) ||
		errors.Is(err, ErrMissingTopic) {
		return ExitUsage
	}

	return ExitGeneral
}
