package renderloop

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for pool operations.
var (
	ErrPoolExhausted     = errors.New("no worker available before acquire timeout")
	ErrDegradedCapacity  = errors.New("worker pool is running below capacity")
	ErrPoolClosed        = errors.New("worker pool is closed")
	ErrHandleNotInUse    = errors.New("worker handle is not checked out")
	ErrWorkerFaulted     = errors.New("worker process faulted")
	ErrInvalidPoolConfig = errors.New("invalid pool configuration")
)

// Sentinel errors for rendering.
var (
	ErrRenderTimeout  = errors.New("document did not render in time")
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageCreate     = errors.New("failed to create browser page")
	ErrPageLoad       = errors.New("failed to load page")
	ErrPDFGeneration  = errors.New("PDF generation failed")
	ErrScreenshot     = errors.New("screenshot capture failed")

	// Job validation errors.
	ErrEmptyDocument      = errors.New("document content cannot be empty")
	ErrInvalidFormat      = errors.New("invalid output format")
	ErrInvalidViewport    = errors.New("invalid viewport")
	ErrInvalidPageSize    = errors.New("invalid page size")
	ErrInvalidOrientation = errors.New("invalid orientation")
	ErrInvalidMargin      = errors.New("invalid margin")
	ErrInvalidTimeout     = errors.New("invalid timeout")

	// Artifact inspection errors.
	ErrInvalidArtifact = errors.New("artifact is not a valid document")

	// Deck errors.
	ErrEmptyDeck    = errors.New("deck has no slides")
	ErrDeckAssembly = errors.New("failed to assemble deck")
)

// Sentinel errors for the correction loop and its collaborators.
var (
	ErrComplianceViolation = errors.New("compliance gate blocked the action")
	ErrAnalyzerFailure     = errors.New("quality analyzer failed")
	ErrGeneratorFailure    = errors.New("content generator failed")
	ErrInvalidPolicy       = errors.New("invalid correction policy")
)

// ComplianceError reports an action blocked by a Gate.
// It matches ErrComplianceViolation with errors.Is.
type ComplianceError struct {
	Action string
	Result ComplianceResult
}

func (e *ComplianceError) Error() string {
	principles := make([]string, 0, len(e.Result.Violations))
	for _, v := range e.Result.Violations {
		principles = append(principles, v.Principle+"/"+string(v.Severity))
	}
	msg := fmt.Sprintf("%s: action %q (score %.3f)", ErrComplianceViolation, e.Action, e.Result.Score)
	if len(principles) > 0 {
		msg += ": " + strings.Join(principles, ", ")
	}
	return msg
}

func (e *ComplianceError) Unwrap() error {
	return ErrComplianceViolation
}
