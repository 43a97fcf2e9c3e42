package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/alnah/go-renderloop"
)

// Error codes returned in ErrorDetail.Code.
const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeBodyTooLarge   = "BODY_TOO_LARGE"
	CodeRateLimited    = "RATE_LIMITED"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeCompliance     = "COMPLIANCE_VIOLATION"
	CodePoolExhausted  = "POOL_EXHAUSTED"
	CodeDegraded       = "DEGRADED_CAPACITY"
	CodeUnavailable    = "UNAVAILABLE"
	CodeRenderTimeout  = "RENDER_TIMEOUT"
	CodeCollaborator   = "COLLABORATOR_FAILED"
	CodeWorkerFaulted  = "WORKER_FAULTED"
	CodeDeckAssembly   = "DECK_ASSEMBLY_FAILED"
	CodeCanceled       = "CANCELED"
	CodeInternal       = "INTERNAL"
	retryAfterSeconds  = 2
	statusClientClosed = 499
)

// classify maps an error to an HTTP status and code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, renderloop.ErrEmptyDocument),
		errors.Is(err, renderloop.ErrInvalidFormat),
		errors.Is(err, renderloop.ErrInvalidViewport),
		errors.Is(err, renderloop.ErrInvalidPageSize),
		errors.Is(err, renderloop.ErrInvalidOrientation),
		errors.Is(err, renderloop.ErrInvalidMargin),
		errors.Is(err, renderloop.ErrInvalidTimeout),
		errors.Is(err, renderloop.ErrInvalidPolicy),
		errors.Is(err, renderloop.ErrEmptyDeck):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, renderloop.ErrComplianceViolation):
		return http.StatusUnprocessableEntity, CodeCompliance
	case errors.Is(err, renderloop.ErrPoolExhausted):
		return http.StatusServiceUnavailable, CodePoolExhausted
	case errors.Is(err, renderloop.ErrDegradedCapacity):
		return http.StatusServiceUnavailable, CodeDegraded
	case errors.Is(err, renderloop.ErrPoolClosed), errors.Is(err, renderloop.ErrPoolStartup):
		return http.StatusServiceUnavailable, CodeUnavailable
	case errors.Is(err, renderloop.ErrRenderTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeRenderTimeout
	case errors.Is(err, renderloop.ErrAnalyzerFailure), errors.Is(err, renderloop.ErrGeneratorFailure):
		return http.StatusBadGateway, CodeCollaborator
	case errors.Is(err, renderloop.ErrWorkerFaulted):
		return http.StatusInternalServerError, CodeWorkerFaulted
	case errors.Is(err, renderloop.ErrDeckAssembly):
		return http.StatusInternalServerError, CodeDeckAssembly
	case errors.Is(err, context.Canceled):
		return statusClientClosed, CodeCanceled
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// detail builds the error body for err.
func detail(err error) (int, ErrorDetail) {
	status, code := classify(err)
	d := ErrorDetail{Code: code, Message: err.Error()}
	var ce *renderloop.ComplianceError
	if errors.As(err, &ce) {
		d.Compliance = &ce.Result
	}
	return status, d
}

// respondError aborts the request with the mapped status.
// Capacity errors carry a Retry-After header.
func respondError(c *gin.Context, err error) {
	status, d := detail(err)
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: d})
}
