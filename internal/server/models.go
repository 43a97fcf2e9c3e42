package server

import (
	"time"

	"github.com/alnah/go-renderloop"
)

// ViewportRequest mirrors renderloop.Viewport in JSON.
type ViewportRequest struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Scale  float64 `json:"scale"`
}

// PageRequest mirrors renderloop.PageSettings in JSON.
type PageRequest struct {
	Size        string  `json:"size"`
	Orientation string  `json:"orientation"`
	Margin      float64 `json:"margin"`
}

// JobOptions are the render settings shared by render and correct requests.
type JobOptions struct {
	Format           string            `json:"format"`
	Viewport         *ViewportRequest  `json:"viewport"`
	Page             *PageRequest      `json:"page"`
	PrintBackground  *bool             `json:"print_background"`
	TimeoutMs        int64             `json:"timeout_ms"`
	AcquireTimeoutMs int64             `json:"acquire_timeout_ms"`
	Audit            map[string]string `json:"audit"`
}

// job converts options to a RenderJob. Unset fields stay zero so the
// renderer's defaults apply.
func (o JobOptions) job() renderloop.RenderJob {
	j := renderloop.RenderJob{
		Format:          renderloop.Format(o.Format),
		PrintBackground: o.PrintBackground,
		Timeout:         time.Duration(o.TimeoutMs) * time.Millisecond,
		AcquireTimeout:  time.Duration(o.AcquireTimeoutMs) * time.Millisecond,
		Audit:           o.Audit,
	}
	if o.Viewport != nil {
		j.Viewport = &renderloop.Viewport{Width: o.Viewport.Width, Height: o.Viewport.Height, Scale: o.Viewport.Scale}
	}
	if o.Page != nil {
		j.Page = &renderloop.PageSettings{Size: o.Page.Size, Orientation: o.Page.Orientation, Margin: o.Page.Margin}
	}
	return j
}

// RenderRequest is the body of POST /v1/render.
type RenderRequest struct {
	Document string `json:"document" binding:"required"`
	Action   string `json:"action"`
	JobOptions
}

// SlideRequest is one slide of a deck request.
type SlideRequest struct {
	HTML  string `json:"html" binding:"required"`
	Order int    `json:"order"`
}

// DeckRequest is the body of POST /v1/deck.
type DeckRequest struct {
	Slides   []SlideRequest          `json:"slides" binding:"required,min=1,dive"`
	Metadata renderloop.DeckMetadata `json:"metadata"`
	Action   string                  `json:"action"`
	JobOptions
}

// ArtifactResponse is the JSON form of a rendered artifact, sent instead of
// the raw bytes when the client accepts application/json. Artifact is
// base64-encoded by encoding/json.
type ArtifactResponse struct {
	Format           renderloop.Format `json:"format"`
	ContentType      string            `json:"content_type"`
	Artifact         []byte            `json:"artifact"`
	FileSize         int               `json:"file_size"`
	ProcessingTimeMs int64             `json:"processing_time_ms"`
	WorkerID         string            `json:"worker_id,omitempty"`
	SlidesCount      int               `json:"slides_count,omitempty"`
	Pages            int               `json:"pages,omitempty"`
}

// PolicyRequest overrides the server's correction policy.
type PolicyRequest struct {
	MaxIterations *int     `json:"max_iterations"`
	Threshold     *float64 `json:"threshold"`
	Window        *int     `json:"window"`
	Epsilon       *float64 `json:"epsilon"`
}

// apply overlays the set fields on base.
func (p *PolicyRequest) apply(base renderloop.Policy) *renderloop.Policy {
	if p == nil {
		return nil
	}
	if p.MaxIterations != nil {
		base.MaxIterations = *p.MaxIterations
	}
	if p.Threshold != nil {
		base.Threshold = *p.Threshold
	}
	if p.Window != nil {
		base.Window = *p.Window
	}
	if p.Epsilon != nil {
		base.Epsilon = *p.Epsilon
	}
	return &base
}

// CorrectRequest is the body of POST /v1/correct.
type CorrectRequest struct {
	Topic   string         `json:"topic" binding:"required"`
	Outline []string       `json:"outline"`
	Policy  *PolicyRequest `json:"policy"`
	JobOptions
}

// CorrectResponse is the result of a correction session. Artifact is
// base64-encoded by encoding/json.
type CorrectResponse struct {
	SessionID   string                  `json:"session_id"`
	State       renderloop.TerminalState `json:"state"`
	Score       float64                 `json:"score"`
	Iterations  int                     `json:"iterations"`
	Trace       []float64               `json:"trace"`
	Revision    int                     `json:"revision"`
	ElapsedMs   int64                   `json:"elapsed_ms"`
	Format      renderloop.Format       `json:"format,omitempty"`
	ContentType string                  `json:"content_type,omitempty"`
	Artifact    []byte                  `json:"artifact,omitempty"`
	Document    string                  `json:"document,omitempty"`
	Error       *ErrorDetail            `json:"error,omitempty"`
}

// MemoryStats is the process memory section of the health response.
type MemoryStats struct {
	AllocMB     float64 `json:"alloc_mb"`
	SysMB       float64 `json:"sys_mb"`
	HeapInUseMB float64 `json:"heap_in_use_mb"`
	NumGC       uint32  `json:"num_gc"`
	Goroutines  int     `json:"goroutines"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string                        `json:"status"`
	Uptime     string                        `json:"uptime"`
	Version    string                        `json:"version"`
	Pool       renderloop.PoolStats          `json:"pool"`
	Memory     MemoryStats                   `json:"memory"`
	Compliance *renderloop.ComplianceSummary `json:"compliance,omitempty"`
}

// ErrorDetail is the error body of every failed request.
type ErrorDetail struct {
	Code       string                       `json:"code"`
	Message    string                       `json:"message"`
	Compliance *renderloop.ComplianceResult `json:"compliance,omitempty"`
}

// ErrorResponse wraps ErrorDetail.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}
