package server

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alnah/go-renderloop"
)

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// busyRatio is the in-use share of the pool above which health is degraded.
const busyRatio = 0.8

// Health returns a handler for GET /health.
//
// Degrades status when the pool has lost capacity or more than 80% of its
// workers are checked out. Reports 503 when no worker is alive.
func Health(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := deps.Pool.Stats()

		status, code := StatusHealthy, http.StatusOK
		switch {
		case stats.Live == 0 && stats.Starting == 0:
			status, code = StatusUnhealthy, http.StatusServiceUnavailable
		case stats.Degraded:
			status = StatusDegraded
		case stats.Size > 0 && float64(stats.InUse) > float64(stats.Size)*busyRatio:
			status = StatusDegraded
		}

		resp := HealthResponse{
			Status:  status,
			Uptime:  time.Since(deps.StartTime).Round(time.Second).String(),
			Version: deps.Version,
			Pool:    stats,
			Memory:  memoryStats(),
		}
		if deps.Gate != nil {
			sum := renderloop.Summarize(deps.Gate.Check(c.Request.Context(), renderloop.ActionHealthCheck,
				renderloop.ComplianceInput{Audit: map[string]string{"request_id": requestID(c)}}))
			resp.Compliance = &sum
		}
		c.JSON(code, resp)
	}
}

func memoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	const mb = 1 << 20
	return MemoryStats{
		AllocMB:     float64(m.Alloc) / mb,
		SysMB:       float64(m.Sys) / mb,
		HeapInUseMB: float64(m.HeapInuse) / mb,
		NumGC:       m.NumGC,
		Goroutines:  runtime.NumGoroutine(),
	}
}

// PoolStats returns a handler for GET /v1/pool.
func PoolStats(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Pool.Stats())
	}
}

// Render returns a handler for POST /v1/render. The response body is the
// artifact itself, or an ArtifactResponse when the client accepts JSON.
func Render(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RenderRequest
		if !bind(c, &req) {
			return
		}

		job := req.job()
		job.Document = req.Document
		job.Action = req.Action
		job.Audit = withRequestID(job.Audit, requestID(c))

		res, err := deps.Renderer.Render(c.Request.Context(), job)
		if err != nil {
			respondError(c, err)
			return
		}

		if wantsJSON(c) {
			c.JSON(http.StatusOK, ArtifactResponse{
				Format:           res.Format,
				ContentType:      res.Format.ContentType(),
				Artifact:         res.Data,
				FileSize:         len(res.Data),
				ProcessingTimeMs: res.Elapsed.Milliseconds(),
				WorkerID:         res.WorkerID,
			})
			return
		}
		c.Header("X-Worker-ID", res.WorkerID)
		c.Header("X-Render-Elapsed-Ms", strconv.FormatInt(res.Elapsed.Milliseconds(), 10))
		c.Data(http.StatusOK, res.Format.ContentType(), res.Data)
	}
}

// Deck returns a handler for POST /v1/deck. Slides are assembled by
// ascending order into one PDF, answered as an attachment or, when the
// client accepts JSON, as an ArtifactResponse.
func Deck(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DeckRequest
		if !bind(c, &req) {
			return
		}

		job := req.job()
		job.Action = req.Action
		job.Audit = withRequestID(job.Audit, requestID(c))
		slides := make([]renderloop.Slide, len(req.Slides))
		for i, s := range req.Slides {
			slides[i] = renderloop.Slide{HTML: s.HTML, Order: s.Order}
		}

		res, err := deps.Decks.RenderDeck(c.Request.Context(), renderloop.DeckJob{
			Slides:      slides,
			Metadata:    req.Metadata,
			Job:         job,
			Concurrency: deps.DeckConcurrency,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		if wantsJSON(c) {
			c.JSON(http.StatusOK, ArtifactResponse{
				Format:           res.Format,
				ContentType:      res.Format.ContentType(),
				Artifact:         res.Data,
				FileSize:         len(res.Data),
				ProcessingTimeMs: res.Elapsed.Milliseconds(),
				SlidesCount:      res.Slides,
				Pages:            res.Pages,
			})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="deck.pdf"`)
		c.Header("X-Slides-Count", strconv.Itoa(res.Slides))
		c.Header("X-Render-Elapsed-Ms", strconv.FormatInt(res.Elapsed.Milliseconds(), 10))
		c.Data(http.StatusOK, res.Format.ContentType(), res.Data)
	}
}

// wantsJSON reports whether the Accept header asks for JSON.
func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}

// Correct returns a handler for POST /v1/correct.
//
// Sessions that end without converging still answer 200 with their state.
// Failed sessions answer with the mapped error status and carry the best
// revision seen, if any.
func Correct(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CorrectRequest
		if !bind(c, &req) {
			return
		}

		job := req.job()
		if job.Format == "" {
			job.Format = deps.CorrectFormat
		}
		job.Action = renderloop.ActionCorrect
		job.Audit = withRequestID(job.Audit, requestID(c))

		res, err := deps.Corrector.Run(c.Request.Context(), renderloop.RunRequest{
			Topic:   req.Topic,
			Outline: req.Outline,
			Policy:  req.Policy.apply(deps.Policy),
			Job:     job,
		})
		if res == nil {
			if err == nil {
				err = errors.New("correction returned no result")
			}
			respondError(c, err)
			return
		}

		body := correctResponse(res)
		status := http.StatusOK
		if err != nil {
			var d ErrorDetail
			status, d = detail(err)
			body.Error = &d
			_ = c.Error(err)
		}
		c.JSON(status, body)
	}
}

func correctResponse(res *renderloop.CorrectionResult) CorrectResponse {
	out := CorrectResponse{
		SessionID:  res.SessionID,
		State:      res.State,
		Score:      res.Score,
		Iterations: res.Iterations,
		Trace:      res.Trace,
		Revision:   res.Document.Revision,
		Document:   res.Document.Content,
		ElapsedMs:  res.Elapsed.Milliseconds(),
	}
	if out.Trace == nil {
		out.Trace = []float64{}
	}
	if res.Artifact != nil {
		out.Format = res.Artifact.Format
		out.ContentType = res.Artifact.Format.ContentType()
		out.Artifact = res.Artifact.Data
	}
	return out
}

// bind decodes the JSON body, answering 413 or 400 on failure.
func bind(c *gin.Context, v any) bool {
	err := c.ShouldBindJSON(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: ErrorDetail{Code: CodeBodyTooLarge, Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)},
		})
		return false
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{Code: CodeInvalidInput, Message: err.Error()},
	})
	return false
}

// withRequestID returns a copy of audit carrying the request id.
func withRequestID(audit map[string]string, id string) map[string]string {
	if len(audit) == 0 {
		return audit
	}
	out := maps.Clone(audit)
	if _, ok := out["request_id"]; !ok && id != "" {
		out["request_id"] = id
	}
	return out
}
