package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alnah/go-renderloop"
)

// Renderer renders one job.
type Renderer interface {
	Render(ctx context.Context, job renderloop.RenderJob) (*renderloop.RenderResult, error)
}

// Corrector runs correction sessions.
type Corrector interface {
	Run(ctx context.Context, req renderloop.RunRequest) (*renderloop.CorrectionResult, error)
}

// DeckRenderer assembles multi-slide PDFs.
type DeckRenderer interface {
	RenderDeck(ctx context.Context, deck renderloop.DeckJob) (*renderloop.DeckResult, error)
}

// PoolStatser reports worker pool occupancy.
type PoolStatser interface {
	Stats() renderloop.PoolStats
}

// Deps are the services the handlers call. Corrector, Decks and Gate may be
// nil; the correction and deck endpoints are registered only when their
// service is set.
type Deps struct {
	Renderer  Renderer
	Corrector Corrector
	Decks     DeckRenderer
	Pool      PoolStatser
	Gate      renderloop.Gate
	Logger    *slog.Logger
	StartTime time.Time
	Version   string
	// Policy is the base that correction requests override field by field.
	Policy renderloop.Policy
	// CorrectFormat is used by correction requests that name no format.
	CorrectFormat renderloop.Format
	// DeckConcurrency bounds parallel slide renders per deck. 0 uses the
	// renderer's default.
	DeckConcurrency int
}

// Config holds the HTTP-facing settings.
type Config struct {
	Mode         string
	RateLimit    float64
	Burst        int
	MaxBodyBytes int64
	APIKeys      []string
	// CORSOrigin is "*", one allowed origin, or empty to send no CORS
	// headers.
	CORSOrigin string
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → CORS → RequestID → Logger
//	API:     Auth → RateLimit → BodyLimit
//
// ctx bounds the rate limiter's background eviction.
func NewRouter(ctx context.Context, deps Deps, cfg Config) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.StartTime.IsZero() {
		deps.StartTime = time.Now()
	}
	if deps.Policy == (renderloop.Policy{}) {
		deps.Policy = renderloop.DefaultPolicy()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORS(cfg.CORSOrigin))
	r.Use(RequestID())
	r.Use(Logger(deps.Logger))

	// Health stays outside auth for load balancer checks.
	r.GET("/health", Health(deps))

	v1 := r.Group("/v1")
	v1.Use(Auth(cfg.APIKeys))
	v1.Use(RateLimit(ctx, cfg.RateLimit, cfg.Burst))
	v1.Use(BodyLimit(cfg.MaxBodyBytes))

	v1.GET("/pool", PoolStats(deps))
	v1.POST("/render", Render(deps))
	if deps.Corrector != nil {
		v1.POST("/correct", Correct(deps))
	}
	if deps.Decks != nil {
		v1.POST("/deck", Deck(deps))
	}

	return r
}
