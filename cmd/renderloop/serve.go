package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/alnah/go-renderloop"
	"github.com/alnah/go-renderloop/internal/assets"
	"github.com/alnah/go-renderloop/internal/server"
)

// readHeaderTimeout bounds slow clients before a handler runs.
const readHeaderTimeout = 10 * time.Second

// runServe starts the HTTP API and blocks until ctx is canceled, then
// drains in-flight requests within the configured shutdown timeout.
func runServe(ctx context.Context, args []string, env *Environment) error {
	fs, f, err := parseServeFlags(args, env)
	if err != nil {
		return err
	}
	if err := validateWorkers(f.workers); err != nil {
		return err
	}

	cfg, err := loadConfig(f.common)
	if err != nil {
		return err
	}
	if fs.Changed("host") {
		cfg.Server.Host = f.host
	}
	if fs.Changed("port") {
		cfg.Server.Port = f.port
	}
	if fs.Changed("mode") {
		cfg.Server.Mode = f.mode
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := newLogger(cfg, env)

	styles, err := assets.NewResolver(cfg.Correction.StylesPath)
	if err != nil {
		return fmt.Errorf("loading draft styles: %w", err)
	}

	eng, err := startEngine(ctx, env, cfg, logger, f.workers)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	srvCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	router := server.NewRouter(srvCtx, server.Deps{
		Renderer:        eng.renderer,
		Decks:           eng.renderer,
		DeckConcurrency: eng.pool.Size(),
		Corrector:       newCorrectionLoop(cfg, eng, styles, "", env),
		Pool:            eng.pool,
		Gate:            eng.gate,
		Logger:          logger,
		StartTime:       env.Now(),
		Version:         Version,
		Policy:          cfg.Policy(),
		CorrectFormat:   renderloop.FormatPNG,
	}, server.Config{
		Mode:         cfg.Server.Mode,
		RateLimit:    cfg.Server.RateLimit,
		Burst:        cfg.Server.Burst,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		APIKeys:      cfg.Server.APIKeys,
		CORSOrigin:   cfg.Server.CORSOrigin,
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info("server listening", "addr", ln.Addr().String(), "workers", eng.pool.Size(), "version", Version)

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	timeout := cfg.Server.ShutdownTimeout.Value()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger.Info("shutting down", "timeout", timeout)

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}
