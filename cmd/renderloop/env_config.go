package main

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/alnah/go-renderloop/internal/config"
)

// envConfig holds configuration from environment variables.
// Provides CI/CD-friendly overrides without requiring YAML files.
type envConfig struct {
	// Tier 1 - Essential
	ConfigPath string // RENDERLOOP_CONFIG: config file name or path
	Timeout    string // RENDERLOOP_TIMEOUT: per-job render timeout
	Workers    int    // RENDERLOOP_WORKERS: pool size
	Format     string // RENDERLOOP_FORMAT: pdf or png

	// Tier 2 - Browser and logging
	BrowserBin string // RENDERLOOP_BROWSER_BIN: Chrome binary
	NoSandbox  bool   // RENDERLOOP_NO_SANDBOX: disable the Chrome sandbox
	LogLevel   string // RENDERLOOP_LOG_LEVEL: debug, info, warn, error
	LogFormat  string // RENDERLOOP_LOG_FORMAT: text or json

	// Tier 3 - Correction and server
	Threshold     float64 // RENDERLOOP_THRESHOLD: acceptance score
	MaxIterations int     // RENDERLOOP_MAX_ITERATIONS: fix cycles per session
	Host          string  // RENDERLOOP_HOST: listen host
	Port          int     // RENDERLOOP_PORT: listen port
	APIKeys       []string
	CORSOrigin    string // RENDERLOOP_CORS_ORIGIN, or CORS_ORIGIN
}

// knownEnvVars lists valid RENDERLOOP_* environment variables.
// Used to detect typos and warn users about unknown variables.
var knownEnvVars = map[string]bool{
	// Tier 1 - Essential
	"RENDERLOOP_CONFIG":  true,
	"RENDERLOOP_TIMEOUT": true,
	"RENDERLOOP_WORKERS": true,
	"RENDERLOOP_FORMAT":  true,
	// Tier 2 - Browser and logging
	"RENDERLOOP_BROWSER_BIN": true,
	"RENDERLOOP_NO_SANDBOX":  true,
	"RENDERLOOP_LOG_LEVEL":   true,
	"RENDERLOOP_LOG_FORMAT":  true,
	"RENDERLOOP_CONTAINER":   true, // read by doctor only
	// Tier 3 - Correction and server
	"RENDERLOOP_THRESHOLD":      true,
	"RENDERLOOP_MAX_ITERATIONS": true,
	"RENDERLOOP_HOST":           true,
	"RENDERLOOP_PORT":           true,
	"RENDERLOOP_API_KEYS":       true,
	"RENDERLOOP_CORS_ORIGIN":    true,
}

// loadEnvConfig reads configuration from environment variables.
// Unparseable numbers are ignored and left to the config file or defaults.
func loadEnvConfig() *envConfig {
	cfg := &envConfig{
		ConfigPath: os.Getenv("RENDERLOOP_CONFIG"),
		Timeout:    os.Getenv("RENDERLOOP_TIMEOUT"),
		Format:     os.Getenv("RENDERLOOP_FORMAT"),
		BrowserBin: os.Getenv("RENDERLOOP_BROWSER_BIN"),
		LogLevel:   os.Getenv("RENDERLOOP_LOG_LEVEL"),
		LogFormat:  os.Getenv("RENDERLOOP_LOG_FORMAT"),
		Host:       os.Getenv("RENDERLOOP_HOST"),
	}

	if v := os.Getenv("RENDERLOOP_WORKERS"); v != "" {
		if w, err := strconv.Atoi(v); err == nil && w > 0 {
			cfg.Workers = w
		}
	}
	if v := os.Getenv("RENDERLOOP_NO_SANDBOX"); v != "" {
		cfg.NoSandbox, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("RENDERLOOP_THRESHOLD"); v != "" {
		if th, err := strconv.ParseFloat(v, 64); err == nil && th > 0 && th <= 1 {
			cfg.Threshold = th
		}
	}
	if v := os.Getenv("RENDERLOOP_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxIterations = n
		}
	}
	if v := os.Getenv("RENDERLOOP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p <= 65535 {
			cfg.Port = p
		}
	}
	cfg.CORSOrigin = cmp.Or(os.Getenv("RENDERLOOP_CORS_ORIGIN"), os.Getenv("CORS_ORIGIN"))
	if v := os.Getenv("RENDERLOOP_API_KEYS"); v != "" {
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				cfg.APIKeys = append(cfg.APIKeys, k)
			}
		}
	}

	return cfg
}

// warnUnknownEnvVars logs warnings for unrecognized RENDERLOOP_* variables.
// Helps catch typos like RENDERLOOP_WORKER instead of RENDERLOOP_WORKERS.
func warnUnknownEnvVars(w io.Writer) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "RENDERLOOP_") {
			name := strings.SplitN(env, "=", 2)[0]
			if !knownEnvVars[name] {
				fmt.Fprintf(w, "warning: unknown environment variable %s (typo?)\n", name)
			}
		}
	}
}

// applyEnvConfig applies environment variable values to config.
// Set variables win over the config file; CLI flags are applied afterwards.
// Precedence: CLI flags > env vars > config file > defaults.
func applyEnvConfig(env *envConfig, cfg *config.Config) {
	// Tier 1
	if env.Timeout != "" {
		cfg.Render.Timeout = config.Duration(env.Timeout)
	}
	if env.Workers > 0 {
		cfg.Pool.Size = env.Workers
	}
	if env.Format != "" {
		cfg.Render.Format = env.Format
	}

	// Tier 2
	if env.BrowserBin != "" {
		cfg.Browser.Bin = env.BrowserBin
	}
	if env.NoSandbox {
		cfg.Browser.NoSandbox = true
	}
	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		cfg.Log.Format = env.LogFormat
	}

	// Tier 3
	if env.Threshold > 0 {
		cfg.Correction.Threshold = env.Threshold
	}
	if env.MaxIterations > 0 {
		cfg.Correction.MaxIterations = env.MaxIterations
	}
	if env.Host != "" {
		cfg.Server.Host = env.Host
	}
	if env.Port > 0 {
		cfg.Server.Port = env.Port
	}
	if len(env.APIKeys) > 0 {
		cfg.Server.APIKeys = env.APIKeys
	}
	if env.CORSOrigin != "" {
		cfg.Server.CORSOrigin = env.CORSOrigin
	}
}
