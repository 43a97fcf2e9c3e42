package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alnah/go-renderloop"
	"github.com/alnah/go-renderloop/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrFieldTooLong    = errors.New("field exceeds maximum length")
	ErrInvalidValue    = errors.New("invalid config value")
)

// Field length limits.
const (
	MaxPathLength     = 4096
	MaxFlagLength     = 256
	MaxFlags          = 64
	MaxHostLength     = 253 // RFC 1035
	MaxMarkerLength   = 100
	MaxMarkers        = 32
	MaxDurationLength = 20 // "1h30m0.5s"
	MaxAPIKeys        = 64
	MaxAPIKeyLength   = 256
)

// Config holds all configuration for the render service and correction loop.
type Config struct {
	Pool       PoolConfig       `yaml:"pool"`
	Browser    BrowserConfig    `yaml:"browser"`
	Render     RenderConfig     `yaml:"render"`
	Correction CorrectionConfig `yaml:"correction"`
	Compliance ComplianceConfig `yaml:"compliance"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// Duration is a time.ParseDuration string. Empty means unset.
type Duration string

// Value returns the parsed duration, or 0 when unset or invalid.
// Validate reports invalid values.
func (d Duration) Value() time.Duration {
	v, err := time.ParseDuration(string(d))
	if err != nil {
		return 0
	}
	return v
}

func (d Duration) validate(field string) error {
	if d == "" {
		return nil
	}
	if err := validateFieldLength(field, string(d), MaxDurationLength); err != nil {
		return err
	}
	v, err := time.ParseDuration(string(d))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, field, err)
	}
	if v < 0 {
		return fmt.Errorf("%w: %s: must not be negative, got %s", ErrInvalidValue, field, d)
	}
	return nil
}

// PoolConfig defines worker pool sizing and lifecycle.
type PoolConfig struct {
	Size               int      `yaml:"size"`               // 0 = GOMAXPROCS/2 clamped to [1, 8]
	MinSize            int      `yaml:"minSize"`            // 0 = size
	RecycleAfter       int      `yaml:"recycleAfter"`       // uses before a browser is replaced, 0 = never
	HealthInterval     Duration `yaml:"healthInterval"`     // ping on acquire when older, empty = never
	AcquireTimeout     Duration `yaml:"acquireTimeout"`     // default 30s
	RespawnBackoff     Duration `yaml:"respawnBackoff"`     // default 500ms
	RespawnMaxBackoff  Duration `yaml:"respawnMaxBackoff"`  // default 30s
	MaxRespawnAttempts int      `yaml:"maxRespawnAttempts"` // before reporting degraded, default 5
}

// BrowserConfig defines how Chrome is launched.
type BrowserConfig struct {
	Bin       string            `yaml:"bin"` // empty = ROD_BROWSER_BIN or auto-download
	NoSandbox bool              `yaml:"noSandbox"`
	Flags     map[string]string `yaml:"flags"` // extra command-line switches
}

// RenderConfig defines per-job defaults.
type RenderConfig struct {
	Format          string         `yaml:"format"` // "pdf" or "png"
	Viewport        ViewportConfig `yaml:"viewport"`
	Page            PageConfig     `yaml:"page"`
	Timeout         Duration       `yaml:"timeout"`
	RenderAllowance Duration       `yaml:"renderAllowance"` // reserved for rendering when acquire timeout is derived
}

// ViewportConfig defines the browser viewport in CSS pixels.
type ViewportConfig struct {
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	Scale  float64 `yaml:"scale"`
}

// PageConfig defines PDF page settings.
type PageConfig struct {
	Size        string  `yaml:"size"`        // "letter", "a4", "legal"
	Orientation string  `yaml:"orientation"` // "portrait", "landscape"
	Margin      float64 `yaml:"margin"`      // inches
}

// CorrectionConfig defines the auto-correction policy.
type CorrectionConfig struct {
	MaxIterations    int      `yaml:"maxIterations"`
	Threshold        float64  `yaml:"threshold"`
	Window           int      `yaml:"window"` // 0 disables the no-improvement stop
	Epsilon          float64  `yaml:"epsilon"`
	GeneratorTimeout Duration `yaml:"generatorTimeout"`
	AnalyzerTimeout  Duration `yaml:"analyzerTimeout"`
	StylesPath       string   `yaml:"stylesPath"` // overrides embedded draft styles, empty = embedded only
}

// ComplianceConfig defines the policy gate.
type ComplianceConfig struct {
	Enabled         bool     `yaml:"enabled"`
	MinScore        float64  `yaml:"minScore"` // 0 = CONSTITUTIONAL_AI_MIN_SCORE or 0.9
	AllowScripts    bool     `yaml:"allowScripts"`
	RequireAudit    bool     `yaml:"requireAudit"`
	RealDataMarkers []string `yaml:"realDataMarkers"` // empty = ["100%"]
}

// ServerConfig defines the HTTP server.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	Mode            string   `yaml:"mode"`      // "debug", "release", "test"
	RateLimit       float64  `yaml:"rateLimit"` // requests per second per client, 0 = unlimited
	Burst           int      `yaml:"burst"`
	MaxBodyBytes    int64    `yaml:"maxBodyBytes"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
	APIKeys         []string `yaml:"apiKeys"`    // empty = open access
	CORSOrigin      string   `yaml:"corsOrigin"` // "*" = any origin, empty = no CORS headers
}

// LogConfig defines structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "text" or "json"
}

// Validate checks ranges, enumerations, durations and field lengths.
// Called automatically by LoadConfig, but available for callers
// who construct Config manually.
func (c *Config) Validate() error {
	if err := c.validatePool(); err != nil {
		return err
	}
	if err := c.validateBrowser(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateCorrection(); err != nil {
		return err
	}
	if err := c.validateCompliance(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLog()
}

func (c *Config) validatePool() error {
	p := c.Pool
	if p.Size < 0 || p.Size > renderloop.MaxPoolSize {
		return fmt.Errorf("%w: pool.size: must be between 0 and %d, got %d", ErrInvalidValue, renderloop.MaxPoolSize, p.Size)
	}
	if p.MinSize < 0 || (p.Size > 0 && p.MinSize > p.Size) {
		return fmt.Errorf("%w: pool.minSize: must be between 0 and pool.size, got %d", ErrInvalidValue, p.MinSize)
	}
	if p.RecycleAfter < 0 {
		return fmt.Errorf("%w: pool.recycleAfter: must not be negative, got %d", ErrInvalidValue, p.RecycleAfter)
	}
	if p.MaxRespawnAttempts < 0 {
		return fmt.Errorf("%w: pool.maxRespawnAttempts: must not be negative, got %d", ErrInvalidValue, p.MaxRespawnAttempts)
	}
	for field, d := range map[string]Duration{
		"pool.healthInterval":    p.HealthInterval,
		"pool.acquireTimeout":    p.AcquireTimeout,
		"pool.respawnBackoff":    p.RespawnBackoff,
		"pool.respawnMaxBackoff": p.RespawnMaxBackoff,
	} {
		if err := d.validate(field); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateBrowser() error {
	if err := validateFieldLength("browser.bin", c.Browser.Bin, MaxPathLength); err != nil {
		return err
	}
	if len(c.Browser.Flags) > MaxFlags {
		return fmt.Errorf("%w: browser.flags: at most %d flags, got %d", ErrInvalidValue, MaxFlags, len(c.Browser.Flags))
	}
	for k, v := range c.Browser.Flags {
		if strings.TrimSpace(k) == "" || strings.HasPrefix(k, "-") {
			return fmt.Errorf("%w: browser.flags: invalid flag name %q (omit leading dashes)", ErrInvalidValue, k)
		}
		if err := validateFieldLength("browser.flags."+k, k+v, MaxFlagLength); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateRender() error {
	r := c.Render
	if r.Format != "" {
		if _, err := renderloop.ParseFormat(r.Format); err != nil {
			return fmt.Errorf("render.format: %w", err)
		}
	}
	if r.Viewport != (ViewportConfig{}) {
		if err := c.Viewport().Validate(); err != nil {
			return fmt.Errorf("render.viewport: %w", err)
		}
	}
	if r.Page != (PageConfig{}) {
		if err := c.PageSettings().Validate(); err != nil {
			return fmt.Errorf("render.page: %w", err)
		}
	}
	if err := r.Timeout.validate("render.timeout"); err != nil {
		return err
	}
	if err := r.RenderAllowance.validate("render.renderAllowance"); err != nil {
		return err
	}
	if t := r.Timeout.Value(); t > 0 && r.RenderAllowance.Value() > t {
		return fmt.Errorf("%w: render.renderAllowance: exceeds render.timeout", ErrInvalidValue)
	}
	return nil
}

func (c *Config) validateCorrection() error {
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("correction: %w", err)
	}
	if err := validateFieldLength("correction.stylesPath", c.Correction.StylesPath, MaxPathLength); err != nil {
		return err
	}
	if err := c.Correction.GeneratorTimeout.validate("correction.generatorTimeout"); err != nil {
		return err
	}
	return c.Correction.AnalyzerTimeout.validate("correction.analyzerTimeout")
}

func (c *Config) validateCompliance() error {
	if c.Compliance.MinScore < 0 || c.Compliance.MinScore > 1 {
		return fmt.Errorf("%w: compliance.minScore: must be between 0 and 1, got %.2f", ErrInvalidValue, c.Compliance.MinScore)
	}
	if len(c.Compliance.RealDataMarkers) > MaxMarkers {
		return fmt.Errorf("%w: compliance.realDataMarkers: at most %d markers", ErrInvalidValue, MaxMarkers)
	}
	for i, m := range c.Compliance.RealDataMarkers {
		field := fmt.Sprintf("compliance.realDataMarkers[%d]", i)
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("%w: %s: must not be empty", ErrInvalidValue, field)
		}
		if err := validateFieldLength(field, m, MaxMarkerLength); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	s := c.Server
	if err := validateFieldLength("server.host", s.Host, MaxHostLength); err != nil {
		return err
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("%w: server.port: must be between 0 and 65535, got %d", ErrInvalidValue, s.Port)
	}
	switch strings.ToLower(s.Mode) {
	case "", "debug", "release", "test":
	default:
		return fmt.Errorf("%w: server.mode: invalid value %q (must be debug, release, or test)", ErrInvalidValue, s.Mode)
	}
	if s.RateLimit < 0 || s.Burst < 0 || s.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: server: rateLimit, burst and maxBodyBytes must not be negative", ErrInvalidValue)
	}
	if len(s.APIKeys) > MaxAPIKeys {
		return fmt.Errorf("%w: server.apiKeys: at most %d keys", ErrInvalidValue, MaxAPIKeys)
	}
	for i, k := range s.APIKeys {
		if err := validateFieldLength(fmt.Sprintf("server.apiKeys[%d]", i), k, MaxAPIKeyLength); err != nil {
			return err
		}
	}
	if err := validateFieldLength("server.corsOrigin", s.CORSOrigin, MaxHostLength); err != nil {
		return err
	}
	if o := s.CORSOrigin; o != "" && o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
		return fmt.Errorf("%w: server.corsOrigin: %q must be \"*\" or an http(s) origin", ErrInvalidValue, o)
	}
	return s.ShutdownTimeout.validate("server.shutdownTimeout")
}

func (c *Config) validateLog() error {
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: log.level: invalid value %q", ErrInvalidValue, c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format: invalid value %q (must be text or json)", ErrInvalidValue, c.Log.Format)
	}
	return nil
}

// validateFieldLength checks if a field exceeds its maximum allowed length.
func validateFieldLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s (%d chars, max %d)", ErrFieldTooLong, fieldName, len(value), maxLength)
	}
	return nil
}

// Viewport returns the configured viewport, filling unset fields with
// defaults, or nil when none is set.
func (c *Config) Viewport() *renderloop.Viewport {
	v := c.Render.Viewport
	if v == (ViewportConfig{}) {
		return nil
	}
	vp := renderloop.DefaultViewport()
	if v.Width != 0 {
		vp.Width = v.Width
	}
	if v.Height != 0 {
		vp.Height = v.Height
	}
	if v.Scale != 0 {
		vp.Scale = v.Scale
	}
	return vp
}

// PageSettings returns the configured page, filling unset fields with
// defaults, or nil when none is set.
func (c *Config) PageSettings() *renderloop.PageSettings {
	p := c.Render.Page
	if p == (PageConfig{}) {
		return nil
	}
	ps := renderloop.DefaultPageSettings()
	if p.Size != "" {
		ps.Size = p.Size
	}
	if p.Orientation != "" {
		ps.Orientation = p.Orientation
	}
	if p.Margin != 0 {
		ps.Margin = p.Margin
	}
	return ps
}

// Policy returns the correction policy.
func (c *Config) Policy() renderloop.Policy {
	return renderloop.Policy{
		MaxIterations: c.Correction.MaxIterations,
		Threshold:     c.Correction.Threshold,
		Window:        c.Correction.Window,
		Epsilon:       c.Correction.Epsilon,
	}
}

// DefaultConfig returns the configuration used when no file is given.
// LoadConfig decodes files on top of it, so omitted fields keep these values.
func DefaultConfig() *Config {
	policy := renderloop.DefaultPolicy()
	return &Config{
		Pool: PoolConfig{
			AcquireTimeout:     Duration(renderloop.DefaultAcquireTimeout.String()),
			RespawnBackoff:     Duration(renderloop.DefaultRespawnBackoff.String()),
			RespawnMaxBackoff:  Duration(renderloop.DefaultRespawnMaxBackoff.String()),
			MaxRespawnAttempts: renderloop.DefaultMaxRespawnAttempts,
		},
		Render: RenderConfig{
			Format:          string(renderloop.FormatPDF),
			Timeout:         Duration(renderloop.DefaultTimeout.String()),
			RenderAllowance: Duration(renderloop.DefaultRenderAllowance.String()),
		},
		Correction: CorrectionConfig{
			MaxIterations:    policy.MaxIterations,
			Threshold:        policy.Threshold,
			Window:           policy.Window,
			Epsilon:          policy.Epsilon,
			GeneratorTimeout: Duration(renderloop.DefaultGeneratorTimeout.String()),
			AnalyzerTimeout:  Duration(renderloop.DefaultAnalyzerTimeout.String()),
		},
		Compliance: ComplianceConfig{Enabled: true},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			Mode:            "release",
			RateLimit:       10,
			Burst:           20,
			MaxBodyBytes:    5 << 20,
			ShutdownTimeout: "15s",
			CORSOrigin:      "*",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard locations.
// Returns error if the file is not found (no silent fallback).
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	var err error

	if isFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	f, err := os.Open(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	cfg := DefaultConfig()
	if err := yamlutil.DecodeStrict(f, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Marshal renders cfg as YAML, for printing the effective configuration.
func Marshal(cfg *Config) ([]byte, error) {
	return yamlutil.Marshal(cfg)
}

// isFilePath returns true if the string looks like a file path.
func isFilePath(s string) bool {
	return strings.ContainsAny(s, "/\\")
}

// SearchPaths lists where a config named name is looked up, in order:
// the current directory, then ~/.config/go-renderloop/, each with .yaml
// before .yml.
func SearchPaths(name string) []string {
	extensions := []string{".yaml", ".yml"}
	paths := make([]string, 0, len(extensions)*2)
	for _, ext := range extensions {
		paths = append(paths, name+ext)
	}
	if userConfigDir, err := os.UserConfigDir(); err == nil {
		for _, ext := range extensions {
			paths = append(paths, filepath.Join(userConfigDir, "go-renderloop", name+ext))
		}
	}
	return paths
}

// resolveConfigPath returns the first existing path from SearchPaths.
func resolveConfigPath(name string) (string, error) {
	paths := SearchPaths(name)
	for _, p := range paths {
		if fileExists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(paths, ", "))
}

// fileExists returns true if the path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
