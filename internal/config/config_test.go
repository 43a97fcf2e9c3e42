package config

// Notes:
// - Name resolution tests change the working directory and XDG_CONFIG_HOME,
//   so they use t.Chdir/t.Setenv and do not run in parallel.

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alnah/go-renderloop"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

// ---------------------------------------------------------------------------
// TestDefaultConfig - Defaults
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	if cfg.Pool.AcquireTimeout.Value() != renderloop.DefaultAcquireTimeout {
		t.Errorf("Pool.AcquireTimeout = %s, want %s", cfg.Pool.AcquireTimeout, renderloop.DefaultAcquireTimeout)
	}
	if cfg.Render.Timeout.Value() != renderloop.DefaultTimeout {
		t.Errorf("Render.Timeout = %s, want %s", cfg.Render.Timeout, renderloop.DefaultTimeout)
	}
	if cfg.Policy() != renderloop.DefaultPolicy() {
		t.Errorf("Policy() = %+v, want %+v", cfg.Policy(), renderloop.DefaultPolicy())
	}
	if !cfg.Compliance.Enabled {
		t.Error("Compliance.Enabled = false, want true")
	}
	if cfg.Viewport() != nil || cfg.PageSettings() != nil {
		t.Error("Viewport()/PageSettings() should be nil when unset")
	}
}

func TestDuration_Value(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   Duration
		want time.Duration
	}{
		{"", 0},
		{"250ms", 250 * time.Millisecond},
		{"1m30s", 90 * time.Second},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := tt.in.Value(); got != tt.want {
			t.Errorf("Duration(%q).Value() = %s, want %s", tt.in, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// TestConfig_Validate - Field checks
// ---------------------------------------------------------------------------

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
		wantMsg string
	}{
		{"defaults", func(*Config) {}, nil, ""},
		{"pool size too large", func(c *Config) { c.Pool.Size = 99 }, ErrInvalidValue, "pool.size"},
		{"min size above size", func(c *Config) { c.Pool.Size = 2; c.Pool.MinSize = 3 }, ErrInvalidValue, "pool.minSize"},
		{"negative recycle", func(c *Config) { c.Pool.RecycleAfter = -1 }, ErrInvalidValue, "pool.recycleAfter"},
		{"bad duration", func(c *Config) { c.Pool.HealthInterval = "often" }, ErrInvalidValue, "pool.healthInterval"},
		{"negative duration", func(c *Config) { c.Pool.RespawnBackoff = "-1s" }, ErrInvalidValue, "pool.respawnBackoff"},
		{"duration too long", func(c *Config) { c.Pool.AcquireTimeout = Duration(strings.Repeat("1", 30) + "s") }, ErrFieldTooLong, "pool.acquireTimeout"},
		{"dashed browser flag", func(c *Config) { c.Browser.Flags = map[string]string{"--headless": ""} }, ErrInvalidValue, "browser.flags"},
		{"long browser bin", func(c *Config) { c.Browser.Bin = strings.Repeat("x", MaxPathLength+1) }, ErrFieldTooLong, "browser.bin"},
		{"unknown format", func(c *Config) { c.Render.Format = "gif" }, renderloop.ErrInvalidFormat, "render.format"},
		{"viewport too small", func(c *Config) { c.Render.Viewport = ViewportConfig{Width: 10, Height: 10} }, renderloop.ErrInvalidViewport, "render.viewport"},
		{"page margin only", func(c *Config) { c.Render.Page = PageConfig{Margin: 1} }, nil, ""},
		{"bad orientation", func(c *Config) { c.Render.Page = PageConfig{Orientation: "sideways"} }, renderloop.ErrInvalidOrientation, "render.page"},
		{"allowance exceeds timeout", func(c *Config) { c.Render.Timeout = "2s"; c.Render.RenderAllowance = "3s" }, ErrInvalidValue, "render.renderAllowance"},
		{"threshold above one", func(c *Config) { c.Correction.Threshold = 1.5 }, renderloop.ErrInvalidPolicy, "correction"},
		{"negative window", func(c *Config) { c.Correction.Window = -1 }, renderloop.ErrInvalidPolicy, "correction"},
		{"min score above one", func(c *Config) { c.Compliance.MinScore = 2 }, ErrInvalidValue, "compliance.minScore"},
		{"blank marker", func(c *Config) { c.Compliance.RealDataMarkers = []string{" "} }, ErrInvalidValue, "realDataMarkers[0]"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, ErrInvalidValue, "server.port"},
		{"unknown mode", func(c *Config) { c.Server.Mode = "prod" }, ErrInvalidValue, "server.mode"},
		{"negative rate", func(c *Config) { c.Server.RateLimit = -1 }, ErrInvalidValue, "server"},
		{"cors origin without scheme", func(c *Config) { c.Server.CORSOrigin = "example.com" }, ErrInvalidValue, "server.corsOrigin"},
		{"unknown log level", func(c *Config) { c.Log.Level = "trace" }, ErrInvalidValue, "log.level"},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, ErrInvalidValue, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Validate() = %q, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestConfig_PageSettings(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Render.Page = PageConfig{Size: "a4"}
	ps := cfg.PageSettings()
	if ps.Size != "a4" || ps.Orientation != renderloop.OrientationPortrait || ps.Margin != renderloop.DefaultMargin {
		t.Errorf("PageSettings() = %+v, want a4 with default orientation and margin", ps)
	}

	cfg.Render.Viewport = ViewportConfig{Width: 640}
	vp := cfg.Viewport()
	if vp.Width != 640 || vp.Height != renderloop.DefaultViewportHeight || vp.Scale != 1 {
		t.Errorf("Viewport() = %+v, want width 640 with default height and scale", vp)
	}
}

// ---------------------------------------------------------------------------
// TestLoadConfig - Parsing and lookup
// ---------------------------------------------------------------------------

func TestLoadConfig_FilePath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, "worker.yaml", `
pool:
  size: 3
  recycleAfter: 100
  healthInterval: 1m
browser:
  flags:
    disable-gpu: ""
render:
  format: png
  viewport: {width: 1024, height: 768}
correction:
  threshold: 0.9
  window: 0
log:
  format: json
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Pool.Size != 3 || cfg.Pool.RecycleAfter != 100 || cfg.Pool.HealthInterval.Value() != time.Minute {
		t.Errorf("Pool = %+v", cfg.Pool)
	}
	if _, ok := cfg.Browser.Flags["disable-gpu"]; !ok {
		t.Errorf("Browser.Flags = %v, want disable-gpu", cfg.Browser.Flags)
	}
	if cfg.Render.Format != "png" || cfg.Viewport().Width != 1024 {
		t.Errorf("Render = %+v", cfg.Render)
	}
	if cfg.Correction.Threshold != 0.9 || cfg.Correction.Window != 0 {
		t.Errorf("Correction = %+v", cfg.Correction)
	}
	if cfg.Correction.MaxIterations != renderloop.DefaultMaxIterations {
		t.Errorf("MaxIterations = %d, want default kept", cfg.Correction.MaxIterations)
	}
	if cfg.Log.Format != "json" || cfg.Log.Level != "info" {
		t.Errorf("Log = %+v, want json format and default level", cfg.Log)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"unknown field", "pool:\n  workers: 4\n", ErrConfigParse},
		{"malformed yaml", "pool: [size\n", ErrConfigParse},
		{"invalid value", "server:\n  port: -1\n", ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfig(t, dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml", tt.content)
			if _, err := LoadConfig(path); !errors.Is(err, tt.wantErr) {
				t.Errorf("LoadConfig() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := LoadConfig(""); !errors.Is(err, ErrEmptyConfigName) {
		t.Errorf("LoadConfig(\"\") = %v, want ErrEmptyConfigName", err)
	}
	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("LoadConfig(missing) = %v, want ErrConfigNotFound", err)
	}
}

// NOTE: Changes the working directory and XDG_CONFIG_HOME; cannot run in parallel.
func TestLoadConfig_ByName(t *testing.T) {
	work := t.TempDir()
	xdg := t.TempDir()
	t.Chdir(work)
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("HOME", t.TempDir())

	t.Run("yml in current directory", func(t *testing.T) {
		writeConfig(t, work, "local.yml", "pool:\n  size: 2\n")
		cfg, err := LoadConfig("local")
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.Pool.Size != 2 {
			t.Errorf("Pool.Size = %d, want 2", cfg.Pool.Size)
		}
	})

	t.Run("user config directory", func(t *testing.T) {
		userDir := filepath.Join(xdg, "go-renderloop")
		if err := os.MkdirAll(userDir, 0o750); err != nil {
			t.Fatal(err)
		}
		writeConfig(t, userDir, "shared.yaml", "pool:\n  size: 4\n")
		cfg, err := LoadConfig("shared")
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.Pool.Size != 4 {
			t.Errorf("Pool.Size = %d, want 4", cfg.Pool.Size)
		}
	})

	t.Run("not found lists tried paths", func(t *testing.T) {
		_, err := LoadConfig("nowhere")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("LoadConfig() error = %v, want ErrConfigNotFound", err)
		}
		if !strings.Contains(err.Error(), "nowhere.yaml") || !strings.Contains(err.Error(), "go-renderloop") {
			t.Errorf("error = %q, want tried paths", err)
		}
	})
}

func TestMarshal_RoundTrip(t *testing.T) {
	t.Parallel()

	data, err := Marshal(DefaultConfig())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), "acquireTimeout: 30s") {
		t.Errorf("Marshal() output missing pool.acquireTimeout:\n%s", data)
	}

	path := writeConfig(t, t.TempDir(), "printed.yaml", string(data))
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig(Marshal()) error = %v", err)
	}
	if cfg.Server.Port != DefaultConfig().Server.Port {
		t.Errorf("Server.Port = %d after round trip", cfg.Server.Port)
	}
}

// NOTE: Sets XDG_CONFIG_HOME; cannot run in parallel.
func TestSearchPaths(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	got := SearchPaths("work")
	want := []string{
		"work.yaml",
		"work.yml",
		filepath.Join(xdg, "go-renderloop", "work.yaml"),
		filepath.Join(xdg, "go-renderloop", "work.yml"),
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("SearchPaths() = %v, want %v", got, want)
	}
}
