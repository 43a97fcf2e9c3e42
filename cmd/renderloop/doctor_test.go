package main

// Notes:
// - isContainer and checkChrome read the environment; those tests use
//   t.Setenv and cannot run in parallel.
// - The Chrome lookup itself depends on the host, so runDoctorCmd is only
//   checked for well-formed output.

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// TestIsContainer - Container detection
// ---------------------------------------------------------------------------

func TestIsContainer_Override(t *testing.T) {
	t.Setenv("RENDERLOOP_CONTAINER", "1")

	got, hint := isContainer()
	if !got || hint != "RENDERLOOP_CONTAINER=1" {
		t.Errorf("isContainer() = %v, %q", got, hint)
	}
}

func TestIsContainer_Kubernetes(t *testing.T) {
	t.Setenv("RENDERLOOP_CONTAINER", "")
	t.Setenv("container", "")
	t.Setenv("KUBERNETES_SERVICE_HOST", "10.0.0.1")

	got, hint := isContainer()
	if !got {
		t.Fatal("isContainer() = false, want true")
	}
	// /.dockerenv takes precedence when the test itself runs in Docker.
	if hint != "KUBERNETES_SERVICE_HOST" && hint != "/.dockerenv" {
		t.Errorf("hint = %q", hint)
	}
}

// ---------------------------------------------------------------------------
// TestCheckChrome / TestCheckConfig
// ---------------------------------------------------------------------------

func TestCheckChrome_MissingBinary(t *testing.T) {
	t.Parallel()

	r := &doctorResult{Env: envInfo{BrowserBin: filepath.Join(t.TempDir(), "chrome")}}
	checkChrome(r)

	if r.Chrome.Found {
		t.Error("Chrome.Found = true for a missing binary")
	}
	if len(r.Errors) != 1 || !strings.Contains(r.Errors[0], "Chrome not found at") {
		t.Errorf("Errors = %v", r.Errors)
	}
}

func TestCheckConfig_MissingFile(t *testing.T) {
	t.Parallel()

	r := &doctorResult{}
	checkConfig(r, commonFlags{config: filepath.Join(t.TempDir(), "absent.yaml")})

	if r.Config.Valid {
		t.Error("Config.Valid = true for a missing file")
	}
	if len(r.Errors) == 0 {
		t.Error("missing config file was not reported")
	}
}

func TestCheckEnvironment_CIWithoutNoSandbox(t *testing.T) {
	t.Setenv("GITHUB_ACTIONS", "true")

	r := &doctorResult{}
	checkEnvironment(r)

	if !r.Env.CI {
		t.Error("Env.CI = false, want true")
	}
	if len(r.Warnings) != 1 || !strings.Contains(r.Warnings[0], "ROD_NO_SANDBOX") {
		t.Errorf("Warnings = %v", r.Warnings)
	}
}

// ---------------------------------------------------------------------------
// TestPrintDoctorResult - Report rendering
// ---------------------------------------------------------------------------

func TestPrintDoctorResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result doctorResult
		want   []string
	}{
		{
			name: "ready",
			result: doctorResult{
				Status: doctorReady,
				Chrome: chromeInfo{Found: true, Path: "/usr/bin/chromium", Version: "Chromium 130", Sandbox: true},
				Env:    envInfo{OS: "linux", Arch: "amd64", CPUs: 8},
				System: systemInfo{TempWritable: true, PoolSize: 4},
				Config: configInfo{Source: "defaults", Valid: true, MinScore: 0.9, Remedies: []string{"blank", "overflow"}},
			},
			want: []string{
				"[OK] Found at /usr/bin/chromium",
				"Sandbox: enabled",
				"linux/amd64 (8 CPUs)",
				"Pool size: 4",
				"Compliance minimum score: 0.90",
				"Draft remedies: blank, overflow",
				"Status: Ready to render",
			},
		},
		{
			name: "errors",
			result: doctorResult{
				Status: doctorErrors,
				Env:    envInfo{Container: true, ContainerHint: "/.dockerenv"},
				Config: configInfo{Source: "broken.yaml"},
				Errors: []string{"Chrome/Chromium not found"},
			},
			want: []string{
				"[ERROR] Not found",
				"Container: detected (/.dockerenv)",
				"Source: broken.yaml (invalid)",
				"Temp directory: not writable",
				"Status: Not ready (see errors above)",
			},
		},
		{
			name: "warnings",
			result: doctorResult{
				Status:   doctorWarnings,
				Chrome:   chromeInfo{Found: true, Path: "/c"},
				Config:   configInfo{Source: "defaults", Valid: true},
				Warnings: []string{"compliance gate is disabled"},
			},
			want: []string{
				"Sandbox: disabled",
				"[WARN] compliance gate is disabled",
				"Status: Ready with warnings",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			printDoctorResult(&buf, &tt.result)
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestRunDoctorCmd_JSON(t *testing.T) {
	env, stdout, _, _ := testEnv(pageClean, nil)

	code := runDoctorCmd([]string{"--json"}, env)
	if code != ExitSuccess && code != ExitGeneral {
		t.Fatalf("exit = %d", code)
	}

	var got doctorResult
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("decoding report: %v\n%s", err, stdout)
	}
	if got.Status == "" || got.Env.OS == "" || !got.Config.Valid || len(got.Config.Remedies) == 0 {
		t.Errorf("report = %+v", got)
	}
	if (code == ExitGeneral) != (got.Status == doctorErrors) {
		t.Errorf("exit %d does not match status %q", code, got.Status)
	}
}

func TestRunDoctorCmd_BadFlag(t *testing.T) {
	env, _, _, _ := testEnv(pageClean, nil)
	if code := runDoctorCmd([]string{"--bogus"}, env); code != ExitUsage {
		t.Errorf("exit = %d, want %d", code, ExitUsage)
	}
}
