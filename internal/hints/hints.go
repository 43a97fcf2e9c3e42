// Package hints provides actionable error hints for common failure scenarios.
// Hints are formatted consistently as "\n  hint: <text>" for appending to error messages.
package hints

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alnah/go-renderloop/internal/fileutil"
)

// IsInContainer detects if running inside a Docker container or similar.
// Checks for /.dockerenv file which Docker creates automatically.
var IsInContainer = func() bool {
	return fileutil.FileExists("/.dockerenv")
}

// ForBrowserConnect returns hints for browser connection errors.
// Detects CI/Docker environment and suggests relevant environment variables.
func ForBrowserConnect() string {
	var hints []string

	inCI := os.Getenv("CI") != "" ||
		os.Getenv("GITHUB_ACTIONS") != "" ||
		os.Getenv("GITLAB_CI") != "" ||
		os.Getenv("JENKINS_URL") != ""

	if (inCI || IsInContainer()) && os.Getenv("ROD_NO_SANDBOX") != "1" {
		hints = append(hints, "set ROD_NO_SANDBOX=1 for Docker/CI")
	}

	if os.Getenv("ROD_BROWSER_BIN") == "" {
		hints = append(hints, "set ROD_BROWSER_BIN to use custom Chrome")
	}

	hints = append(hints, "run 'renderloop doctor' to check the environment")
	return formatHints(hints)
}

// ForRenderTimeout returns a hint about raising the per-job budget.
func ForRenderTimeout() string {
	return format("for heavy documents, use --timeout or render.timeout")
}

// ForPoolExhausted returns hints when no worker became free in time.
func ForPoolExhausted(size int) string {
	return formatHints([]string{
		fmt.Sprintf("all %d workers were busy", size),
		"raise --workers or pool.acquireTimeout",
	})
}

// ForDegradedCapacity returns hints when workers cannot be replaced.
func ForDegradedCapacity() string {
	return formatHints([]string{
		"browsers are failing to start",
		"check memory limits and /dev/shm size",
	})
}

// ForComplianceViolation lists the principles that blocked an action.
func ForComplianceViolation(principles []string) string {
	if len(principles) == 0 {
		return format("review the document for scripts, handlers and unverified claims")
	}
	return format("violated: " + strings.Join(principles, ", "))
}

// ForConfigNotFound returns hints for config file not found errors.
// Suggests --config flag and creating the first searched path inside a
// go-renderloop user config directory.
func ForConfigNotFound(searchedPaths []string) string {
	hint := "use --config /path/to/file.yaml"

	for _, p := range searchedPaths {
		if filepath.Base(filepath.Dir(p)) == "go-renderloop" {
			hint += " or create " + p
			break
		}
	}

	return format(hint)
}

// ForOutputDirectory returns hints for output directory creation errors.
func ForOutputDirectory() string {
	return format("check parent directory exists and is writable")
}

// format creates a single hint string with consistent formatting.
func format(hint string) string {
	if hint == "" {
		return ""
	}
	return "\n  hint: " + hint
}

// formatHints joins multiple hints with consistent formatting.
func formatHints(hints []string) string {
	if len(hints) == 0 {
		return ""
	}
	return format(strings.Join(hints, "; "))
}
