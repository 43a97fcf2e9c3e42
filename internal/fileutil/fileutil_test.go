package fileutil_test

// Notes:
// - TestWriteTempFile_CreateTempError modifies TMPDIR and cannot run in parallel.
// - WriteFileAtomic error branches after CreateTemp (write, chmod, rename) are
//   not tested because triggering them is platform-specific.
// These are acceptable gaps: we test observable behavior, not implementation details.

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alnah/go-renderloop/internal/fileutil"
)

// ---------------------------------------------------------------------------
// TestValidateExtension - Extension validation
// ---------------------------------------------------------------------------

func TestValidateExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		extension string
		wantErr   error
	}{
		{"valid extension html", "html", nil},
		{"valid extension png", "png", nil},
		{"empty extension", "", fileutil.ErrExtensionEmpty},
		{"forward slash path traversal", "../etc/passwd", fileutil.ErrExtensionPathTraversal},
		{"backslash path traversal", "..\\windows\\system32", fileutil.ErrExtensionPathTraversal},
		{"null byte injection", "html\x00exe", fileutil.ErrExtensionPathTraversal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := fileutil.ValidateExtension(tt.extension)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateExtension(%q) = %v, want %v", tt.extension, err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestWriteTempFile - Temporary file creation
// ---------------------------------------------------------------------------

func TestWriteTempFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		content   string
		extension string
	}{
		{"html document", "<html><body>Slide</body></html>", "html"},
		{"empty content", "", "html"},
		{"unicode content", "<p>café naïve résumé</p>", "html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path, cleanup, err := fileutil.WriteTempFile(tt.content, tt.extension)
			if err != nil {
				t.Fatalf("WriteTempFile() error = %v", err)
			}
			defer cleanup()

			if !strings.Contains(filepath.Base(path), "renderloop-") {
				t.Errorf("path %q does not contain prefix 'renderloop-'", path)
			}
			if !strings.HasSuffix(path, "."+tt.extension) {
				t.Errorf("path %q does not have extension .%s", path, tt.extension)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("failed to read temp file: %v", err)
			}
			if string(data) != tt.content {
				t.Errorf("file content = %q, want %q", string(data), tt.content)
			}
		})
	}
}

func TestWriteTempFile_Cleanup(t *testing.T) {
	t.Parallel()

	path, cleanup, err := fileutil.WriteTempFile("<p>x</p>", "html")
	if err != nil {
		t.Fatalf("WriteTempFile() error = %v", err)
	}

	cleanup()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("temp file still exists after cleanup at %s", path)
	}
}

func TestWriteTempFile_InvalidExtension(t *testing.T) {
	t.Parallel()

	_, cleanup, err := fileutil.WriteTempFile("content", "../foo")
	if cleanup != nil {
		defer cleanup()
	}
	if !errors.Is(err, fileutil.ErrExtensionPathTraversal) {
		t.Errorf("WriteTempFile() error = %v, want ErrExtensionPathTraversal", err)
	}
}

// NOTE: This test modifies TMPDIR and cannot run in parallel.
func TestWriteTempFile_CreateTempError(t *testing.T) {
	t.Setenv("TMPDIR", "/nonexistent/path/that/does/not/exist")

	_, cleanup, err := fileutil.WriteTempFile("content", "html")
	if cleanup != nil {
		defer cleanup()
	}
	if err == nil {
		t.Fatal("WriteTempFile() expected error when TMPDIR is invalid, got nil")
	}
	if !strings.Contains(err.Error(), "creating temp file") {
		t.Errorf("error = %q, want error containing 'creating temp file'", err)
	}
}

// ---------------------------------------------------------------------------
// TestWriteFileAtomic - Artifact writes
// ---------------------------------------------------------------------------

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.pdf")

	if err := fileutil.WriteFileAtomic(path, []byte("%PDF-1.7 first"), 0o644); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := fileutil.WriteFileAtomic(path, []byte("%PDF-1.7 second"), 0o644); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "%PDF-1.7 second" {
		t.Errorf("content = %q, want second write", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1 (no leftover temp files)", len(entries))
	}
}

func TestWriteFileAtomic_MissingDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing", "out.pdf")
	if err := fileutil.WriteFileAtomic(path, []byte("x"), 0o644); err == nil {
		t.Error("WriteFileAtomic() into missing directory = nil, want error")
	}
}

// ---------------------------------------------------------------------------
// TestFileExists / TestIsHTML / TestListHTML - Path helpers
// ---------------------------------------------------------------------------

func TestFileExists(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "test.html")
	if err := os.WriteFile(testFile, []byte("<p/>"), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"existing file returns true", testFile, true},
		{"directory returns false", tempDir, false},
		{"nonexistent path returns false", filepath.Join(tempDir, "nope"), false},
		{"empty path returns false", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := fileutil.FileExists(tt.path); got != tt.want {
				t.Errorf("FileExists(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestIsHTML(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"slide.html":      true,
		"SLIDE.HTM":       true,
		"deck/a.html":     true,
		"notes.md":        false,
		"html":            false,
		"archive.html.gz": false,
	}

	for path, want := range tests {
		if got := fileutil.IsHTML(path); got != want {
			t.Errorf("IsHTML(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestListHTML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"b.html", "a.htm", "notes.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.html"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := fileutil.ListHTML(dir)
	if err != nil {
		t.Fatalf("ListHTML() error = %v", err)
	}
	want := []string{filepath.Join(dir, "a.htm"), filepath.Join(dir, "b.html")}
	if len(got) != len(want) {
		t.Fatalf("ListHTML() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListHTML()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestListHTML_NotDirectory(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "x.html")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := fileutil.ListHTML(file); !errors.Is(err, fileutil.ErrNotDirectory) {
		t.Errorf("ListHTML(file) error = %v, want ErrNotDirectory", err)
	}
}

func TestReplaceExt(t *testing.T) {
	t.Parallel()

	if got := fileutil.ReplaceExt("deck/slide.html", "pdf"); got != "deck/slide.pdf" {
		t.Errorf("ReplaceExt() = %q, want deck/slide.pdf", got)
	}
	if got := fileutil.ReplaceExt("noext", "png"); got != "noext.png" {
		t.Errorf("ReplaceExt() = %q, want noext.png", got)
	}
}
