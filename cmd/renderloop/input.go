package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alnah/go-renderloop/internal/fileutil"
	"github.com/alnah/go-renderloop/internal/pipeline"
)

// stdioPath selects stdin for input and stdout for output.
const stdioPath = "-"

// isMarkdown reports whether path names a markdown file.
func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// documentLoader reads inputs into render-ready HTML.
type documentLoader struct {
	md    *pipeline.Markdown
	css   string
	stdin io.Reader
}

// newDocumentLoader reads the optional stylesheet once for all documents.
func newDocumentLoader(cssPath string, stdin io.Reader) (*documentLoader, error) {
	l := &documentLoader{md: pipeline.NewMarkdown(), stdin: stdin}
	if cssPath != "" {
		data, err := os.ReadFile(cssPath) // #nosec G304 -- user-provided path
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrReadInput, cssPath, err)
		}
		l.css = string(data)
	}
	return l, nil
}

// Load returns the HTML for path. Markdown is converted first; relative
// asset references are resolved against the file's directory.
func (l *documentLoader) Load(ctx context.Context, path string) (string, error) {
	var (
		data    []byte
		err     error
		baseDir string
	)
	if path == stdioPath {
		data, err = io.ReadAll(l.stdin)
	} else {
		data, err = os.ReadFile(path) // #nosec G304 -- user-provided path
		baseDir = filepath.Dir(path)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrReadInput, path, err)
	}

	content := string(data)
	if isMarkdown(path) {
		title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		content, err = l.md.ToHTML(ctx, title, content)
		if err != nil {
			return "", fmt.Errorf("converting %s: %w", path, err)
		}
	}

	if baseDir != "" {
		content, err = pipeline.RewriteRelativePaths(content, baseDir)
		if err != nil {
			return "", fmt.Errorf("resolving assets of %s: %w", path, err)
		}
	}

	if l.css != "" {
		content = pipeline.InjectCSS(ctx, content, l.css)
	}
	return content, nil
}

// resolveOutputPath picks where the artifact for input goes. An empty
// output writes next to the input; an existing directory receives a file
// named after the input.
func resolveOutputPath(input, output, ext string) string {
	if output == "" {
		if input == stdioPath {
			return stdioPath
		}
		return fileutil.ReplaceExt(input, ext)
	}
	if output != stdioPath {
		if info, err := os.Stat(output); err == nil && info.IsDir() {
			name := "document"
			if input != stdioPath {
				name = filepath.Base(input)
			}
			return filepath.Join(output, fileutil.ReplaceExt(name, ext))
		}
	}
	return output
}

// writeArtifact writes data to path, or to w when path is "-".
func writeArtifact(path string, data []byte, w io.Writer) error {
	if path == stdioPath {
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("%w: stdout: %w", ErrWriteOutput, err)
		}
		return nil
	}
	if err := fileutil.WriteFileAtomic(path, data, filePermissions); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteOutput, path, err)
	}
	return nil
}
