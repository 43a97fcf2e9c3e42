package assets

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed styles/*.css
var styles embed.FS

// BaseStyle is the name of the document stylesheet.
const BaseStyle = "base"

// fixPrefix names remedy stylesheets, one per issue category.
const fixPrefix = "fix-"

// StyleLoader loads a CSS style by name (without .css extension).
// Implementations return ErrStyleNotFound for unknown names and
// ErrInvalidAssetName for names with separators or dots.
type StyleLoader interface {
	LoadStyle(name string) (string, error)
}

// FixStyleName returns the style name holding the remedy for category.
func FixStyleName(category string) string {
	return fixPrefix + strings.ToLower(category)
}

// EmbeddedLoader loads styles compiled into the binary.
type EmbeddedLoader struct{}

// NewEmbeddedLoader creates an EmbeddedLoader.
func NewEmbeddedLoader() *EmbeddedLoader {
	return &EmbeddedLoader{}
}

// LoadStyle loads a CSS style from embedded assets by name.
func (e *EmbeddedLoader) LoadStyle(name string) (string, error) {
	if err := ValidateAssetName(name); err != nil {
		return "", err
	}

	content, err := styles.ReadFile("styles/" + name + ".css")
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrStyleNotFound, name)
	}

	return string(content), nil
}

// FixCategories lists the issue categories with an embedded remedy, sorted.
func FixCategories() []string {
	entries, err := fs.ReadDir(styles, "styles")
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".css")
		if strings.HasPrefix(name, fixPrefix) {
			out = append(out, strings.TrimPrefix(name, fixPrefix))
		}
	}
	sort.Strings(out)
	return out
}

// Compile-time interface check.
var _ StyleLoader = (*EmbeddedLoader)(nil)
