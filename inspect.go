package renderloop

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// DefaultSizeTolerance is the relative byte-length difference StableWithin
// accepts between two renders of the same document.
const DefaultSizeTolerance = 0.02

// ArtifactInfo describes the structure of a rendered artifact.
type ArtifactInfo struct {
	Format Format `json:"format"`
	Size   int    `json:"size"`
	Pages  int    `json:"pages,omitempty"`  // PDF only
	Width  int    `json:"width,omitempty"`  // PNG only, pixels
	Height int    `json:"height,omitempty"` // PNG only, pixels
}

// Inspect validates an artifact and reads its structure.
func Inspect(data []byte, format Format) (*ArtifactInfo, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty %s", ErrInvalidArtifact, format)
	}
	info := &ArtifactInfo{Format: format, Size: len(data)}

	switch format {
	case FormatPDF:
		conf := pdfConfig()
		if err := api.Validate(bytes.NewReader(data), conf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
		}
		pages, err := api.PageCount(bytes.NewReader(data), conf)
		if err != nil {
			return nil, fmt.Errorf("%w: counting pages: %v", ErrInvalidArtifact, err)
		}
		info.Pages = pages
	case FormatPNG:
		cfg, err := png.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
		}
		info.Width, info.Height = cfg.Width, cfg.Height
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}
	return info, nil
}

// StableWithin reports whether two artifacts are structurally equal (same
// format, page count or dimensions) and their sizes differ by at most
// tolerance, relative to the larger one.
func StableWithin(a, b *ArtifactInfo, tolerance float64) bool {
	if a == nil || b == nil || a.Format != b.Format {
		return false
	}
	if a.Pages != b.Pages || a.Width != b.Width || a.Height != b.Height {
		return false
	}
	larger := max(a.Size, b.Size)
	if larger == 0 {
		return true
	}
	diff := a.Size - b.Size
	if diff < 0 {
		diff = -diff
	}
	return float64(diff)/float64(larger) <= tolerance
}
