package renderloop

import (
	"fmt"
	"strings"
	"time"
)

// Format is the artifact type produced by a render.
type Format string

// Output formats.
const (
	FormatPDF Format = "pdf"
	FormatPNG Format = "png"
)

// ParseFormat converts a user-supplied string to a Format (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPDF, FormatPNG:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q (must be pdf or png)", ErrInvalidFormat, s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "application/pdf"
}

// Page size constants.
const (
	PageSizeLetter = "letter"
	PageSizeA4     = "a4"
	PageSizeLegal  = "legal"
)

// Orientation constants.
const (
	OrientationPortrait  = "portrait"
	OrientationLandscape = "landscape"
)

// Margin bounds in inches.
const (
	MinMargin     = 0.25
	MaxMargin     = 3.0
	DefaultMargin = 0.5
)

// Viewport bounds in CSS pixels.
const (
	MinViewportDimension  = 100
	MaxViewportDimension  = 8192
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 800
)

// DefaultTimeout bounds a whole render when the job does not set one.
const DefaultTimeout = 30 * time.Second

// paperSizes maps page sizes to portrait dimensions in inches.
var paperSizes = map[string][2]float64{
	PageSizeLetter: {8.5, 11},
	PageSizeA4:     {8.27, 11.69},
	PageSizeLegal:  {8.5, 14},
}

// PageSettings configures PDF page dimensions.
type PageSettings struct {
	Size        string  // "letter", "a4", "legal"
	Orientation string  // "portrait", "landscape"
	Margin      float64 // inches, applied to all sides
}

// DefaultPageSettings returns page settings with default values.
func DefaultPageSettings() *PageSettings {
	return &PageSettings{
		Size:        PageSizeLetter,
		Orientation: OrientationPortrait,
		Margin:      DefaultMargin,
	}
}

// Validate checks that page settings are valid.
// Returns nil if p is nil (nil means use defaults).
func (p *PageSettings) Validate() error {
	if p == nil {
		return nil
	}
	if _, ok := paperSizes[strings.ToLower(p.Size)]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPageSize, p.Size)
	}
	switch strings.ToLower(p.Orientation) {
	case OrientationPortrait, OrientationLandscape:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOrientation, p.Orientation)
	}
	if p.Margin < MinMargin || p.Margin > MaxMargin {
		return fmt.Errorf("%w: %.2f (must be between %.2f and %.2f)", ErrInvalidMargin, p.Margin, MinMargin, MaxMargin)
	}
	return nil
}

// Dimensions returns paper width and height in inches, honoring orientation.
func (p *PageSettings) Dimensions() (width, height float64) {
	dims := paperSizes[strings.ToLower(p.Size)]
	width, height = dims[0], dims[1]
	if strings.EqualFold(p.Orientation, OrientationLandscape) {
		width, height = height, width
	}
	return width, height
}

// Viewport is the browser window used for layout and screenshots.
type Viewport struct {
	Width  int
	Height int
	Scale  float64 // device scale factor, 0 means 1
}

// DefaultViewport returns the viewport used when a job does not set one.
func DefaultViewport() *Viewport {
	return &Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight, Scale: 1}
}

// Validate checks viewport bounds. A nil viewport is valid.
func (v *Viewport) Validate() error {
	if v == nil {
		return nil
	}
	if v.Width < MinViewportDimension || v.Width > MaxViewportDimension ||
		v.Height < MinViewportDimension || v.Height > MaxViewportDimension {
		return fmt.Errorf("%w: %dx%d (each side must be between %d and %d)",
			ErrInvalidViewport, v.Width, v.Height, MinViewportDimension, MaxViewportDimension)
	}
	if v.Scale < 0 || v.Scale > 4 {
		return fmt.Errorf("%w: scale %.2f (must be between 0 and 4)", ErrInvalidViewport, v.Scale)
	}
	return nil
}

// RenderJob is one render request. Zero values fall back to documented
// defaults in ApplyDefaults; out-of-range values are rejected by Validate.
type RenderJob struct {
	Document        string            // HTML markup (required)
	Format          Format            // empty = pdf
	Viewport        *Viewport         // nil = DefaultViewport
	Page            *PageSettings     // nil = DefaultPageSettings, PDF only
	PrintBackground *bool             // nil = true
	Timeout         time.Duration     // whole-job budget, 0 = DefaultTimeout
	AcquireTimeout  time.Duration     // 0 = Timeout minus render allowance
	Action          string            // compliance action name
	Audit           map[string]string // audit context for the compliance gate
}

// ApplyDefaults returns a copy of the job with unset fields filled in.
func (j RenderJob) ApplyDefaults() RenderJob {
	if j.Format == "" {
		j.Format = FormatPDF
	} else if f, err := ParseFormat(string(j.Format)); err == nil {
		j.Format = f
	}
	if j.Viewport == nil {
		j.Viewport = DefaultViewport()
	} else if j.Viewport.Scale == 0 {
		vp := *j.Viewport
		vp.Scale = 1
		j.Viewport = &vp
	}
	if j.Page == nil {
		j.Page = DefaultPageSettings()
	}
	if j.PrintBackground == nil {
		on := true
		j.PrintBackground = &on
	}
	if j.Timeout == 0 {
		j.Timeout = DefaultTimeout
	}
	if j.Action == "" {
		j.Action = ActionRender
	}
	return j
}

// Validate checks that required fields are present and in range.
func (j *RenderJob) Validate() error {
	if strings.TrimSpace(j.Document) == "" {
		return ErrEmptyDocument
	}
	if j.Format != "" {
		if _, err := ParseFormat(string(j.Format)); err != nil {
			return err
		}
	}
	if j.Timeout < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, j.Timeout)
	}
	if j.AcquireTimeout < 0 || (j.Timeout > 0 && j.AcquireTimeout > j.Timeout) {
		return fmt.Errorf("%w: acquire timeout %s", ErrInvalidTimeout, j.AcquireTimeout)
	}
	if err := j.Viewport.Validate(); err != nil {
		return err
	}
	return j.Page.Validate()
}

// RenderResult is a produced artifact.
type RenderResult struct {
	Data     []byte
	Format   Format
	Elapsed  time.Duration
	WorkerID string
}

// Option configures a Renderer.
type Option func(*Renderer)
