// Package visual is a heuristic reference Analyzer. It scores PNG
// screenshots by pixel statistics (blank output, content clipped at the
// right edge, missing margins, low text contrast, crowding) and PDFs by
// structure.
package visual

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"slices"

	"github.com/alnah/go-renderloop"
)

// Issue categories reported by the analyzer.
const (
	CategoryBlank    = "blank"
	CategoryOverflow = "overflow"
	CategorySpacing  = "spacing"
	CategoryContrast = "contrast"
	CategoryLength   = "length"
)

// Score penalties per issue severity.
var penalties = map[renderloop.IssueSeverity]float64{
	renderloop.IssueCritical: 0.5,
	renderloop.IssueMajor:    0.2,
	renderloop.IssueMinor:    0.05,
}

// blankScoreCap bounds the score of an empty artifact.
const blankScoreCap = 0.1

// maxSamples bounds the pixels read per image.
const maxSamples = 400_000

// ErrUnsupportedFormat is returned for formats the analyzer cannot read.
var ErrUnsupportedFormat = errors.New("unsupported artifact format")

// Analyzer implements renderloop.Analyzer. The zero value is usable.
type Analyzer struct {
	// MinCoverage is the content fraction below which a page is blank.
	MinCoverage float64
	// MaxCoverage is the content fraction above which a page is crowded.
	MaxCoverage float64
	// EdgeFraction is the width of the edge bands as a fraction of the
	// image width.
	EdgeFraction float64
	// MinContrast is the WCAG contrast ratio text must reach.
	MinContrast float64
	// MaxPages flags longer PDFs. 0 disables the check.
	MaxPages int
}

// Compile-time interface check.
var _ renderloop.Analyzer = (*Analyzer)(nil)

// New returns an Analyzer with default thresholds.
func New() *Analyzer {
	return &Analyzer{}
}

func (a *Analyzer) withDefaults() Analyzer {
	c := *a
	if c.MinCoverage <= 0 {
		c.MinCoverage = 0.002
	}
	if c.MaxCoverage <= 0 {
		c.MaxCoverage = 0.6
	}
	if c.EdgeFraction <= 0 {
		c.EdgeFraction = 0.01
	}
	if c.MinContrast <= 0 {
		c.MinContrast = 4.5
	}
	return c
}

// Analyze scores artifact. Decoding failures wrap renderloop.ErrInvalidArtifact.
func (a *Analyzer) Analyze(ctx context.Context, artifact []byte, format renderloop.Format) (*renderloop.QualityAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := a.withDefaults()

	switch format {
	case renderloop.FormatPNG:
		img, err := png.Decode(bytes.NewReader(artifact))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", renderloop.ErrInvalidArtifact, err)
		}
		return analyzeImage(ctx, cfg, img)
	case renderloop.FormatPDF:
		info, err := renderloop.Inspect(artifact, format)
		if err != nil {
			return nil, err
		}
		return analyzePDF(cfg, info), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func analyzePDF(c Analyzer, info *renderloop.ArtifactInfo) *renderloop.QualityAnalysis {
	var issues []renderloop.QualityIssue
	if info.Pages == 0 {
		issues = append(issues, renderloop.QualityIssue{
			Category:    CategoryBlank,
			Severity:    renderloop.IssueCritical,
			Description: "document has no pages",
		})
	}
	if c.MaxPages > 0 && info.Pages > c.MaxPages {
		issues = append(issues, renderloop.QualityIssue{
			Category:     CategoryLength,
			Severity:     renderloop.IssueMinor,
			Description:  fmt.Sprintf("document has %d pages (max %d)", info.Pages, c.MaxPages),
			SuggestedFix: "condense sections",
		})
	}
	return score(issues)
}

// stats are pixel counts over the sampled grid.
type stats struct {
	samples, content           int
	rightSamples, rightContent int
	leftSamples, leftContent   int
	topSamples, topContent     int
	inkLuminance               []float64
}

func analyzeImage(ctx context.Context, c Analyzer, img image.Image) (*renderloop.QualityAnalysis, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return score([]renderloop.QualityIssue{blankIssue()}), nil
	}

	bg := background(img)
	bgLum := luminance(bg)
	step := max(1, int(math.Sqrt(float64(w*h)/maxSamples)))
	band := max(2, int(float64(w)*c.EdgeFraction))

	var s stats
	for y := b.Min.Y; y < b.Max.Y; y += step {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for x := b.Min.X; x < b.Max.X; x += step {
			px := img.At(x, y)
			isContent := distance(px, bg) > 0.08
			s.samples++
			right := x >= b.Max.X-band
			left := x < b.Min.X+band
			top := y < b.Min.Y+band
			if right {
				s.rightSamples++
			}
			if left {
				s.leftSamples++
			}
			if top {
				s.topSamples++
			}
			if !isContent {
				continue
			}
			s.content++
			s.inkLuminance = append(s.inkLuminance, luminance(px))
			if right {
				s.rightContent++
			}
			if left {
				s.leftContent++
			}
			if top {
				s.topContent++
			}
		}
	}

	coverage := float64(s.content) / float64(s.samples)
	if coverage < c.MinCoverage {
		return score([]renderloop.QualityIssue{blankIssue()}), nil
	}

	var issues []renderloop.QualityIssue
	if frac(s.rightContent, s.rightSamples) > 0.01 {
		issues = append(issues, renderloop.QualityIssue{
			Category:     CategoryOverflow,
			Severity:     renderloop.IssueMajor,
			Description:  "content reaches the right edge and is likely clipped",
			SuggestedFix: "constrain wide elements to the page width",
		})
	}
	if frac(s.leftContent, s.leftSamples) > 0.01 || frac(s.topContent, s.topSamples) > 0.01 || coverage > c.MaxCoverage {
		issues = append(issues, renderloop.QualityIssue{
			Category:     CategorySpacing,
			Severity:     renderloop.IssueMinor,
			Description:  fmt.Sprintf("content lacks margins or is crowded (%.0f%% coverage)", coverage*100),
			SuggestedFix: "increase page padding and line height",
		})
	}
	if ratio := contrastRatio(ink(s.inkLuminance, bgLum), bgLum); ratio < c.MinContrast {
		sev := renderloop.IssueMinor
		if ratio < 3 {
			sev = renderloop.IssueMajor
		}
		issues = append(issues, renderloop.QualityIssue{
			Category:     CategoryContrast,
			Severity:     sev,
			Description:  fmt.Sprintf("text contrast ratio %.1f:1 is below %.1f:1", ratio, c.MinContrast),
			SuggestedFix: "use darker text on a light background",
		})
	}
	return score(issues), nil
}

func blankIssue() renderloop.QualityIssue {
	return renderloop.QualityIssue{
		Category:     CategoryBlank,
		Severity:     renderloop.IssueCritical,
		Description:  "rendered output is blank",
		SuggestedFix: "make sure the content is visible",
	}
}

// score subtracts severity penalties from 1 and caps blank output.
func score(issues []renderloop.QualityIssue) *renderloop.QualityAnalysis {
	s := 1.0
	blank := false
	for _, is := range issues {
		s -= penalties[is.Severity]
		blank = blank || is.Category == CategoryBlank
	}
	if blank {
		s = min(s, blankScoreCap)
	}
	s = math.Max(0, math.Round(s*1000)/1000)
	if issues == nil {
		issues = []renderloop.QualityIssue{}
	}
	return &renderloop.QualityAnalysis{Score: s, Issues: issues}
}

// background is the most common of the four corner colors.
func background(img image.Image) color.Color {
	b := img.Bounds()
	corners := []color.Color{
		img.At(b.Min.X, b.Min.Y),
		img.At(b.Max.X-1, b.Min.Y),
		img.At(b.Min.X, b.Max.Y-1),
		img.At(b.Max.X-1, b.Max.Y-1),
	}
	best, bestCount := corners[0], 0
	for _, c := range corners {
		n := 0
		for _, o := range corners {
			if distance(c, o) < 0.02 {
				n++
			}
		}
		if n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

// ink is the luminance of the content pixels farthest from the background,
// taken at the 90th percentile to ignore anti-aliasing.
func ink(lums []float64, bgLum float64) float64 {
	if len(lums) == 0 {
		return bgLum
	}
	sorted := slices.Clone(lums)
	slices.SortFunc(sorted, func(a, b float64) int {
		da, db := math.Abs(a-bgLum), math.Abs(b-bgLum)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return 0
	})
	return sorted[int(float64(len(sorted)-1)*0.9)]
}

// luminance is the WCAG relative luminance of c.
func luminance(c color.Color) float64 {
	r, g, b, _ := c.RGBA()
	lin := func(v uint32) float64 {
		s := float64(v) / 0xffff
		if s <= 0.03928 {
			return s / 12.92
		}
		return math.Pow((s+0.055)/1.055, 2.4)
	}
	return 0.2126*lin(r) + 0.7152*lin(g) + 0.0722*lin(b)
}

func contrastRatio(a, b float64) float64 {
	hi, lo := math.Max(a, b), math.Min(a, b)
	return (hi + 0.05) / (lo + 0.05)
}

// distance is the largest per-channel difference in [0,1].
func distance(a, b color.Color) float64 {
	ar, ag, ab, _ := a.RGBA()
	br, bg, bb, _ := b.RGBA()
	d := func(x, y uint32) float64 { return math.Abs(float64(x)-float64(y)) / 0xffff }
	return math.Max(d(ar, br), math.Max(d(ag, bg), d(ab, bb)))
}

func frac(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
