package renderloop

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// IssueSeverity ranks a quality issue.
type IssueSeverity string

// Issue severities, most severe first.
const (
	IssueCritical IssueSeverity = "critical"
	IssueMajor    IssueSeverity = "major"
	IssueMinor    IssueSeverity = "minor"
)

// rank orders severities; unknown values sort last.
func (s IssueSeverity) rank() int {
	switch s {
	case IssueCritical:
		return 0
	case IssueMajor:
		return 1
	case IssueMinor:
		return 2
	default:
		return 3
	}
}

// Valid reports whether s is a known severity.
func (s IssueSeverity) Valid() bool {
	return s.rank() < 3
}

// QualityIssue is one problem found in a rendered artifact.
type QualityIssue struct {
	Category     string        `json:"category"`
	Severity     IssueSeverity `json:"severity"`
	Description  string        `json:"description"`
	SuggestedFix string        `json:"suggested_fix,omitempty"`
}

// QualityAnalysis is an analyzer's verdict on one artifact.
type QualityAnalysis struct {
	Score  float64        `json:"score"`
	Issues []QualityIssue `json:"issues"`
}

// Validate checks that the score is in [0,1] and severities are known.
func (a *QualityAnalysis) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: no analysis returned", ErrAnalyzerFailure)
	}
	if a.Score < 0 || a.Score > 1 || a.Score != a.Score {
		return fmt.Errorf("%w: score %v outside [0,1]", ErrAnalyzerFailure, a.Score)
	}
	for _, is := range a.Issues {
		if !is.Severity.Valid() {
			return fmt.Errorf("%w: unknown severity %q", ErrAnalyzerFailure, is.Severity)
		}
	}
	return nil
}

// Analyzer scores a rendered artifact. Implementations are external (a vision
// model, a heuristic checker) and must be safe for concurrent use.
type Analyzer interface {
	Analyze(ctx context.Context, artifact []byte, format Format) (*QualityAnalysis, error)
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, artifact []byte, format Format) (*QualityAnalysis, error)

// Analyze calls f.
func (f AnalyzerFunc) Analyze(ctx context.Context, artifact []byte, format Format) (*QualityAnalysis, error) {
	return f(ctx, artifact, format)
}

// SortIssues returns a copy of issues ordered by severity, then category.
// The order of issues that compare equal is preserved.
func SortIssues(issues []QualityIssue) []QualityIssue {
	out := slices.Clone(issues)
	slices.SortStableFunc(out, func(a, b QualityIssue) int {
		if d := a.Severity.rank() - b.Severity.rank(); d != 0 {
			return d
		}
		return strings.Compare(a.Category, b.Category)
	})
	return out
}
