package renderloop

import (
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
)

// Correction defaults.
const (
	DefaultMaxIterations = 3
	DefaultThreshold     = 0.85
	DefaultWindow        = 2
)

// TerminalState is how a correction session ended.
type TerminalState string

// Terminal states.
const (
	StateConverged       TerminalState = "converged"
	StateBudgetExhausted TerminalState = "budget_exhausted"
	StateNoImprovement   TerminalState = "no_improvement"
	StateFailed          TerminalState = "failed"
)

// Succeeded reports whether the session reached the acceptance threshold.
func (s TerminalState) Succeeded() bool {
	return s == StateConverged
}

// Policy bounds a correction session.
type Policy struct {
	// MaxIterations is the number of fix cycles allowed. 0 means a single
	// render and analysis with no fix.
	MaxIterations int `json:"max_iterations"`
	// Threshold is the acceptance score in [0,1].
	Threshold float64 `json:"threshold"`
	// Window is how many consecutive iterations may pass without beating
	// the best earlier score. 0 disables the no-improvement check.
	Window int `json:"window"`
	// Epsilon is the margin by which a score must beat the earlier best to
	// count as an improvement.
	Epsilon float64 `json:"epsilon"`
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxIterations: DefaultMaxIterations,
		Threshold:     DefaultThreshold,
		Window:        DefaultWindow,
	}
}

// Validate rejects negative bounds and thresholds outside [0,1].
func (p Policy) Validate() error {
	switch {
	case p.MaxIterations < 0:
		return fmt.Errorf("%w: max iterations %d", ErrInvalidPolicy, p.MaxIterations)
	case p.Threshold < 0 || p.Threshold > 1 || math.IsNaN(p.Threshold):
		return fmt.Errorf("%w: threshold %v outside [0,1]", ErrInvalidPolicy, p.Threshold)
	case p.Window < 0:
		return fmt.Errorf("%w: window %d", ErrInvalidPolicy, p.Window)
	case p.Epsilon < 0 || math.IsNaN(p.Epsilon):
		return fmt.Errorf("%w: epsilon %v", ErrInvalidPolicy, p.Epsilon)
	}
	return nil
}

// decision is the next step after an analysis.
type decision int

const (
	decideConverged decision = iota
	decideBudgetExhausted
	decideNoImprovement
	decideFix
)

func (d decision) terminal() (TerminalState, bool) {
	switch d {
	case decideConverged:
		return StateConverged, true
	case decideBudgetExhausted:
		return StateBudgetExhausted, true
	case decideNoImprovement:
		return StateNoImprovement, true
	}
	return "", false
}

// CorrectionSession is the state of one Run. It keeps only the current and
// best revisions plus the score trace.
type CorrectionSession struct {
	ID         string
	Policy     Policy
	Iterations int
	Current    Document
	Trace      []float64

	Best         Document
	BestScore    float64
	BestArtifact *RenderResult
	hasBest      bool
}

// NewCorrectionSession starts a session under policy.
func NewCorrectionSession(policy Policy) *CorrectionSession {
	return &CorrectionSession{
		ID:        uuid.New().String(),
		Policy:    policy,
		BestScore: -1,
	}
}

// HasBest reports whether any revision has been scored.
func (s *CorrectionSession) HasBest() bool {
	return s.hasBest
}

// record stores the score of the current revision and decides what happens
// next. Checks run in order: threshold, budget, no-improvement window.
func (s *CorrectionSession) record(score float64, artifact *RenderResult) decision {
	s.Trace = append(s.Trace, score)

	if !s.hasBest || score > s.BestScore {
		s.Best = s.Current
		s.BestScore = score
		s.BestArtifact = artifact
		s.hasBest = true
	}

	switch {
	case score >= s.Policy.Threshold:
		return decideConverged
	case s.Iterations >= s.Policy.MaxIterations:
		return decideBudgetExhausted
	case s.stalled():
		return decideNoImprovement
	}
	return decideFix
}

// stalled reports whether none of the last Window scores beat the best score
// recorded before them by more than Epsilon.
func (s *CorrectionSession) stalled() bool {
	w, n := s.Policy.Window, len(s.Trace)
	if w <= 0 || n <= w {
		return false
	}
	return slices.Max(s.Trace[n-w:]) <= slices.Max(s.Trace[:n-w])+s.Policy.Epsilon
}

// Advance installs a fixed revision and counts the fix cycle.
func (s *CorrectionSession) Advance(doc Document) {
	s.Current = doc
	s.Iterations++
}
