package renderloop

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Action names checked by a Gate.
const (
	ActionRender      = "render"
	ActionCorrect     = "correct"
	ActionHealthCheck = "health_check"
	ActionUnknown     = "unknown"
)

// Principles reported in violations.
const (
	PrincipleTransparency = "transparency"
	PrincipleRealData     = "real_data"
	PrincipleSecurity     = "security"
	PrincipleAudit        = "audit"
)

// Severity ranks a compliance violation.
type Severity string

// Violation severities.
const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// severityWeights are subtracted from a perfect score per violation.
var severityWeights = map[Severity]float64{
	SeverityHigh:   0.25,
	SeverityMedium: 0.10,
	SeverityLow:    0.02,
}

// DefaultMinScore is the lowest score a compliant action may have.
const DefaultMinScore = 0.9

// MinScoreEnv overrides PolicyGate.MinScore when set to a number in [0,1].
const MinScoreEnv = "CONSTITUTIONAL_AI_MIN_SCORE"

// Violation is one broken rule.
type Violation struct {
	Principle string    `json:"principle"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ComplianceInput is what a Gate inspects for an action.
type ComplianceInput struct {
	Document string
	Audit    map[string]string
}

// ComplianceResult is the verdict of a Gate.
type ComplianceResult struct {
	Compliant  bool        `json:"compliant"`
	Score      float64     `json:"score"`
	Violations []Violation `json:"violations"`
	Warnings   []string    `json:"warnings"`
	Timestamp  time.Time   `json:"timestamp"`
}

// HighSeverityCount returns the number of HIGH violations.
func (r ComplianceResult) HighSeverityCount() int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == SeverityHigh {
			n++
		}
	}
	return n
}

// Gate decides whether an action may proceed. Implementations must be safe
// for concurrent use and must not keep state between calls.
type Gate interface {
	Check(ctx context.Context, action string, in ComplianceInput) ComplianceResult
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(ctx context.Context, action string, in ComplianceInput) ComplianceResult

// Check calls f.
func (f GateFunc) Check(ctx context.Context, action string, in ComplianceInput) ComplianceResult {
	return f(ctx, action, in)
}

// Patterns flagged as injection attempts anywhere in the raw document.
var (
	sqlInjectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i);\s*drop\s+table`),
		regexp.MustCompile(`(?i);\s*delete\s+from`),
		regexp.MustCompile(`(?i)union\s+select`),
		regexp.MustCompile(`(?i)select\s+\*\s+.*--`),
	}
	javascriptURL = regexp.MustCompile(`(?i)^\s*javascript:`)
)

// PolicyGate is the built-in rule set. The zero value is usable; use
// NewPolicyGate to honor the environment override for MinScore.
type PolicyGate struct {
	// MinScore defaults to DefaultMinScore.
	MinScore float64
	// AllowScripts accepts <script> elements. Handler attributes and
	// javascript: URLs are still rejected.
	AllowScripts bool
	// RequireAudit turns a missing audit context into a MEDIUM violation.
	RequireAudit bool
	// RealDataMarkers are phrases that claim unverifiable data when they
	// appear in visible text. nil means {"100%"}.
	RealDataMarkers []string
	Logger          *slog.Logger
}

// Compile-time interface check.
var _ Gate = (*PolicyGate)(nil)

// NewPolicyGate returns a PolicyGate whose minimum score comes from
// CONSTITUTIONAL_AI_MIN_SCORE when set and valid.
func NewPolicyGate(logger *slog.Logger) *PolicyGate {
	g := &PolicyGate{MinScore: DefaultMinScore, Logger: logger}
	if raw := os.Getenv(MinScoreEnv); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			g.logger().Warn("ignoring invalid minimum compliance score", "env", MinScoreEnv, "value", raw)
		} else {
			g.MinScore = v
		}
	}
	return g
}

func (g *PolicyGate) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

// Check evaluates the action and document against every rule.
func (g *PolicyGate) Check(ctx context.Context, action string, in ComplianceInput) ComplianceResult {
	now := time.Now().UTC()
	res := ComplianceResult{Timestamp: now, Violations: []Violation{}, Warnings: []string{}}
	add := func(principle string, sev Severity, msg string) {
		res.Violations = append(res.Violations, Violation{
			Principle: principle,
			Severity:  sev,
			Message:   msg,
			Timestamp: now,
		})
	}

	if a := strings.TrimSpace(action); a == "" || a == ActionUnknown {
		add(PrincipleTransparency, SeverityMedium, "action is not declared")
	}

	if len(in.Audit) == 0 {
		if g.RequireAudit {
			add(PrincipleAudit, SeverityMedium, "audit context is required")
		} else {
			res.Warnings = append(res.Warnings, "no audit context provided")
		}
	}

	if strings.TrimSpace(in.Document) != "" && ctx.Err() == nil {
		g.checkDocument(in.Document, add)
	}

	score := 1.0
	for _, v := range res.Violations {
		score -= severityWeights[v.Severity]
	}
	res.Score = math.Max(0, math.Round(score*1000)/1000)

	minScore := g.MinScore
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	res.Compliant = res.HighSeverityCount() == 0 && res.Score >= minScore
	return res
}

// checkDocument applies the markup rules.
func (g *PolicyGate) checkDocument(document string, add func(string, Severity, string)) {
	for _, re := range sqlInjectionPatterns {
		if re.MatchString(document) {
			add(PrincipleSecurity, SeverityHigh, "document contains an SQL injection pattern")
			break
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		add(PrincipleSecurity, SeverityMedium, fmt.Sprintf("document could not be parsed: %v", err))
		return
	}

	if !g.AllowScripts {
		if n := doc.Find("script").Length(); n > 0 {
			add(PrincipleSecurity, SeverityHigh, fmt.Sprintf("document contains %d script element(s)", n))
		}
	}

	handlers, jsURLs := 0, 0
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range s.Nodes[0].Attr {
			key := strings.ToLower(attr.Key)
			switch {
			case strings.HasPrefix(key, "on") && key != "open":
				handlers++
			case (key == "href" || key == "src" || key == "action" || key == "formaction") &&
				javascriptURL.MatchString(attr.Val):
				jsURLs++
			}
		}
	})
	if handlers > 0 {
		add(PrincipleSecurity, SeverityHigh, fmt.Sprintf("document contains %d inline event handler(s)", handlers))
	}
	if jsURLs > 0 {
		add(PrincipleSecurity, SeverityHigh, fmt.Sprintf("document contains %d javascript: URL(s)", jsURLs))
	}

	markers := g.RealDataMarkers
	if markers == nil {
		markers = []string{"100%"}
	}
	doc.Find("script, style, noscript, template").Remove()
	text := doc.Text()
	for _, m := range markers {
		if m != "" && strings.Contains(text, m) {
			add(PrincipleRealData, SeverityHigh, fmt.Sprintf("visible text claims %q", m))
		}
	}
}

// ComplianceSummary is a compact view of a result for logs and APIs.
type ComplianceSummary struct {
	Compliant              bool      `json:"compliant"`
	Score                  float64   `json:"score"`
	ScorePercentage        string    `json:"score_percentage"`
	ViolationsCount        int       `json:"violations_count"`
	HighSeverityViolations int       `json:"high_severity_violations"`
	WarningsCount          int       `json:"warnings_count"`
	Timestamp              time.Time `json:"timestamp"`
}

// Summarize condenses a result.
func Summarize(r ComplianceResult) ComplianceSummary {
	return ComplianceSummary{
		Compliant:              r.Compliant,
		Score:                  r.Score,
		ScorePercentage:        fmt.Sprintf("%.1f%%", r.Score*100),
		ViolationsCount:        len(r.Violations),
		HighSeverityViolations: r.HighSeverityCount(),
		WarningsCount:          len(r.Warnings),
		Timestamp:              r.Timestamp,
	}
}

// enforce runs gate for action and returns a *ComplianceError when blocked.
// A nil gate allows everything.
func enforce(ctx context.Context, gate Gate, logger *slog.Logger, action string, in ComplianceInput) error {
	if gate == nil {
		return nil
	}
	res := gate.Check(ctx, action, in)
	if res.Compliant {
		return nil
	}
	principles := make([]string, 0, len(res.Violations))
	for _, v := range res.Violations {
		principles = append(principles, v.Principle)
	}
	logger.Warn("action blocked by compliance gate",
		"action", action,
		"score", res.Score,
		"violations", principles,
	)
	return &ComplianceError{Action: action, Result: res}
}
