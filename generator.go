package renderloop

import "context"

// Document is one revision of generated markup.
type Document struct {
	Content  string `json:"content"`
	Revision int    `json:"revision"`
}

// Generator produces and revises documents. Implementations are external
// and must be safe for concurrent use.
type Generator interface {
	// Generate writes the first revision for a topic and outline.
	Generate(ctx context.Context, topic string, outline []string) (Document, error)
	// Fix returns a new revision addressing issues, which arrive ordered by
	// severity.
	Fix(ctx context.Context, doc Document, issues []QualityIssue) (Document, error)
}

// Reporter records finished correction runs. Errors are logged, never fatal.
type Reporter interface {
	Report(ctx context.Context, r Report) error
}

// Report describes a finished correction run.
type Report struct {
	SessionID    string        `json:"session_id"`
	State        TerminalState `json:"state"`
	Score        float64       `json:"score"`
	Iterations   int           `json:"iterations"`
	ArtifactSize int           `json:"artifact_size"`
	Format       Format        `json:"format"`
}
