package draft

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alnah/go-renderloop"
	"github.com/alnah/go-renderloop/internal/assets"
	"github.com/alnah/go-renderloop/internal/logging"
)

func newGenerator() *Generator {
	return New(assets.NewEmbeddedLoader(), logging.Discard())
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	g := newGenerator()
	doc, err := g.Generate(context.Background(), "Quarterly Review", []string{
		"Revenue: Up on the prior quarter.",
		"Hiring",
		"  ",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, doc.Revision)
	assert.Contains(t, doc.Content, "<title>Quarterly Review</title>")
	assert.Contains(t, doc.Content, `<h1 id="quarterly-review">Quarterly Review</h1>`)
	assert.Contains(t, doc.Content, `<h2 id="revenue">Revenue</h2>`)
	assert.Contains(t, doc.Content, "<p>Up on the prior quarter.</p>")
	assert.Contains(t, doc.Content, `<h2 id="hiring">Hiring</h2>`)
	assert.Contains(t, doc.Content, `<style id="renderloop-base">`)
	assert.Equal(t, 2, strings.Count(doc.Content, "<h2"))
}

func TestGenerate_EmptyTopic(t *testing.T) {
	t.Parallel()

	_, err := newGenerator().Generate(context.Background(), "  ", nil)
	assert.ErrorIs(t, err, ErrEmptyTopic)
}

func TestGenerate_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newGenerator().Generate(ctx, "Topic", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFix_AppliesRemedies(t *testing.T) {
	t.Parallel()

	g := newGenerator()
	doc, err := g.Generate(context.Background(), "Topic", []string{"Body: text"})
	require.NoError(t, err)

	fixed, err := g.Fix(context.Background(), doc, []renderloop.QualityIssue{
		{Category: "overflow", Severity: renderloop.IssueCritical},
		{Category: "Contrast", Severity: renderloop.IssueMajor},
		{Category: "overflow", Severity: renderloop.IssueMinor},
		{Category: "hallucination", Severity: renderloop.IssueMinor},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, fixed.Revision)
	assert.Equal(t, map[string]int{"contrast": 1, "overflow": 1}, Applied(fixed.Content))
	assert.Contains(t, fixed.Content, `<style id="renderloop-fixes">`)
	assert.Contains(t, fixed.Content, "/* contrast */")
	assert.Less(t, strings.Index(fixed.Content, "/* contrast */"), strings.Index(fixed.Content, "/* overflow */"))
	assert.Contains(t, fixed.Content, `<style id="renderloop-base">`, "base style must survive fixes")
}

func TestFix_Escalates(t *testing.T) {
	t.Parallel()

	g := newGenerator()
	doc, err := g.Generate(context.Background(), "Topic", nil)
	require.NoError(t, err)

	overflow := []renderloop.QualityIssue{{Category: "overflow", Severity: renderloop.IssueMajor}}
	for range 3 {
		doc, err = g.Fix(context.Background(), doc, overflow)
		require.NoError(t, err)
	}

	assert.Equal(t, 4, doc.Revision)
	assert.Equal(t, map[string]int{"overflow": 3}, Applied(doc.Content))
	assert.Contains(t, doc.Content, "font-size: 12.7px")
	assert.Equal(t, 1, strings.Count(doc.Content, `id="renderloop-fixes"`))
}

func TestFix_NoApplicableRemedy(t *testing.T) {
	t.Parallel()

	g := newGenerator()
	doc := renderloop.Document{Content: "<p>plain</p>", Revision: 5}

	fixed, err := g.Fix(context.Background(), doc, []renderloop.QualityIssue{{Category: "tone", Severity: renderloop.IssueMinor}})
	require.NoError(t, err)
	assert.Equal(t, 6, fixed.Revision)
	assert.Empty(t, Applied(fixed.Content))
	assert.NotContains(t, fixed.Content, "renderloop-fixes")
	assert.Contains(t, fixed.Content, "<p>plain</p>")
}

type failingStyles struct{}

func (failingStyles) LoadStyle(name string) (string, error) {
	if name == assets.BaseStyle {
		return "body{}", nil
	}
	return "", errors.Join(assets.ErrAssetRead, errors.New("disk gone"))
}

func TestFix_StyleReadError(t *testing.T) {
	t.Parallel()

	g := New(failingStyles{}, logging.Discard())
	_, err := g.Fix(context.Background(), renderloop.Document{Content: "<p>x</p>"}, []renderloop.QualityIssue{{Category: "overflow", Severity: renderloop.IssueMajor}})
	assert.ErrorIs(t, err, assets.ErrAssetRead)
}
