// Package draft is an offline reference Generator. It writes a document
// from a topic and outline with Goldmark and corrects rendered issues by
// layering remedy stylesheets keyed by issue category.
package draft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/alnah/go-renderloop"
	"github.com/alnah/go-renderloop/internal/assets"
	"github.com/alnah/go-renderloop/internal/pipeline"
)

// ErrEmptyTopic is returned by Generate when the topic is blank.
var ErrEmptyTopic = errors.New("topic cannot be empty")

const (
	baseStyleID = "renderloop-base"
	fixStyleID  = "renderloop-fixes"
	// fixesMeta records how many times each remedy was applied, so repeated
	// issues escalate instead of re-adding the same rules.
	fixesMeta = "renderloop-fixes"
)

// escalations add stronger rules when a category keeps coming back.
// They receive the number of times the remedy was applied (2 or more).
var escalations = map[string]func(n int) string{
	"overflow": func(n int) string {
		size := 15.0
		for range n - 1 {
			size *= 0.92
		}
		return fmt.Sprintf("body { font-size: %.1fpx; }", size)
	},
	"spacing": func(n int) string {
		return fmt.Sprintf("body { line-height: %.2f; padding: %dpx %dpx; }", 1.65+0.1*float64(n-1), 56+8*(n-1), 72+8*(n-1))
	},
}

// Generator implements renderloop.Generator without any remote model.
type Generator struct {
	md     *pipeline.Markdown
	styles assets.StyleLoader
	logger *slog.Logger
}

// Compile-time interface check.
var _ renderloop.Generator = (*Generator)(nil)

// New returns a Generator loading stylesheets from styles. A nil logger
// uses slog.Default.
func New(styles assets.StyleLoader, logger *slog.Logger) *Generator {
	if styles == nil {
		styles = assets.NewEmbeddedLoader()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{md: pipeline.NewMarkdown(), styles: styles, logger: logger}
}

// Generate writes revision 1. Each outline entry becomes a section; an entry
// of the form "Heading: text" also gets a paragraph.
func (g *Generator) Generate(ctx context.Context, topic string, outline []string) (renderloop.Document, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return renderloop.Document{}, ErrEmptyTopic
	}

	html, err := g.md.ToHTML(ctx, topic, outlineMarkdown(topic, outline))
	if err != nil {
		return renderloop.Document{}, err
	}

	css, err := g.styles.LoadStyle(assets.BaseStyle)
	if err != nil {
		return renderloop.Document{}, fmt.Errorf("loading base style: %w", err)
	}
	html, err = pipeline.SetStyleBlock(html, baseStyleID, css)
	if err != nil {
		return renderloop.Document{}, err
	}

	return renderloop.Document{Content: html, Revision: 1}, nil
}

func outlineMarkdown(topic string, outline []string) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(topic)
	b.WriteString("\n\n")
	for _, item := range outline {
		heading, text, _ := strings.Cut(item, ":")
		heading = strings.TrimSpace(heading)
		if heading == "" {
			continue
		}
		b.WriteString("## ")
		b.WriteString(heading)
		b.WriteString("\n\n")
		if text = strings.TrimSpace(text); text != "" {
			b.WriteString(text)
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

// Fix returns the next revision with remedies for every issue category that
// has a stylesheet. Categories without one are skipped; the revision still
// advances so the loop can detect that nothing improved.
func (g *Generator) Fix(ctx context.Context, doc renderloop.Document, issues []renderloop.QualityIssue) (renderloop.Document, error) {
	if err := ctx.Err(); err != nil {
		return renderloop.Document{}, err
	}

	dom, err := goquery.NewDocumentFromReader(strings.NewReader(doc.Content))
	if err != nil {
		return renderloop.Document{}, fmt.Errorf("parsing document: %w", err)
	}
	applied := readApplied(dom)

	seen := make(map[string]bool)
	for _, is := range issues {
		category := strings.ToLower(strings.TrimSpace(is.Category))
		if seen[category] {
			continue
		}
		seen[category] = true

		if _, err := g.styles.LoadStyle(assets.FixStyleName(category)); err != nil {
			if errors.Is(err, assets.ErrStyleNotFound) || errors.Is(err, assets.ErrInvalidAssetName) {
				g.logger.Debug("no remedy for issue category", "category", is.Category)
				continue
			}
			return renderloop.Document{}, err
		}
		applied[category]++
	}

	css, err := g.fixCSS(applied)
	if err != nil {
		return renderloop.Document{}, err
	}
	writeApplied(dom, applied)

	html, err := goquery.OuterHtml(dom.Selection)
	if err != nil {
		return renderloop.Document{}, err
	}
	html, err = pipeline.SetStyleBlock(html, fixStyleID, css)
	if err != nil {
		return renderloop.Document{}, err
	}

	return renderloop.Document{Content: html, Revision: doc.Revision + 1}, nil
}

// fixCSS concatenates remedies in category order.
func (g *Generator) fixCSS(applied map[string]int) (string, error) {
	var b strings.Builder
	for _, category := range sortedKeys(applied) {
		css, err := g.styles.LoadStyle(assets.FixStyleName(category))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "/* %s */\n%s\n", category, css)
		if esc, ok := escalations[category]; ok && applied[category] > 1 {
			b.WriteString(esc(applied[category]))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// Applied returns how many times each remedy was applied to content.
func Applied(content string) map[string]int {
	dom, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return map[string]int{}
	}
	return readApplied(dom)
}

func readApplied(dom *goquery.Document) map[string]int {
	out := make(map[string]int)
	raw, _ := dom.Find(`meta[name="` + fixesMeta + `"]`).Attr("content")
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			out[k] = n
		}
	}
	return out
}

func writeApplied(dom *goquery.Document, applied map[string]int) {
	dom.Find(`meta[name="` + fixesMeta + `"]`).Remove()
	if len(applied) == 0 {
		return
	}
	pairs := make([]string, 0, len(applied))
	for _, k := range sortedKeys(applied) {
		pairs = append(pairs, k+"="+strconv.Itoa(applied[k]))
	}
	dom.Find("head").AppendHtml(`<meta name="` + fixesMeta + `" content="` + strings.Join(pairs, ",") + `"/>`)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
