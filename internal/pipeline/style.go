package pipeline

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// InjectCSS inserts a <style> block into HTML content.
// Tries </head> first, then <body>, then prepends to the HTML.
// CSS content is sanitized so it cannot close the style element.
func InjectCSS(ctx context.Context, htmlContent, cssContent string) string {
	if cssContent == "" || ctx.Err() != nil {
		return htmlContent
	}

	styleBlock := "<style>" + sanitizeCSS(cssContent) + "</style>"
	lowerHTML := strings.ToLower(htmlContent)

	if idx := strings.Index(lowerHTML, "</head>"); idx != -1 {
		return htmlContent[:idx] + styleBlock + htmlContent[idx:]
	}

	if idx := strings.Index(lowerHTML, "<body"); idx != -1 {
		if closeIdx := strings.Index(htmlContent[idx:], ">"); closeIdx != -1 {
			insertPos := idx + closeIdx + 1
			return htmlContent[:insertPos] + styleBlock + htmlContent[insertPos:]
		}
	}

	return styleBlock + htmlContent
}

// SetStyleBlock replaces the contents of <style id="id">, creating it at the
// end of <head> when missing. An empty css removes the block.
func SetStyleBlock(htmlContent, id, css string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	sel := doc.Find("style#" + id)
	switch {
	case css == "":
		sel.Remove()
	case sel.Length() > 0:
		sel.First().SetText(sanitizeCSS(css))
		sel.Slice(1, goquery.ToEnd).Remove()
	default:
		doc.Find("head").AppendHtml(`<style id="` + id + `">` + sanitizeCSS(css) + `</style>`)
	}

	return goquery.OuterHtml(doc.Selection)
}

// sanitizeCSS escapes sequences that could break out of a <style> block.
func sanitizeCSS(css string) string {
	return strings.ReplaceAll(css, "</", `<\/`)
}
