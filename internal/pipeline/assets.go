package pipeline

import (
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// assetAttrs lists the attributes rewritten per element.
var assetAttrs = map[atom.Atom]string{
	atom.Img:  "src",
	atom.Link: "href",
	atom.A:    "href",
}

// RewriteRelativePaths converts relative img[src], link[href] and a[href]
// values to absolute file:// URLs under baseDir, so a document copied to a
// temporary file still finds its images and stylesheets. Paths that escape
// baseDir, URLs, anchors and absolute paths are left unchanged.
// An empty baseDir returns the HTML unchanged.
func RewriteRelativePaths(htmlContent, baseDir string) (string, error) {
	if baseDir == "" {
		return htmlContent, nil
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", err
	}

	doc, isFragment, err := parseHTML(htmlContent)
	if err != nil {
		return "", err
	}
	rewriteNode(doc, absBase)
	return renderHTML(doc, isFragment)
}

// parseHTML parses full documents as-is and fragments in a body context.
func parseHTML(content string) (*html.Node, bool, error) {
	lower := strings.ToLower(strings.TrimSpace(content))
	if strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html") {
		doc, err := html.Parse(strings.NewReader(content))
		return doc, false, err
	}

	body := &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	nodes, err := html.ParseFragment(strings.NewReader(content), body)
	if err != nil {
		return nil, true, err
	}
	container := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		container.AppendChild(n)
	}
	return container, true, nil
}

// renderHTML renders fragments child by child to avoid an <html> wrapper.
func renderHTML(doc *html.Node, isFragment bool) (string, error) {
	var buf strings.Builder
	if !isFragment {
		if err := html.Render(&buf, doc); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func rewriteNode(n *html.Node, baseDir string) {
	if n.Type == html.ElementNode {
		if attr, ok := assetAttrs[n.DataAtom]; ok {
			rewriteAttr(n, attr, baseDir)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		rewriteNode(c, baseDir)
	}
}

func rewriteAttr(n *html.Node, attrName, baseDir string) {
	for i, attr := range n.Attr {
		if attr.Key != attrName || !isRelativePath(attr.Val) {
			continue
		}
		// Query strings and fragments are not part of the file name.
		p := attr.Val
		if idx := strings.IndexAny(p, "?#"); idx != -1 {
			p = p[:idx]
		}
		absPath := filepath.Join(baseDir, filepath.FromSlash(p))
		if !isPathUnderDir(absPath, baseDir) {
			continue
		}
		n.Attr[i].Val = pathToFileURL(absPath)
	}
}

// isRelativePath reports whether path is a relative file reference.
func isRelativePath(path string) bool {
	if path == "" || strings.HasPrefix(path, "#") || strings.HasPrefix(path, "//") {
		return false
	}
	if u, err := url.Parse(path); err == nil && u.Scheme != "" {
		return false
	}
	return !filepath.IsAbs(path) && !strings.HasPrefix(path, "/")
}

// isPathUnderDir checks if absPath is under dir (prevents path traversal).
func isPathUnderDir(absPath, dir string) bool {
	cleanDir := filepath.Clean(dir)
	if !strings.HasSuffix(cleanDir, string(filepath.Separator)) {
		cleanDir += string(filepath.Separator)
	}
	return strings.HasPrefix(filepath.Clean(absPath)+string(filepath.Separator), cleanDir)
}

// pathToFileURL converts an absolute path to a file:// URL.
func pathToFileURL(absPath string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(absPath)}
	return u.String()
}
