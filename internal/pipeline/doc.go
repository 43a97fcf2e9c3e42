// Package pipeline prepares HTML for the render service.
//
// Two paths feed the browser workers:
//   - Markdown drafts are normalized, converted with Goldmark and wrapped in a
//     standalone HTML5 document (Markdown.ToHTML).
//   - HTML files read from disk get their relative asset references rewritten
//     to file:// URLs (RewriteRelativePaths), because workers load documents
//     from a temporary directory.
//
// Stylesheets are attached with InjectCSS or, for blocks that are replaced on
// every correction pass, SetStyleBlock.
package pipeline
