// Package assets provides the stylesheets used by the draft generator.
//
// # Loader Architecture
//
//	StyleLoader (interface)
//	    │
//	    ├── EmbeddedLoader    - loads from go:embed filesystem (built-in styles)
//	    ├── FilesystemLoader  - loads from a custom directory on disk
//	    └── Resolver          - combines both with custom-first fallback
//
// Two kinds of styles ship embedded: "base", the document stylesheet, and
// one "fix-<category>" remedy per quality issue category the generator knows
// how to correct (see FixStyleName).
//
// A custom directory mirrors the embedded layout:
//
//	{basePath}/
//	└── styles/
//	    └── {name}.css
//
// # Security
//
// Style names are validated to prevent path traversal. FilesystemLoader
// resolves symlinks and verifies paths stay within basePath.
package assets
