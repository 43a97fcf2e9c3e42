package assets

import "errors"

// Resolver tries a custom loader first and falls back to the embedded
// styles when the custom directory does not define the style.
type Resolver struct {
	custom   StyleLoader // nil if no custom path configured
	embedded StyleLoader
}

// NewResolver creates a Resolver. An empty customBasePath uses only the
// embedded styles. Returns an error if customBasePath is set but invalid.
func NewResolver(customBasePath string) (*Resolver, error) {
	r := &Resolver{embedded: NewEmbeddedLoader()}

	if customBasePath != "" {
		fsLoader, err := NewFilesystemLoader(customBasePath)
		if err != nil {
			return nil, err
		}
		r.custom = fsLoader
	}

	return r, nil
}

// LoadStyle loads a style, custom first when configured.
// Only ErrStyleNotFound falls back; validation and I/O errors are returned.
func (r *Resolver) LoadStyle(name string) (string, error) {
	if r.custom == nil {
		return r.embedded.LoadStyle(name)
	}

	content, err := r.custom.LoadStyle(name)
	if err == nil {
		return content, nil
	}
	if !errors.Is(err, ErrStyleNotFound) {
		return "", err
	}
	return r.embedded.LoadStyle(name)
}

// HasCustomLoader returns true if a custom style directory is configured.
func (r *Resolver) HasCustomLoader() bool {
	return r.custom != nil
}

// Compile-time interface check.
var _ StyleLoader = (*Resolver)(nil)
