package model

import (
	"path/filepath"
	"strings"
)

// Source is a bill file on disk waiting to be turned into a Document.
type Source struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// NewSource builds a Source for path found under root. The name is the
// slash-separated path relative to root, so bills sharing a file name in
// different work-order folders stay distinct. A path outside root keeps its
// base name.
func NewSource(root, path string) Source {
	name := filepath.Base(path)
	if root != "" {
		if rel, err := filepath.Rel(root, path); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			name = filepath.ToSlash(rel)
		}
	}
	return Source{Name: name, Path: path}
}

// Document is one unit of extraction input: the plain text of a single bill.
// RawText may be empty when the upstream text extraction found nothing.
type Document struct {
	SourceName string
	RawText    string
}

// Stem returns the source name with its extension stripped.
func (d Document) Stem() string {
	return StripExt(d.SourceName)
}

// StripExt removes the final extension from a file name.
func StripExt(name string) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
