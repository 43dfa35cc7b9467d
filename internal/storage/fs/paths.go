package fs

import (
	"path/filepath"
	"strings"
)

const (
	// ManifestExt is the extension of manifest files, without the leading dot.
	ManifestExt = "kit-cat-config"
	// PartialSuffix marks a file whose write has not completed.
	PartialSuffix = ".partial"
)

// Layout maps part and manifest names onto a single directory.
type Layout struct {
	Root string
}

// NewLayout builds a layout rooted at dir.
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

// PartPath returns the path of a part file inside the layout.
func (l Layout) PartPath(name string) string {
	return filepath.Join(l.Root, name)
}

// ManifestPath returns the default manifest path for a main file name.
func (l Layout) ManifestPath(mainName string) string {
	return filepath.Join(l.Root, ManifestName(mainName))
}

// ManifestName derives "<stem>.kit-cat-config" from a file name.
func ManifestName(mainName string) string {
	base := filepath.Base(mainName)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return stem + "." + ManifestExt
}

// IsManifest reports whether name carries the manifest extension.
func IsManifest(name string) bool {
	return strings.HasSuffix(name, "."+ManifestExt)
}

// PartialPath returns the in-progress path for a target file.
func PartialPath(path string) string {
	return path + PartialSuffix
}

// IsBareName reports whether name is a plain file name with no directory part.
func IsBareName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
