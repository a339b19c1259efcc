// Package fs provides file system adapters for walking, hashing and packing
// the build context.
package fs

import (
	"io/fs"
	"iter"
	"path"
	"path/filepath"
	"slices"

	"go.trai.ch/kiln/internal/core/domain"
)

// Walker provides file walking functionality.
type Walker struct{}

// NewWalker creates a new Walker.
func NewWalker() *Walker {
	return &Walker{}
}

// WalkFiles yields every file below dir as a slash-separated path relative to
// root, skipping version-control metadata and entries matching excludes.
// Symbolic links are yielded as files and never followed.
func (w *Walker) WalkFiles(root, dir string, excludes []string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)

			if rel != "." && w.excluded(rel, d, excludes) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				return nil
			}

			if !yield(rel, nil) {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			yield("", err)
		}
	}
}

// excluded matches patterns against both the entry name and its
// context-relative path, so "*.pyc" and "tests/fixtures" both work.
func (w *Walker) excluded(rel string, d fs.DirEntry, excludes []string) bool {
	name := d.Name()

	if d.IsDir() && slices.Contains(domain.VCSDirs, name) {
		return true
	}

	for _, pattern := range excludes {
		if matched, _ := path.Match(pattern, name); matched {
			return true
		}
		if matched, _ := path.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}
