package fs

import (
	"os"
	"path/filepath"
	"slices"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// WholeContext is the source selecting the entire build context.
const WholeContext = "."

var _ ports.ContextResolver = (*Resolver)(nil)

// Resolver implements ports.ContextResolver using filepath.Glob.
type Resolver struct {
	walker *Walker
}

// NewResolver creates a new Resolver.
func NewResolver(walker *Walker) *Resolver {
	return &Resolver{walker: walker}
}

// ResolveFiles expands the stage sources into the sorted list of
// context-relative files they select. Directories are walked with the stage
// excludes applied; files named explicitly are always included.
func (r *Resolver) ResolveFiles(root string, stage *domain.Stage) ([]string, error) {
	unique := make(map[string]struct{})

	for _, source := range stage.Sources {
		if !filepath.IsLocal(filepath.FromSlash(source)) && source != WholeContext {
			return nil, zerr.With(zerr.Wrap(domain.ErrBuildContextFile, "source escapes build context"), "source", source)
		}

		pattern := filepath.Join(root, filepath.FromSlash(source))
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to glob path"), "path", pattern)
		}
		if len(matches) == 0 {
			return nil, zerr.With(zerr.Wrap(domain.ErrBuildContextFile, "file does not exist"), "path", pattern)
		}

		for _, match := range matches {
			if err := r.collect(root, match, stage.Excludes, unique); err != nil {
				return nil, err
			}
		}
	}

	files := make([]string, 0, len(unique))
	for f := range unique {
		files = append(files, f)
	}
	slices.Sort(files)
	return files, nil
}

func (r *Resolver) collect(root, match string, excludes []string, into map[string]struct{}) error {
	info, err := os.Lstat(match)
	if err != nil {
		return zerr.With(zerr.Wrap(domain.ErrBuildContextFile, "failed to stat file"), "path", match)
	}

	if !info.IsDir() {
		rel, err := filepath.Rel(root, match)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to relativize path"), "path", match)
		}
		into[filepath.ToSlash(rel)] = struct{}{}
		return nil
	}

	for rel, err := range r.walker.WalkFiles(root, match, excludes) {
		if err != nil {
			return zerr.With(zerr.Wrap(domain.ErrBuildContextFile, err.Error()), "path", match)
		}
		into[rel] = struct{}{}
	}
	return nil
}
