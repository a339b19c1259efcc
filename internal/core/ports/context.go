package ports

import (
	"io"

	"go.trai.ch/kiln/internal/core/domain"
)

// ContextResolver expands the sources of a copy stage into concrete files.
//
//go:generate go run go.uber.org/mock/mockgen -source=context.go -destination=mocks/mock_context.go -package=mocks
type ContextResolver interface {
	// ResolveFiles returns the sorted, context-relative files selected by the
	// stage's sources and excludes. A source matching nothing is an error.
	ResolveFiles(root string, stage *domain.Stage) ([]string, error)
}

// Archiver packs build context files for copying into an image.
type Archiver interface {
	// Archive streams a tar archive of files (context-relative paths under
	// root), each placed below dest.
	Archive(root string, files []string, dest string) (io.ReadCloser, error)
}
