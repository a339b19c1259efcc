package ports

import "go.trai.ch/kiln/internal/core/domain"

// ProjectReader decodes the manifest and lockfile of a build context.
//
//go:generate go run go.uber.org/mock/mockgen -source=project.go -destination=mocks/mock_project.go -package=mocks
type ProjectReader interface {
	// ReadManifest decodes the manifest at path.
	ReadManifest(path string) (*domain.Manifest, error)

	// ReadLockfile decodes the lockfile at path.
	ReadLockfile(path string) (*domain.Lockfile, error)
}
