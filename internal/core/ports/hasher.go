package ports

import "go.trai.ch/kiln/internal/core/domain"

// Hasher computes layer cache keys.
//
//go:generate go run go.uber.org/mock/mockgen -source=hasher.go -destination=mocks/mock_hasher.go -package=mocks
type Hasher interface {
	// ComputeStageKey hashes the parent key, the stage definition and the
	// content of files (context-relative paths under root).
	// Equal inputs always produce equal keys.
	ComputeStageKey(parent string, stage *domain.Stage, root string, files []string) (string, error)
}
