package ports

import "go.trai.ch/kiln/internal/core/domain"

// LayerStore is the layer cache: stage keys mapped to committed images.
//
//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type LayerStore interface {
	// Get retrieves the record for a stage key.
	// Returns nil, nil if not found.
	Get(key string) (*domain.LayerRecord, error)

	// Put stores a record. Existing records are never rewritten.
	Put(record domain.LayerRecord) error

	// Clear drops every record.
	Clear() error
}
