package cas

import (
	"context"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the layer store Graft node.
const NodeID graft.ID = "adapter.layer_store"

// DefaultPath returns the layer cache location under the user cache directory.
func DefaultPath() string {
	return filepath.Join(xdg.CacheHome, "kiln", "layers.json")
}

func init() {
	graft.Register(graft.Node[ports.LayerStore]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.LayerStore, error) {
			store, err := NewStore(DefaultPath())
			if err != nil {
				return nil, err
			}
			return store, nil
		},
	})
}
