package docker

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the Docker runtime Graft node.
const NodeID graft.ID = "adapter.runtime"

func init() {
	graft.Register(graft.Node[ports.Runtime]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Runtime, error) {
			rt, err := NewRuntime()
			if err != nil {
				return nil, err
			}
			return rt, nil
		},
	})
}
