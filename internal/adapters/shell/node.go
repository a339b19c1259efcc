package shell

import (
	"context"
	"os"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/adapters/logger"
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the docker CLI builder Graft node.
const NodeID graft.ID = "adapter.image_builder"

// DockerCommandEnv overrides the docker CLI invocation.
const DockerCommandEnv = "KILN_DOCKER"

func init() {
	graft.Register(graft.Node[ports.ImageBuilder]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID},
		Run: func(ctx context.Context) (ports.ImageBuilder, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			builder, err := NewBuilder(log, os.Getenv(DockerCommandEnv))
			if err != nil {
				return nil, err
			}
			return builder, nil
		},
	})
}
