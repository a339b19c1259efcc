package ports

import (
	"context"
	"io"

	"go.trai.ch/kiln/internal/core/domain"
)

// Runtime executes stages against a container engine. Every method that
// produces an image either commits exactly one layer and returns its ID, or
// fails and leaves nothing behind.
//
//go:generate go run go.uber.org/mock/mockgen -source=runtime.go -destination=mocks/mock_runtime.go -package=mocks
type Runtime interface {
	// Ping checks that the engine is reachable.
	Ping(ctx context.Context) error

	// Close releases the engine connection.
	Close() error

	// Pull fetches ref and returns its image ID. Progress is written to out.
	Pull(ctx context.Context, ref string, out io.Writer) (string, error)

	// Lookup returns the ID of the local image ref points at, without
	// contacting a registry. An absent image yields an empty ID.
	Lookup(ctx context.Context, ref string) (string, error)

	// Exists reports whether an image is still present in the engine.
	Exists(ctx context.Context, imageID string) (bool, error)

	// Run executes the stage's commands on top of parent and commits the result.
	// A non-zero exit is an error and nothing is committed.
	Run(ctx context.Context, parent string, stage *domain.Stage, out io.Writer) (string, error)

	// Copy extracts archive on top of parent and commits the result.
	Copy(ctx context.Context, parent string, stage *domain.Stage, archive io.Reader) (string, error)

	// Configure commits the stage's image configuration on top of parent.
	Configure(ctx context.Context, parent string, stage *domain.Stage) (string, error)

	// Tag points ref at imageID.
	Tag(ctx context.Context, imageID, ref string) error
}

// ImageBuilder builds an image from a rendered Dockerfile with an external builder.
type ImageBuilder interface {
	// Build runs the builder over contextDir. An empty tag leaves the image untagged.
	Build(ctx context.Context, dockerfile []byte, contextDir, tag string, noCache bool) error
}
