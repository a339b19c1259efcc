// Package pipeline runs a build plan stage by stage, committing one layer per
// stage and reusing layers whose inputs are unchanged.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// Options controls a single run.
type Options struct {
	// NoCache ignores existing layer cache entries. New layers are still recorded.
	NoCache bool
}

// StageStatus is the predicted outcome of a stage, as reported by Inspect.
type StageStatus struct {
	Stage domain.Stage
	Key   string
	// Status is cached when a usable layer exists, pending otherwise.
	Status domain.VertexStatus
}

// Executor runs build plans against a container runtime.
type Executor struct {
	runtime   ports.Runtime
	store     ports.LayerStore
	hasher    ports.Hasher
	resolver  ports.ContextResolver
	archiver  ports.Archiver
	telemetry ports.Telemetry
	logger    ports.Logger
}

// New creates a new Executor.
func New(
	runtime ports.Runtime,
	store ports.LayerStore,
	hasher ports.Hasher,
	resolver ports.ContextResolver,
	archiver ports.Archiver,
	telemetry ports.Telemetry,
	logger ports.Logger,
) *Executor {
	return &Executor{
		runtime:   runtime,
		store:     store,
		hasher:    hasher,
		resolver:  resolver,
		archiver:  archiver,
		telemetry: telemetry,
		logger:    logger,
	}
}

// Run executes every stage of plan in order with root as the build context.
// The first failing stage aborts the run: later stages never start, no cache
// entry is written for it and the image is not tagged. The returned result
// lists the stages that were reached, even on failure.
func (e *Executor) Run(ctx context.Context, plan *domain.Plan, root string, opts Options) (*domain.BuildResult, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if err := e.runtime.Ping(ctx); err != nil {
		return nil, err
	}

	result := &domain.BuildResult{}
	var parentKey, parentImage string

	for _, stage := range plan.Walk() {
		if err := ctx.Err(); err != nil {
			return result, zerr.With(zerr.Wrap(err, "build canceled"), "stage", stage.Name)
		}

		res, err := e.runStage(ctx, &stage, root, parentKey, parentImage, opts)
		result.Stages = append(result.Stages, res)
		if err != nil {
			return result, err
		}
		parentKey, parentImage = res.Key, res.ImageID
	}

	if plan.Tag != "" {
		if err := e.runtime.Tag(ctx, parentImage, plan.Tag); err != nil {
			return result, err
		}
		result.Tag = plan.Tag
	}
	result.ImageID = parentImage
	e.logger.Info(fmt.Sprintf("built %s (%d/%d stages cached)", shortID(parentImage), result.Cached(), len(result.Stages)))
	return result, nil
}

// Close releases the runtime connection.
func (e *Executor) Close() error {
	return e.runtime.Close()
}

func (e *Executor) runStage(
	ctx context.Context,
	stage *domain.Stage,
	root, parentKey, parentImage string,
	opts Options,
) (domain.StageResult, error) {
	res := domain.StageResult{Name: stage.Name, Kind: stage.Kind, Status: domain.VertexStatusRunning}

	ctx, vertex := e.telemetry.Record(ctx, stage.Name)

	fail := func(err error) (domain.StageResult, error) {
		err = stageError(stage, err)
		vertex.Complete(err)
		res.Status = domain.VertexStatusFailed
		return res, err
	}

	if stage.Kind == domain.StageBase {
		imageID, err := e.runtime.Pull(ctx, stage.Image, vertex.Stdout())
		if err != nil {
			return fail(err)
		}
		key, err := e.baseKey(stage, imageID)
		if err != nil {
			return fail(err)
		}
		res.Key, res.ImageID, res.Status = key, imageID, domain.VertexStatusCompleted
		vertex.Complete(nil)
		return res, nil
	}

	var files []string
	if stage.Kind.Copies() {
		var err error
		if files, err = e.resolver.ResolveFiles(root, stage); err != nil {
			return fail(err)
		}
	}

	key, err := e.hasher.ComputeStageKey(parentKey, stage, root, files)
	if err != nil {
		return fail(err)
	}
	res.Key = key

	if !opts.NoCache {
		imageID, err := e.lookup(ctx, key)
		if err != nil {
			return fail(err)
		}
		if imageID != "" {
			res.ImageID, res.Status = imageID, domain.VertexStatusCached
			vertex.Cached()
			return res, nil
		}
	}

	imageID, err := e.execute(ctx, stage, root, parentImage, files, vertex)
	if err != nil {
		return fail(err)
	}

	record := domain.LayerRecord{
		Key:       key,
		Stage:     stage.Name,
		ImageID:   imageID,
		Parent:    parentImage,
		Timestamp: time.Now(),
	}
	if err := e.store.Put(record); err != nil {
		return fail(err)
	}

	res.ImageID, res.Status = imageID, domain.VertexStatusCompleted
	vertex.Complete(nil)
	return res, nil
}

func (e *Executor) execute(
	ctx context.Context,
	stage *domain.Stage,
	root, parent string,
	files []string,
	vertex ports.Vertex,
) (string, error) {
	switch {
	case stage.Kind.Runs():
		return e.runtime.Run(ctx, parent, stage, vertex.Stdout())

	case stage.Kind.Copies():
		archive, err := e.archiver.Archive(root, files, stage.WorkingDir)
		if err != nil {
			return "", err
		}
		defer func() { _ = archive.Close() }()
		vertex.Log(domain.LogLevelInfo, fmt.Sprintf("copying %d files to %s", len(files), stage.WorkingDir))
		return e.runtime.Copy(ctx, parent, stage, archive)

	case stage.Kind == domain.StageEntrypoint:
		return e.runtime.Configure(ctx, parent, stage)
	}

	return "", zerr.With(zerr.Wrap(domain.ErrInvalidPlan, "stage cannot be executed"), "kind", stage.Kind.String())
}

// lookup returns the cached image for key, or an empty ID when there is no
// usable entry. An entry whose image was removed from the engine is a miss.
func (e *Executor) lookup(ctx context.Context, key string) (string, error) {
	record, err := e.store.Get(key)
	if err != nil {
		return "", err
	}
	if record == nil || record.ImageID == "" {
		return "", nil
	}

	ok, err := e.runtime.Exists(ctx, record.ImageID)
	if err != nil {
		return "", err
	}
	if !ok {
		e.logger.Warn(fmt.Sprintf("cached layer %s for %q is gone, rebuilding", shortID(record.ImageID), record.Stage))
		return "", nil
	}
	return record.ImageID, nil
}

// baseKey pins the base stage key to the pulled image rather than its
// reference, so a moved tag invalidates every later layer.
func (e *Executor) baseKey(stage *domain.Stage, imageID string) (string, error) {
	pinned := *stage
	pinned.Image = imageID
	return e.hasher.ComputeStageKey("", &pinned, "", nil)
}

// Inspect computes stage keys and predicts cache hits without executing
// anything. Keys can only be derived once the base image is present locally;
// until then every stage is reported pending with an empty key.
func (e *Executor) Inspect(ctx context.Context, plan *domain.Plan, root string) ([]StageStatus, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	statuses := make([]StageStatus, 0, plan.Len())
	var parentKey string
	known := true

	for _, stage := range plan.Walk() {
		status := StageStatus{Stage: stage, Status: domain.VertexStatusPending}

		switch {
		case stage.Kind == domain.StageBase:
			imageID, err := e.runtime.Lookup(ctx, stage.Image)
			if err != nil {
				return nil, stageError(&stage, err)
			}
			if imageID == "" {
				known = false
				break
			}
			if status.Key, err = e.baseKey(&stage, imageID); err != nil {
				return nil, stageError(&stage, err)
			}

		case known:
			var files []string
			if stage.Kind.Copies() {
				var err error
				if files, err = e.resolver.ResolveFiles(root, &stage); err != nil {
					return nil, stageError(&stage, err)
				}
			}
			key, err := e.hasher.ComputeStageKey(parentKey, &stage, root, files)
			if err != nil {
				return nil, stageError(&stage, err)
			}
			status.Key = key

			imageID, err := e.lookup(ctx, key)
			if err != nil {
				return nil, stageError(&stage, err)
			}
			if imageID != "" {
				status.Status = domain.VertexStatusCached
			}
		}

		parentKey = status.Key
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// stageError makes sure err carries the failing stage and its sentinel.
func stageError(stage *domain.Stage, err error) error {
	sentinel := stage.Kind.Sentinel()
	switch {
	case errors.Is(err, sentinel),
		errors.Is(err, domain.ErrLayerCommitFailed),
		errors.Is(err, domain.ErrRuntimeUnavailable),
		errors.Is(err, domain.ErrStoreReadFailed),
		errors.Is(err, domain.ErrStoreWriteFailed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
	default:
		err = errors.Join(sentinel, err)
	}
	return zerr.With(err, "stage", stage.Name)
}

func shortID(id string) string {
	const prefix = "sha256:"
	if len(id) > len(prefix) && id[:len(prefix)] == prefix {
		id = id[len(prefix):]
	}
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
