// Package app implements the application layer for kiln.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/pipeline"
	"go.trai.ch/zerr"
)

// Backend selects how an image is produced.
type Backend string

const (
	// BackendEngine runs the pipeline against the container engine API.
	BackendEngine Backend = "engine"
	// BackendCLI renders a Dockerfile and hands it to the docker CLI.
	BackendCLI Backend = "cli"
)

// Options selects the recipe and the overrides applied on top of it.
type Options struct {
	// Path is the recipe file or a directory searched upwards for one.
	Path string

	// Tag replaces the recipe's image tag when set.
	Tag string

	// NoCache and NoVirtualenv force the corresponding resolver flag on.
	NoCache      bool
	NoVirtualenv bool
}

func (o Options) path() string {
	if o.Path == "" {
		return "."
	}
	return o.Path
}

// BuildOptions configures a build.
type BuildOptions struct {
	Options

	// NoLayerCache ignores previously committed layers.
	NoLayerCache bool

	// Backend defaults to BackendEngine.
	Backend Backend
}

// App represents the main application logic.
type App struct {
	loader    ports.ConfigLoader
	reader    ports.ProjectReader
	executor  *pipeline.Executor
	renderer  ports.Renderer
	builder   ports.ImageBuilder
	store     ports.LayerStore
	telemetry ports.Telemetry
	logger    ports.Logger
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	reader ports.ProjectReader,
	executor *pipeline.Executor,
	renderer ports.Renderer,
	builder ports.ImageBuilder,
	store ports.LayerStore,
	telemetry ports.Telemetry,
	logger ports.Logger,
) *App {
	return &App{
		loader:    loader,
		reader:    reader,
		executor:  executor,
		renderer:  renderer,
		builder:   builder,
		store:     store,
		telemetry: telemetry,
		logger:    logger,
	}
}

// Build produces the image described by the recipe. Every failure is logged
// once here and reported as domain.ErrBuildExecutionFailed.
func (a *App) Build(ctx context.Context, opts BuildOptions) (*domain.BuildResult, error) {
	defer func() {
		if err := a.telemetry.Close(); err != nil {
			a.logger.Warn(fmt.Sprintf("failed to close progress output: %v", err))
		}
	}()

	result, err := a.build(ctx, opts)
	if err != nil {
		a.logger.Error(err)
		return result, errors.Join(domain.ErrBuildExecutionFailed, err)
	}
	return result, nil
}

func (a *App) build(ctx context.Context, opts BuildOptions) (*domain.BuildResult, error) {
	recipe, plan, err := a.prepare(opts.Options)
	if err != nil {
		return nil, err
	}

	switch opts.Backend {
	case BackendEngine, "":
		result, err := a.executor.Run(ctx, plan, recipe.Context.Root, pipeline.Options{NoCache: opts.NoLayerCache})
		if err != nil {
			return result, err
		}
		if result.Tag != "" {
			a.logger.Info(fmt.Sprintf("tagged %s", result.Tag))
		}
		return result, nil

	case BackendCLI:
		dockerfile, err := a.renderer.Render(plan)
		if err != nil {
			return nil, err
		}
		if err := a.builder.Build(ctx, dockerfile, recipe.Context.Root, plan.Tag, opts.NoLayerCache); err != nil {
			return nil, err
		}
		return &domain.BuildResult{Tag: plan.Tag}, nil
	}

	return nil, zerr.With(zerr.Wrap(domain.ErrUnknownBackend, "cannot build"), "backend", string(opts.Backend))
}

// Plan prints the ordered stages with their cache keys and whether a cached
// layer would be reused. Nothing is executed.
func (a *App) Plan(ctx context.Context, opts Options, w io.Writer) error {
	recipe, plan, err := a.prepare(opts)
	if err != nil {
		return err
	}

	statuses, err := a.executor.Inspect(ctx, plan, recipe.Context.Root)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tSTAGE\tNAME\tKEY\tSTATUS")
	for i, s := range statuses {
		key := s.Key
		if key == "" {
			key = "-"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, s.Stage.Kind, s.Stage.Name, key, s.Status)
	}
	if err := tw.Flush(); err != nil {
		return zerr.Wrap(err, "failed to write plan")
	}
	return nil
}

// Render writes the Dockerfile equivalent of the plan to w.
func (a *App) Render(_ context.Context, opts Options, w io.Writer) error {
	_, plan, err := a.prepare(opts)
	if err != nil {
		return err
	}

	dockerfile, err := a.renderer.Render(plan)
	if err != nil {
		return err
	}
	if _, err := w.Write(dockerfile); err != nil {
		return zerr.Wrap(err, "failed to write Dockerfile")
	}
	return nil
}

// Invocation returns the argv a container started with args would run.
func (a *App) Invocation(_ context.Context, opts Options, args []string) ([]string, error) {
	recipe, err := a.loader.Load(opts.path())
	if err != nil {
		return nil, err
	}
	return recipe.Entrypoint.Invocation(args), nil
}

// Clean drops every layer cache entry. Images stay in the engine.
func (a *App) Clean(_ context.Context) error {
	if err := a.store.Clear(); err != nil {
		return err
	}
	a.logger.Info("layer cache cleared")
	return nil
}

// Close releases the container engine connection.
func (a *App) Close() error {
	return a.executor.Close()
}

// prepare loads the recipe, checks the lockfile against the manifest and
// derives the plan. A stale lockfile fails here, before any stage runs.
func (a *App) prepare(opts Options) (*domain.Recipe, *domain.Plan, error) {
	recipe, err := a.loader.Load(opts.path())
	if err != nil {
		return nil, nil, err
	}
	if opts.Tag != "" {
		recipe.Tag = opts.Tag
	}
	if opts.NoCache {
		recipe.Env.NoCache = true
	}
	if opts.NoVirtualenv {
		recipe.Env.NoVirtualenv = true
	}

	manifest, err := a.reader.ReadManifest(filepath.Join(recipe.Context.Root, recipe.Context.Manifest))
	if err != nil {
		return nil, nil, err
	}
	lockfile, err := a.reader.ReadLockfile(filepath.Join(recipe.Context.Root, recipe.Context.Lockfile))
	if err != nil {
		return nil, nil, err
	}
	if err := lockfile.Verify(manifest); err != nil {
		return nil, nil, zerr.With(err, "lockfile", recipe.Context.Lockfile)
	}

	plan, err := domain.NewPlan(recipe, manifest)
	if err != nil {
		return nil, nil, err
	}
	return recipe, plan, nil
}
