// Package docker implements the stage runtime on top of the Docker Engine API.
// Every stage runs in a throwaway container that is committed into exactly one
// layer and removed afterwards, whether the stage succeeded or not.
package docker

import (
	"context"
	"fmt"
	"io"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	units "github.com/docker/go-units"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.trai.ch/kiln/internal/adapters/shell"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// commitAuthor is recorded on every committed layer.
const commitAuthor = "kiln"

// apiClient is the subset of the Docker client the runtime uses.
type apiClient interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ImageInspect(ctx context.Context, image string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImageTag(ctx context.Context, image, ref string) error
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, container string, options container.StartOptions) error
	ContainerWait(ctx context.Context, container string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, container string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, container string, options container.RemoveOptions) error
	ContainerCommit(ctx context.Context, container string, options container.CommitOptions) (container.CommitResponse, error)
	CopyToContainer(ctx context.Context, container, path string, content io.Reader, options container.CopyToContainerOptions) error
	Close() error
}

var _ ports.Runtime = (*Runtime)(nil)

// Runtime implements ports.Runtime with the Docker Engine API.
type Runtime struct {
	client apiClient
}

// NewRuntime creates a Runtime connected through the environment
// (DOCKER_HOST, DOCKER_CERT_PATH, ...). No connection is made until first use.
func NewRuntime() (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, zerr.Wrap(domain.ErrRuntimeUnavailable, err.Error())
	}
	return &Runtime{client: cli}, nil
}

func newRuntimeWithClient(c apiClient) *Runtime {
	return &Runtime{client: c}
}

// Ping checks that the engine is reachable.
func (r *Runtime) Ping(ctx context.Context) error {
	if _, err := r.client.Ping(ctx); err != nil {
		return zerr.Wrap(domain.ErrRuntimeUnavailable, err.Error())
	}
	return nil
}

// Close releases the client connection.
func (r *Runtime) Close() error {
	return r.client.Close()
}

// Pull fetches ref from its registry and returns the resolved image ID.
// The pull always contacts the registry, so a moved tag is noticed.
func (r *Runtime) Pull(ctx context.Context, ref string, out io.Writer) (string, error) {
	rc, err := r.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return "", r.classify(domain.ErrBaseImageFetch, "failed to pull image", err, "image", ref)
	}
	defer rc.Close() //nolint:errcheck // Best effort close in defer

	if err := jsonmessage.DisplayJSONMessagesStream(rc, out, 0, false, nil); err != nil {
		return "", fail(domain.ErrBaseImageFetch, "failed to pull image", err, "image", ref)
	}

	inspect, err := r.client.ImageInspect(ctx, ref)
	if err != nil {
		return "", fail(domain.ErrBaseImageFetch, "failed to inspect pulled image", err, "image", ref)
	}

	_, _ = fmt.Fprintf(out, "pulled %s %s (%s)\n", ref, inspect.ID, units.HumanSize(float64(inspect.Size)))
	return inspect.ID, nil
}

// Exists reports whether imageID is still present in the engine.
func (r *Runtime) Exists(ctx context.Context, imageID string) (bool, error) {
	if _, err := r.client.ImageInspect(ctx, imageID); err != nil {
		if cerrdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fail(domain.ErrRuntimeUnavailable, "failed to inspect cached image", err, "image", imageID)
	}
	return true, nil
}

// Lookup returns the ID of the local image tagged ref.
func (r *Runtime) Lookup(ctx context.Context, ref string) (string, error) {
	inspect, err := r.client.ImageInspect(ctx, ref)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return "", nil
		}
		return "", fail(domain.ErrRuntimeUnavailable, "failed to inspect image", err, "image", ref)
	}
	return inspect.ID, nil
}

// Run executes the stage commands with /bin/sh on top of parent and commits
// the container. A non-zero exit commits nothing.
func (r *Runtime) Run(ctx context.Context, parent string, stage *domain.Stage, out io.Writer) (string, error) {
	sentinel := stage.Kind.Sentinel()

	script, err := shell.Script(stage.Commands)
	if err != nil {
		return "", fail(sentinel, "invalid stage commands", err)
	}

	id, err := r.create(ctx, sentinel, &container.Config{
		Image:      parent,
		Entrypoint: shell.Interpreter,
		Cmd:        []string{script},
		Env:        stage.Env,
		WorkingDir: stage.WorkingDir,
	})
	if err != nil {
		return "", err
	}
	defer r.remove(ctx, id)

	status, err := r.start(ctx, sentinel, id, out)
	if err != nil {
		return "", err
	}
	if status != 0 {
		return "", zerr.With(zerr.Wrap(sentinel, "command exited with non-zero status"), "exit_code", status)
	}

	return r.commit(ctx, id, stage)
}

// Copy extracts archive at the container root on top of parent and commits it.
func (r *Runtime) Copy(ctx context.Context, parent string, stage *domain.Stage, archive io.Reader) (string, error) {
	sentinel := stage.Kind.Sentinel()

	id, err := r.create(ctx, sentinel, &container.Config{
		Image:      parent,
		Entrypoint: shell.Interpreter,
		Cmd:        []string{"true"},
		WorkingDir: stage.WorkingDir,
	})
	if err != nil {
		return "", err
	}
	defer r.remove(ctx, id)

	if err := r.client.CopyToContainer(ctx, id, "/", archive, container.CopyToContainerOptions{}); err != nil {
		return "", fail(sentinel, "failed to copy build context", err, "dest", stage.WorkingDir)
	}

	return r.commit(ctx, id, stage)
}

// Configure commits the stage image configuration on top of parent.
func (r *Runtime) Configure(ctx context.Context, parent string, stage *domain.Stage) (string, error) {
	id, err := r.create(ctx, domain.ErrLayerCommitFailed, &container.Config{
		Image:      parent,
		Entrypoint: stage.Config.Entrypoint,
		Cmd:        stage.Config.Cmd,
		Env:        stage.Config.Env,
		WorkingDir: stage.Config.WorkingDir,
	})
	if err != nil {
		return "", err
	}
	defer r.remove(ctx, id)

	return r.commit(ctx, id, stage)
}

// Tag points ref at imageID.
func (r *Runtime) Tag(ctx context.Context, imageID, ref string) error {
	if err := r.client.ImageTag(ctx, imageID, ref); err != nil {
		return fail(domain.ErrLayerCommitFailed, "failed to tag image", err, "tag", ref)
	}
	return nil
}

func (r *Runtime) create(ctx context.Context, sentinel error, cfg *container.Config) (string, error) {
	resp, err := r.client.ContainerCreate(ctx, cfg, &container.HostConfig{}, nil, nil, "")
	if err != nil {
		return "", r.classify(sentinel, "failed to create container", err, "image", cfg.Image)
	}
	return resp.ID, nil
}

// start runs the container to completion, streaming its output to out, and
// returns the exit status.
func (r *Runtime) start(ctx context.Context, sentinel error, id string, out io.Writer) (int64, error) {
	// Register the wait before starting so a fast exit is not missed.
	waitCh, errCh := r.client.ContainerWait(ctx, id, container.WaitConditionNextExit)

	if err := r.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return 0, fail(sentinel, "failed to start container", err, "container", id)
	}

	logs, err := r.client.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: true})
	if err != nil {
		return 0, fail(sentinel, "failed to attach to container output", err, "container", id)
	}
	defer logs.Close() //nolint:errcheck // Best effort close in defer

	var g errgroup.Group
	g.Go(func() error {
		_, err := stdcopy.StdCopy(out, out, logs)
		return err
	})

	var status int64
	select {
	case res := <-waitCh:
		if res.Error != nil {
			return 0, zerr.With(zerr.Wrap(sentinel, "container wait failed"), "reason", res.Error.Message)
		}
		status = res.StatusCode
	case err := <-errCh:
		return 0, fail(sentinel, "container wait failed", err, "container", id)
	}

	if err := g.Wait(); err != nil {
		return 0, fail(sentinel, "failed to read container output", err, "container", id)
	}
	return status, nil
}

func (r *Runtime) commit(ctx context.Context, id string, stage *domain.Stage) (string, error) {
	resp, err := r.client.ContainerCommit(ctx, id, container.CommitOptions{
		Comment: stage.Name,
		Author:  commitAuthor,
	})
	if err != nil {
		return "", fail(domain.ErrLayerCommitFailed, "failed to commit layer", err, "stage", stage.Name)
	}
	return resp.ID, nil
}

// remove deletes the build container even when ctx was canceled.
func (r *Runtime) remove(ctx context.Context, id string) {
	_ = r.client.ContainerRemove(context.WithoutCancel(ctx), id, container.RemoveOptions{Force: true})
}

// classify reports connection failures as ErrRuntimeUnavailable instead of
// blaming the stage.
func (r *Runtime) classify(sentinel error, msg string, err error, kv ...string) error {
	if client.IsErrConnectionFailed(err) {
		sentinel = domain.ErrRuntimeUnavailable
	}
	return fail(sentinel, msg, err, kv...)
}

// fail wraps sentinel with msg, keeping the engine error text and the given
// key/value pairs as metadata.
func fail(sentinel error, msg string, err error, kv ...string) error {
	out := zerr.Wrap(sentinel, msg)
	for i := 0; i+1 < len(kv); i += 2 {
		out = zerr.With(out, kv[i], kv[i+1])
	}
	if err != nil {
		out = zerr.With(out, "reason", err.Error())
	}
	return out
}
