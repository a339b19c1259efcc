package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/cas"
	"go.trai.ch/kiln/internal/adapters/fs"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/kiln/internal/engine/pipeline"
	"go.uber.org/mock/gomock"
)

// engine is an in-memory stand-in for the container engine: committed images
// stay present until pruned.
type engine struct {
	present map[string]bool
	builds  map[domain.StageKind]int
}

func (e *engine) commit(kind domain.StageKind) string {
	e.builds[kind]++
	id := fmt.Sprintf("sha256:%s-%d", kind, e.builds[kind])
	e.present[id] = true
	return id
}

func newEngine(ctrl *gomock.Controller) (*engine, *mocks.MockRuntime) {
	e := &engine{present: map[string]bool{"sha256:base": true}, builds: make(map[domain.StageKind]int)}
	rt := mocks.NewMockRuntime(ctrl)

	rt.EXPECT().Ping(gomock.Any()).Return(nil).AnyTimes()
	rt.EXPECT().Pull(gomock.Any(), gomock.Any(), gomock.Any()).Return("sha256:base", nil).AnyTimes()
	rt.EXPECT().Exists(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, id string) (bool, error) { return e.present[id], nil }).AnyTimes()
	rt.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, stage *domain.Stage, _ io.Writer) (string, error) {
			return e.commit(stage.Kind), nil
		}).AnyTimes()
	rt.EXPECT().Copy(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, stage *domain.Stage, archive io.Reader) (string, error) {
			if _, err := io.Copy(io.Discard, archive); err != nil {
				return "", err
			}
			return e.commit(stage.Kind), nil
		}).AnyTimes()
	rt.EXPECT().Configure(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, stage *domain.Stage) (string, error) {
			return e.commit(stage.Kind), nil
		}).AnyTimes()
	rt.EXPECT().Tag(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	return e, rt
}

func TestExecutor_Run_PrunedLayerIsCachedAgainAfterRebuild(t *testing.T) {
	ctrl := gomock.NewController(t)
	root := t.TempDir()
	for name, content := range map[string]string{
		"pyproject.toml":  "[tool.poetry]",
		"poetry.lock":     "[metadata]",
		"bot/__main__.py": "print('hi')",
	} {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}

	store, err := cas.NewStore(filepath.Join(t.TempDir(), "layers.json"))
	require.NoError(t, err)

	eng, runtime := newEngine(ctrl)

	telemetry := mocks.NewMockTelemetry(ctrl)
	telemetry.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string) (context.Context, ports.Vertex) {
			v := &fakeVertex{}
			return ports.ContextWithVertex(ctx, v), v
		}).AnyTimes()
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Info(gomock.Any()).AnyTimes()
	logger.EXPECT().Warn(gomock.Any()).Times(1)

	executor := pipeline.New(
		runtime, store, fs.NewHasher(), fs.NewResolver(fs.NewWalker()), fs.NewArchiver(), telemetry, logger,
	)
	plan := botPlan(t)
	build := func() *domain.BuildResult {
		t.Helper()
		res, err := executor.Run(context.Background(), plan, root, pipeline.Options{})
		require.NoError(t, err)
		return res
	}

	cold := build()
	assert.Zero(t, cold.Cached())
	pruned := cold.Stages[3].ImageID
	require.Equal(t, domain.StageResolve, cold.Stages[3].Kind)

	delete(eng.present, pruned)

	rebuilt := build()
	assert.Equal(t, domain.VertexStatusCompleted, rebuilt.Stages[3].Status)
	assert.NotEqual(t, pruned, rebuilt.Stages[3].ImageID)
	assert.Equal(t, 2, eng.builds[domain.StageResolve])

	warm := build()
	assert.Equal(t, 5, warm.Cached())
	assert.Equal(t, rebuilt.Stages[3].ImageID, warm.Stages[3].ImageID)
	assert.Equal(t, 2, eng.builds[domain.StageResolve])
}
