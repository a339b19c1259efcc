package commands_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/cmd/kiln/commands"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/build"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/kiln/internal/engine/pipeline"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	loader    *mocks.MockConfigLoader
	reader    *mocks.MockProjectReader
	renderer  *mocks.MockRenderer
	builder   *mocks.MockImageBuilder
	store     *mocks.MockLayerStore
	telemetry *mocks.MockTelemetry
	logger    *mocks.MockLogger
	cli       *commands.CLI
	out       *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &fixture{
		loader:    mocks.NewMockConfigLoader(ctrl),
		reader:    mocks.NewMockProjectReader(ctrl),
		renderer:  mocks.NewMockRenderer(ctrl),
		builder:   mocks.NewMockImageBuilder(ctrl),
		store:     mocks.NewMockLayerStore(ctrl),
		telemetry: mocks.NewMockTelemetry(ctrl),
		logger:    mocks.NewMockLogger(ctrl),
		out:       new(bytes.Buffer),
	}
	f.logger.EXPECT().Info(gomock.Any()).AnyTimes()

	executor := pipeline.New(
		mocks.NewMockRuntime(ctrl),
		f.store,
		mocks.NewMockHasher(ctrl),
		mocks.NewMockContextResolver(ctrl),
		mocks.NewMockArchiver(ctrl),
		f.telemetry,
		f.logger,
	)
	a := app.New(f.loader, f.reader, executor, f.renderer, f.builder, f.store, f.telemetry, f.logger)

	f.cli = commands.New(a)
	f.cli.SetOutput(f.out)
	return f
}

func (f *fixture) run(args ...string) error {
	f.cli.SetArgs(args)
	return f.cli.Execute(context.Background())
}

func recipe() *domain.Recipe {
	return &domain.Recipe{
		Tag:      "bot:latest",
		Base:     "python:3.11-slim",
		WorkDir:  "/app",
		Resolver: domain.ResolverTool{Name: "poetry", Version: "1.8.3"},
		System:   domain.SystemDeps{Manager: domain.PackageManagerApt},
		Context: domain.BuildContext{
			Root:     "/src/bot",
			Manifest: "pyproject.toml",
			Lockfile: "poetry.lock",
		},
		Entrypoint: domain.Entrypoint{Interpreter: "python", Module: "bot"},
	}
}

func (f *fixture) expectProject(path string) {
	f.loader.EXPECT().Load(path).Return(recipe(), nil)
	f.reader.EXPECT().ReadManifest("/src/bot/pyproject.toml").Return(&domain.Manifest{Name: "bot"}, nil)
	f.reader.EXPECT().ReadLockfile("/src/bot/poetry.lock").Return(domain.NewLockfile("", nil), nil)
}

func TestEntrypoint_Default(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().Load(".").Return(recipe(), nil)

	require.NoError(t, f.run("entrypoint"))
	assert.Equal(t, "python -m bot\n", f.out.String())
}

func TestEntrypoint_Args(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "args flag",
			args: []string{"entrypoint", "--args", "--flag value"},
			want: "python -m bot --flag value\n",
		},
		{
			name: "args flag with quoting",
			args: []string{"entrypoint", "--args", `--greeting "hello there"`},
			want: "python -m bot --greeting 'hello there'\n",
		},
		{
			name: "positional after dashes",
			args: []string{"entrypoint", "--", "--shard", "2"},
			want: "python -m bot --shard 2\n",
		},
		{
			name: "json",
			args: []string{"entrypoint", "--json", "--args", "--flag value"},
			want: `["python","-m","bot","--flag","value"]` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.loader.EXPECT().Load(".").Return(recipe(), nil)

			require.NoError(t, f.run(tt.args...))
			assert.Equal(t, tt.want, f.out.String())
		})
	}
}

func TestEntrypoint_InvalidArgs(t *testing.T) {
	f := newFixture(t)

	err := f.run("entrypoint", "--args", `--greeting "unterminated`)
	require.Error(t, err)
}

func TestRecipeSelection(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "dir", args: []string{"-C", "/src/bot", "entrypoint"}, want: "/src/bot"},
		{name: "config relative to dir", args: []string{"-C", "/src/bot", "-c", "staging.yaml", "entrypoint"}, want: "/src/bot/staging.yaml"},
		{name: "absolute config", args: []string{"-C", "/src/bot", "--config", "/etc/kiln.yaml", "entrypoint"}, want: "/etc/kiln.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.loader.EXPECT().Load(tt.want).Return(recipe(), nil)

			require.NoError(t, f.run(tt.args...))
		})
	}
}

func TestBuild_Flags(t *testing.T) {
	f := newFixture(t)
	f.expectProject(".")

	f.renderer.EXPECT().Render(gomock.Any()).DoAndReturn(func(p *domain.Plan) ([]byte, error) {
		final, _ := p.Stage(domain.StageEntrypoint)
		assert.Contains(t, final.Config.Env, "POETRY_VIRTUALENVS_CREATE=false")
		assert.Contains(t, final.Config.Env, "PIP_NO_CACHE_DIR=1")
		return []byte("FROM python:3.11-slim\n"), nil
	})
	f.builder.EXPECT().Build(gomock.Any(), gomock.Any(), "/src/bot", "bot:ci", true).Return(nil)
	f.telemetry.EXPECT().Close().Return(nil)

	require.NoError(t, f.run(
		"build",
		"--backend", "cli",
		"--tag", "bot:ci",
		"--no-cache",
		"--no-virtualenv",
		"--no-layer-cache",
	))
}

func TestBuild_FailureIsBuildExecutionFailed(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().Load(".").Return(nil, domain.ErrConfigNotFound)
	f.logger.EXPECT().Error(gomock.Any())
	f.telemetry.EXPECT().Close().Return(nil)

	err := f.run("build")
	require.ErrorIs(t, err, domain.ErrBuildExecutionFailed)
	require.ErrorIs(t, err, domain.ErrConfigNotFound)
}

func TestBuild_RejectsArgs(t *testing.T) {
	f := newFixture(t)
	require.Error(t, f.run("build", "extra"))
}

func TestRender_Stdout(t *testing.T) {
	f := newFixture(t)
	f.expectProject(".")
	f.renderer.EXPECT().Render(gomock.Any()).Return([]byte("FROM python:3.11-slim\n"), nil)

	require.NoError(t, f.run("render"))
	assert.Equal(t, "FROM python:3.11-slim\n", f.out.String())
}

func TestRender_OutputFile(t *testing.T) {
	f := newFixture(t)
	f.expectProject(".")
	f.renderer.EXPECT().Render(gomock.Any()).Return([]byte("FROM python:3.11-slim\n"), nil)

	path := filepath.Join(t.TempDir(), "Dockerfile")
	require.NoError(t, f.run("render", "-o", path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "FROM python:3.11-slim\n", string(data))
	assert.Empty(t, f.out.String())
}

func TestClean(t *testing.T) {
	f := newFixture(t)
	f.store.EXPECT().Clear().Return(nil)

	require.NoError(t, f.run("clean"))
}

func TestVersion(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.run("version"))
	assert.Contains(t, f.out.String(), "kiln version "+build.Version)
}
