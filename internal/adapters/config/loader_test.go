package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/config"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func writeRecipe(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, domain.RecipeFileName), []byte(content), 0o600))
}

func TestLoad_Defaults(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Warn(gomock.Any()).Times(1)

	tmpDir := t.TempDir()
	writeRecipe(t, tmpDir, `
version: "1"
entrypoint:
  module: bot
`)

	recipe, err := config.NewLoader(logger).Load(tmpDir)
	require.NoError(t, err)

	root, err := filepath.Abs(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultBase, recipe.Base)
	assert.Equal(t, config.DefaultWorkdir, recipe.WorkDir)
	assert.True(t, recipe.Env.NoCache)
	assert.True(t, recipe.Env.NoVirtualenv)
	assert.Equal(t, "poetry", recipe.Resolver.Name)
	assert.Equal(t, domain.PackageManagerApt, recipe.System.Manager)
	assert.Equal(t, root, recipe.Context.Root)
	assert.Equal(t, "pyproject.toml", recipe.Context.Manifest)
	assert.Equal(t, "poetry.lock", recipe.Context.Lockfile)
	assert.Equal(t, []string{"python", "-m", "bot"}, recipe.Entrypoint.Argv())
}

func TestLoad_FullRecipe(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Warn(gomock.Any()).Times(1)

	tmpDir := t.TempDir()
	writeRecipe(t, tmpDir, `
version: "1"
image:
  tag: bot:latest
  base: python:3.12-alpine
  workdir: /srv/bot
env:
  no_cache: false
  no_virtualenv: false
  vars:
    TZ: UTC
resolver:
  name: poetry
  version: 1.8.3
  only_main: true
system:
  manager: apk
  packages: [libffi, curl, libffi]
context:
  ignore: [".git", "__pycache__", ".git"]
entrypoint:
  interpreter: python3
  module: bot
`)

	recipe, err := config.NewLoader(logger).Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "bot:latest", recipe.Tag)
	assert.Equal(t, "python:3.12-alpine", recipe.Base)
	assert.Equal(t, "/srv/bot", recipe.WorkDir)
	assert.False(t, recipe.Env.NoCache)
	assert.False(t, recipe.Env.NoVirtualenv)
	assert.Equal(t, map[string]string{"TZ": "UTC"}, recipe.Env.Extra)
	assert.Equal(t, "poetry==1.8.3", recipe.Resolver.Requirement())
	assert.True(t, recipe.Resolver.OnlyMain)
	assert.Equal(t, domain.PackageManagerApk, recipe.System.Manager)
	assert.Equal(t, []string{"curl", "libffi"}, recipe.System.Packages)
	assert.Equal(t, []string{".git", "__pycache__"}, recipe.Context.Ignore)
	assert.Equal(t, []string{"python3", "-m", "bot"}, recipe.Entrypoint.Argv())
}

func TestLoad_PinnedResolverDoesNotWarn(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger := mocks.NewMockLogger(ctrl)

	tmpDir := t.TempDir()
	writeRecipe(t, tmpDir, `
resolver:
  version: 1.8.3
entrypoint:
  module: bot
`)

	_, err := config.NewLoader(logger).Load(tmpDir)
	require.NoError(t, err)
}

func TestLoad_DiscoversParentRecipe(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Warn(gomock.Any()).AnyTimes()

	tmpDir := t.TempDir()
	writeRecipe(t, tmpDir, "entrypoint:\n  module: bot\n")

	nested := filepath.Join(tmpDir, "bot", "handlers")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	recipe, err := config.NewLoader(logger).Load(nested)
	require.NoError(t, err)

	root, err := filepath.Abs(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, root, recipe.Context.Root)
}

func TestLoad_ExplicitFile(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Warn(gomock.Any()).AnyTimes()

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "staging.yaml")
	require.NoError(t, os.WriteFile(path, []byte("image:\n  tag: bot:staging\nentrypoint:\n  module: bot\n"), 0o600))

	recipe, err := config.NewLoader(logger).Load(path)
	require.NoError(t, err)

	root, err := filepath.Abs(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "bot:staging", recipe.Tag)
	assert.Equal(t, root, recipe.Context.Root)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger := mocks.NewMockLogger(ctrl)

	_, err := config.NewLoader(logger).Load(filepath.Join(t.TempDir(), "staging.yaml"))
	require.ErrorIs(t, err, domain.ErrConfigNotFound)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		write   bool
		want    error
	}{
		{
			name:  "missing recipe",
			write: false,
			want:  domain.ErrConfigNotFound,
		},
		{
			name:    "missing module",
			content: "image:\n  tag: bot\n",
			write:   true,
			want:    domain.ErrInvalidEntrypoint,
		},
		{
			name:    "relative workdir",
			content: "image:\n  workdir: app\nentrypoint:\n  module: bot\n",
			write:   true,
			want:    domain.ErrInvalidRecipe,
		},
		{
			name:    "unknown package manager",
			content: "system:\n  manager: yum\nentrypoint:\n  module: bot\n",
			write:   true,
			want:    domain.ErrInvalidRecipe,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			logger := mocks.NewMockLogger(ctrl)
			logger.EXPECT().Warn(gomock.Any()).AnyTimes()

			tmpDir := t.TempDir()
			if tt.write {
				writeRecipe(t, tmpDir, tt.content)
			}

			_, err := config.NewLoader(logger).Load(tmpDir)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger := mocks.NewMockLogger(ctrl)

	tmpDir := t.TempDir()
	writeRecipe(t, tmpDir, "image: [unterminated\n")

	_, err := config.NewLoader(logger).Load(tmpDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}
