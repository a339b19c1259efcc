package pyproject_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/pyproject"
	"go.trai.ch/kiln/internal/core/domain"
)

func TestReadManifest_Poetry(t *testing.T) {
	m, err := pyproject.NewReader().ReadManifest(filepath.Join("testdata", "pyproject.toml"))
	require.NoError(t, err)

	assert.Equal(t, "bot", m.Name)
	assert.Equal(t, "^3.11", m.Python)
	require.Len(t, m.Dependencies, 4)

	names := make([]string, 0, len(m.Dependencies))
	for _, dep := range m.Dependencies {
		names = append(names, dep.Name.String())
	}
	assert.Equal(t, []string{"aiohttp", "discord.py", "shared", "toolkit"}, names)

	assert.True(t, m.Dependencies[0].Optional)
	assert.Equal(t, "^3.9", m.Dependencies[0].Constraint)
	assert.Equal(t, domain.SourceRegistry, m.Dependencies[1].Source)
	assert.Equal(t, "^2.3", m.Dependencies[1].Constraint)
	assert.Equal(t, domain.SourcePath, m.Dependencies[2].Source)
	assert.Equal(t, domain.SourceGit, m.Dependencies[3].Source)
	assert.Equal(t, "https://github.com/example/toolkit.git", m.Dependencies[3].Location)
	assert.True(t, m.RequiresVCS())
}

func TestReadManifest_PEP621(t *testing.T) {
	m, err := pyproject.NewReader().ReadManifest(filepath.Join("testdata", "pep621.toml"))
	require.NoError(t, err)

	assert.Equal(t, "bot", m.Name)
	assert.Equal(t, ">=3.11", m.Python)

	byName := make(map[string]domain.Dependency)
	for _, dep := range m.Dependencies {
		byName[dep.Name.String()] = dep
	}
	require.Len(t, byName, 4)

	assert.Equal(t, ">=2.3,<3", byName["discord.py"].Constraint)
	assert.Empty(t, byName["uvloop"].Constraint)
	assert.Equal(t, ">=13.0", byName["rich"].Constraint)
	assert.Equal(t, domain.SourceGit, byName["toolkit"].Source)
	assert.Equal(t, "git+https://github.com/example/toolkit.git@v1.2.0", byName["toolkit"].Location)
}

func TestReadLockfile(t *testing.T) {
	l, err := pyproject.NewReader().ReadLockfile(filepath.Join("testdata", "poetry.lock"))
	require.NoError(t, err)

	assert.Equal(t, 4, l.Len())
	assert.Equal(t, "8d2c1f0b4a3e5d6c7b8a9f0e1d2c3b4a5f6e7d8c9b0a1f2e3d4c5b6a7f8e9d0c", l.ContentHash)

	pkg, ok := l.Lookup("Discord.py")
	require.True(t, ok)
	assert.Equal(t, "2.3.2", pkg.Version)
	assert.Empty(t, pkg.SourceType)

	pkg, ok = l.Lookup("toolkit")
	require.True(t, ok)
	assert.Equal(t, "git", pkg.SourceType)
	assert.Equal(t, "0f3c2a9e5b7d41c8a6e2f1d9b8c7a6e5d4c3b2a1", pkg.Reference)
}

func TestManifestVerifiesAgainstFixtureLockfile(t *testing.T) {
	reader := pyproject.NewReader()

	m, err := reader.ReadManifest(filepath.Join("testdata", "pyproject.toml"))
	require.NoError(t, err)
	l, err := reader.ReadLockfile(filepath.Join("testdata", "poetry.lock"))
	require.NoError(t, err)

	assert.NoError(t, l.Verify(m))
}

func TestReader_Errors(t *testing.T) {
	tmpDir := t.TempDir()
	broken := filepath.Join(tmpDir, "broken.toml")
	require.NoError(t, os.WriteFile(broken, []byte("[tool.poetry\nname ="), 0o600))

	badEntry := filepath.Join(tmpDir, "bad.lock")
	require.NoError(t, os.WriteFile(badEntry, []byte("[[package]]\nname = \"x\"\n"), 0o600))

	reader := pyproject.NewReader()

	t.Run("missing manifest", func(t *testing.T) {
		_, err := reader.ReadManifest(filepath.Join(tmpDir, "missing.toml"))
		require.ErrorIs(t, err, domain.ErrBuildContextFile)
	})

	t.Run("missing lockfile", func(t *testing.T) {
		_, err := reader.ReadLockfile(filepath.Join(tmpDir, "missing.lock"))
		require.ErrorIs(t, err, domain.ErrBuildContextFile)
	})

	t.Run("malformed manifest", func(t *testing.T) {
		_, err := reader.ReadManifest(broken)
		require.ErrorIs(t, err, domain.ErrManifestParse)
	})

	t.Run("malformed lockfile", func(t *testing.T) {
		_, err := reader.ReadLockfile(broken)
		require.ErrorIs(t, err, domain.ErrLockfileParse)
	})

	t.Run("entry without version", func(t *testing.T) {
		_, err := reader.ReadLockfile(badEntry)
		require.ErrorIs(t, err, domain.ErrLockfileParse)
	})
}
