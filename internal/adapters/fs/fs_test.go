package fs_test

import (
	"archive/tar"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/fs"
	"go.trai.ch/kiln/internal/core/domain"
)

// buildContext creates:
//
//	tmp/
//	  .git/config
//	  __pycache__/bot.cpython-311.pyc
//	  bot/__main__.py
//	  bot/handlers/ping.py
//	  poetry.lock
//	  pyproject.toml
func buildContext(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	files := map[string]string{
		".git/config":                     "git config",
		"__pycache__/bot.cpython-311.pyc": "bytecode",
		"bot/__main__.py":                 "print('hi')",
		"bot/handlers/ping.py":            "def ping(): ...",
		"poetry.lock":                     "[metadata]",
		"pyproject.toml":                  "[tool.poetry]",
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
	return root
}

func TestWalker_WalkFiles(t *testing.T) {
	root := buildContext(t)

	var got []string
	for rel, err := range fs.NewWalker().WalkFiles(root, root, []string{"__pycache__"}) {
		require.NoError(t, err)
		got = append(got, rel)
	}

	assert.Equal(t, []string{
		"bot/__main__.py",
		"bot/handlers/ping.py",
		"poetry.lock",
		"pyproject.toml",
	}, got)
}

func TestWalker_ExcludesRelativePaths(t *testing.T) {
	root := buildContext(t)

	var got []string
	for rel, err := range fs.NewWalker().WalkFiles(root, root, []string{"bot/handlers", "*.pyc", "*.lock"}) {
		require.NoError(t, err)
		got = append(got, rel)
	}

	assert.Equal(t, []string{"bot/__main__.py", "pyproject.toml"}, got)
}

func TestWalker_MissingDirectory(t *testing.T) {
	root := t.TempDir()

	var errs int
	for _, err := range fs.NewWalker().WalkFiles(root, filepath.Join(root, "missing"), nil) {
		if err != nil {
			errs++
		}
	}
	assert.Equal(t, 1, errs)
}

func TestResolver_ResolveFiles(t *testing.T) {
	root := buildContext(t)
	resolver := fs.NewResolver(fs.NewWalker())

	t.Run("explicit files", func(t *testing.T) {
		files, err := resolver.ResolveFiles(root, &domain.Stage{
			Kind:    domain.StageCopyManifest,
			Sources: []string{"pyproject.toml", "poetry.lock"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"poetry.lock", "pyproject.toml"}, files)
	})

	t.Run("whole context with excludes", func(t *testing.T) {
		files, err := resolver.ResolveFiles(root, &domain.Stage{
			Kind:     domain.StageCopySource,
			Sources:  []string{"."},
			Excludes: []string{"__pycache__"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"bot/__main__.py",
			"bot/handlers/ping.py",
			"poetry.lock",
			"pyproject.toml",
		}, files)
	})

	t.Run("glob", func(t *testing.T) {
		files, err := resolver.ResolveFiles(root, &domain.Stage{Sources: []string{"*.toml", "pyproject.toml"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"pyproject.toml"}, files)
	})

	t.Run("missing source", func(t *testing.T) {
		_, err := resolver.ResolveFiles(root, &domain.Stage{Sources: []string{"requirements.txt"}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrBuildContextFile))
	})

	t.Run("source outside context", func(t *testing.T) {
		_, err := resolver.ResolveFiles(root, &domain.Stage{Sources: []string{"../secrets"}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrBuildContextFile))
	})
}

func TestHasher_ComputeStageKey(t *testing.T) {
	root := buildContext(t)
	hasher := fs.NewHasher()
	files := []string{"poetry.lock", "pyproject.toml"}

	stage := &domain.Stage{
		Name:       "copy",
		Kind:       domain.StageCopyManifest,
		Sources:    files,
		WorkingDir: "/app",
	}

	key, err := hasher.ComputeStageKey("parent", stage, root, files)
	require.NoError(t, err)
	assert.Len(t, key, 16)

	t.Run("deterministic", func(t *testing.T) {
		again, err := hasher.ComputeStageKey("parent", stage, root, files)
		require.NoError(t, err)
		assert.Equal(t, key, again)
	})

	t.Run("name does not matter", func(t *testing.T) {
		renamed := *stage
		renamed.Name = "copy manifest"
		again, err := hasher.ComputeStageKey("parent", &renamed, root, files)
		require.NoError(t, err)
		assert.Equal(t, key, again)
	})

	t.Run("parent changes key", func(t *testing.T) {
		other, err := hasher.ComputeStageKey("other", stage, root, files)
		require.NoError(t, err)
		assert.NotEqual(t, key, other)
	})

	t.Run("env changes key", func(t *testing.T) {
		withEnv := *stage
		withEnv.Env = []string{"PIP_NO_CACHE_DIR=1"}
		other, err := hasher.ComputeStageKey("parent", &withEnv, root, files)
		require.NoError(t, err)
		assert.NotEqual(t, key, other)
	})

	t.Run("content changes key", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "poetry.lock"), []byte("[metadata]\n"), 0o600))
		other, err := hasher.ComputeStageKey("parent", stage, root, files)
		require.NoError(t, err)
		assert.NotEqual(t, key, other)
	})

	t.Run("mode changes key", func(t *testing.T) {
		before, err := hasher.ComputeStageKey("parent", stage, root, files)
		require.NoError(t, err)
		require.NoError(t, os.Chmod(filepath.Join(root, "pyproject.toml"), 0o700))
		after, err := hasher.ComputeStageKey("parent", stage, root, files)
		require.NoError(t, err)
		assert.NotEqual(t, before, after)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := hasher.ComputeStageKey("parent", stage, root, []string{"missing.txt"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrBuildContextFile))
	})
}

func TestHasher_CommandsChangeKey(t *testing.T) {
	hasher := fs.NewHasher()

	a := &domain.Stage{Kind: domain.StageResolve, Commands: [][]string{{"poetry", "install"}}}
	b := &domain.Stage{Kind: domain.StageResolve, Commands: [][]string{{"poetry", "install", "--no-cache"}}}
	c := &domain.Stage{Kind: domain.StageResolve, Commands: [][]string{{"poetry"}, {"install"}}}

	keyA, err := hasher.ComputeStageKey("", a, t.TempDir(), nil)
	require.NoError(t, err)
	keyB, err := hasher.ComputeStageKey("", b, t.TempDir(), nil)
	require.NoError(t, err)
	keyC, err := hasher.ComputeStageKey("", c, t.TempDir(), nil)
	require.NoError(t, err)

	assert.NotEqual(t, keyA, keyB)
	assert.NotEqual(t, keyA, keyC)
}

func TestArchiver_Archive(t *testing.T) {
	root := buildContext(t)
	files := []string{"bot/__main__.py", "bot/handlers/ping.py", "pyproject.toml"}

	rc, err := fs.NewArchiver().Archive(root, files, "/app")
	require.NoError(t, err)
	defer rc.Close() //nolint:errcheck // test cleanup

	tr := tar.NewReader(rc)
	var names []string
	contents := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
		assert.Equal(t, int64(0), hdr.ModTime.Unix(), hdr.Name)
		assert.Zero(t, hdr.Uid)

		if hdr.Typeflag == tar.TypeReg {
			data, err := io.ReadAll(tr)
			require.NoError(t, err)
			contents[hdr.Name] = string(data)
		}
	}

	assert.Equal(t, []string{
		"app/",
		"app/bot/",
		"app/bot/__main__.py",
		"app/bot/handlers/",
		"app/bot/handlers/ping.py",
		"app/pyproject.toml",
	}, names)
	assert.Equal(t, "print('hi')", contents["app/bot/__main__.py"])
}

func TestArchiver_Errors(t *testing.T) {
	root := buildContext(t)
	archiver := fs.NewArchiver()

	_, err := archiver.Archive(root, []string{"pyproject.toml"}, "app")
	require.Error(t, err)

	rc, err := archiver.Archive(root, []string{"missing.py"}, "/app")
	require.NoError(t, err)
	_, err = io.ReadAll(rc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBuildContextFile))
}

func botPlan(t *testing.T, root string) *domain.Plan {
	t.Helper()
	plan, err := domain.NewPlan(&domain.Recipe{
		Tag:      "bot:latest",
		Base:     "python:3.11-slim",
		WorkDir:  "/app",
		Env:      domain.EnvConfig{NoCache: true, NoVirtualenv: true},
		Resolver: domain.ResolverTool{Name: "poetry", Version: "1.8.3"},
		System:   domain.SystemDeps{Manager: domain.PackageManagerApt},
		Context: domain.BuildContext{
			Root:     root,
			Manifest: "pyproject.toml",
			Lockfile: "poetry.lock",
			Ignore:   []string{"__pycache__"},
		},
		Entrypoint: domain.Entrypoint{Interpreter: "python", Module: "bot"},
	}, &domain.Manifest{Name: "bot"})
	require.NoError(t, err)
	return plan
}

// stageKeys chains every stage key of plan the way a build does.
func stageKeys(t *testing.T, root string, plan *domain.Plan) map[domain.StageKind]string {
	t.Helper()
	resolver := fs.NewResolver(fs.NewWalker())
	hasher := fs.NewHasher()

	keys := make(map[domain.StageKind]string)
	var parent string
	for _, stage := range plan.Walk() {
		var files []string
		if stage.Kind.Copies() {
			var err error
			files, err = resolver.ResolveFiles(root, &stage)
			require.NoError(t, err)
		}
		key, err := hasher.ComputeStageKey(parent, &stage, root, files)
		require.NoError(t, err)
		keys[stage.Kind] = key
		parent = key
	}
	return keys
}

func TestStageKeys_Invalidation(t *testing.T) {
	root := buildContext(t)
	plan := botPlan(t, root)
	before := stageKeys(t, root, plan)

	unchanged := []domain.StageKind{domain.StageBase, domain.StageResolverTool}

	t.Run("source edit keeps dependency layers", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "bot", "handlers", "ping.py"), []byte("def ping(): return 1"), 0o600))
		after := stageKeys(t, root, plan)

		for _, kind := range append(unchanged, domain.StageCopyManifest, domain.StageResolve) {
			assert.Equal(t, before[kind], after[kind], kind.String())
		}
		assert.NotEqual(t, before[domain.StageCopySource], after[domain.StageCopySource])
		assert.NotEqual(t, before[domain.StageEntrypoint], after[domain.StageEntrypoint])
		before = after
	})

	t.Run("ignored file edit changes nothing", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "__pycache__", "bot.cpython-311.pyc"), []byte("other"), 0o600))
		assert.Equal(t, before, stageKeys(t, root, plan))
	})

	t.Run("lockfile edit invalidates from manifest copy on", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "poetry.lock"), []byte("[metadata]\ncontent-hash = \"x\""), 0o600))
		after := stageKeys(t, root, plan)

		for _, kind := range unchanged {
			assert.Equal(t, before[kind], after[kind], kind.String())
		}
		for _, kind := range []domain.StageKind{
			domain.StageCopyManifest, domain.StageResolve, domain.StageCopySource, domain.StageEntrypoint,
		} {
			assert.NotEqual(t, before[kind], after[kind], kind.String())
		}
	})
}
