// Package config provides the recipe loader for kiln.
package config

import (
	"os"
	"path/filepath"
	"slices"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Defaults applied to fields the recipe leaves empty.
const (
	DefaultBase        = "python:3.11-slim"
	DefaultWorkdir     = "/app"
	DefaultResolver    = "poetry"
	DefaultManifest    = "pyproject.toml"
	DefaultLockfile    = "poetry.lock"
	DefaultInterpreter = "python"
)

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

var _ ports.ConfigLoader = (*Loader)(nil)

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load finds the recipe in cwd or the nearest parent directory and returns
// the validated recipe. The directory holding the recipe is the build context.
// When cwd names a file, that file is read as the recipe.
func (l *Loader) Load(cwd string) (*domain.Recipe, error) {
	abs, err := filepath.Abs(cwd)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to resolve working directory"), "cwd", cwd)
	}

	configPath := abs
	info, statErr := os.Stat(abs)
	switch {
	case statErr == nil && !info.IsDir():
	case statErr != nil && isYAML(abs):
		return nil, zerr.With(zerr.Wrap(domain.ErrConfigNotFound, "recipe file does not exist"), "path", abs)
	default:
		if configPath, err = findRecipe(abs); err != nil {
			return nil, err
		}
	}

	var kilnfile Kilnfile
	if err := readAndUnmarshalYAML(configPath, &kilnfile); err != nil {
		return nil, err
	}

	recipe := l.toRecipe(&kilnfile, filepath.Dir(configPath))
	if err := recipe.Validate(); err != nil {
		return nil, zerr.With(err, "path", configPath)
	}
	return recipe, nil
}

func isYAML(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}

func findRecipe(dir string) (string, error) {
	current := dir
	for {
		candidate := filepath.Join(current, domain.RecipeFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return "", zerr.With(zerr.Wrap(domain.ErrConfigNotFound, "no "+domain.RecipeFileName+" found"), "cwd", dir)
}

func readAndUnmarshalYAML(path string, v any) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is discovered from the working directory
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to read config file"), "path", path)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to parse config file"), "path", path)
	}
	return nil
}

func (l *Loader) toRecipe(k *Kilnfile, root string) *domain.Recipe {
	recipe := &domain.Recipe{
		Tag:     k.Image.Tag,
		Base:    orDefault(k.Image.Base, DefaultBase),
		WorkDir: orDefault(k.Image.Workdir, DefaultWorkdir),
		Env: domain.EnvConfig{
			NoCache:      boolOrDefault(k.Env.NoCache, true),
			NoVirtualenv: boolOrDefault(k.Env.NoVirtualenv, true),
			Extra:        k.Env.Vars,
		},
		Resolver: domain.ResolverTool{
			Name:     orDefault(k.Resolver.Name, DefaultResolver),
			Version:  k.Resolver.Version,
			OnlyMain: k.Resolver.OnlyMain,
		},
		System: domain.SystemDeps{
			Manager:  domain.PackageManager(orDefault(k.System.Manager, string(domain.PackageManagerApt))),
			Packages: canonicalizeStrings(k.System.Packages),
		},
		Context: domain.BuildContext{
			Root:     root,
			Manifest: orDefault(k.Context.Manifest, DefaultManifest),
			Lockfile: orDefault(k.Context.Lockfile, DefaultLockfile),
			Ignore:   canonicalizeStrings(k.Context.Ignore),
		},
		Entrypoint: domain.Entrypoint{
			Interpreter: orDefault(k.Entrypoint.Interpreter, DefaultInterpreter),
			Module:      k.Entrypoint.Module,
		},
	}

	if !recipe.Env.NoVirtualenv {
		l.Logger.Warn("virtualenv creation is enabled; packages will not be visible to the entrypoint interpreter")
	}
	if k.Resolver.Version == "" {
		l.Logger.Warn("resolver version is not pinned; the resolver layer is not reproducible")
	}
	return recipe
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func canonicalizeStrings(strs []string) []string {
	if len(strs) == 0 {
		return nil
	}
	sorted := slices.Clone(strs)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}
