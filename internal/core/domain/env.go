package domain

import (
	"maps"
	"slices"
)

// Environment variable names set by the resolver flags.
const (
	EnvPipNoCacheDir           = "PIP_NO_CACHE_DIR"
	EnvPoetryNoCache           = "POETRY_NO_CACHE"
	EnvPoetryVirtualenvsCreate = "POETRY_VIRTUALENVS_CREATE"
)

// EnvConfig is the build-wide configuration handed to the resolver.
// It is fixed when a build starts and never mutated afterwards. The resulting
// variables are baked into the image so the running process inherits them.
type EnvConfig struct {
	// NoCache stops the resolver and pip from writing a persistent package cache.
	NoCache bool

	// NoVirtualenv makes the resolver install into the interpreter's global
	// package space instead of creating an isolated environment.
	NoVirtualenv bool

	// Extra holds additional variables declared in the recipe.
	// Flag-derived variables take precedence over entries with the same key.
	Extra map[string]string
}

// Vars returns the configuration as a map of variable names to values.
func (e EnvConfig) Vars() map[string]string {
	vars := make(map[string]string, len(e.Extra)+3)
	maps.Copy(vars, e.Extra)

	if e.NoCache {
		vars[EnvPipNoCacheDir] = "1"
		vars[EnvPoetryNoCache] = "1"
	}
	if e.NoVirtualenv {
		vars[EnvPoetryVirtualenvsCreate] = "false"
	}
	return vars
}

// Environ returns the configuration as a sorted list of KEY=VALUE entries.
func (e EnvConfig) Environ() []string {
	vars := e.Vars()
	keys := slices.Sorted(maps.Keys(vars))

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}
