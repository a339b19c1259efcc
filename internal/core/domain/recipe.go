package domain

import (
	"path"
	"slices"

	"go.trai.ch/zerr"
)

// PackageManager identifies the OS package manager of the base image.
type PackageManager string

const (
	// PackageManagerApt is the Debian/Ubuntu package manager.
	PackageManagerApt PackageManager = "apt"
	// PackageManagerApk is the Alpine package manager.
	PackageManagerApk PackageManager = "apk"
)

// VCSPackage is the OS package providing the version-control client used to
// fetch dependencies declared with a git source.
const VCSPackage = "git"

// VCSDirs are version-control metadata directories never copied into an image.
var VCSDirs = []string{".git", ".jj"}

// Recipe is the complete, validated description of an image build.
type Recipe struct {
	// Tag is the reference applied to the final image. Empty means untagged.
	Tag string

	// Base is the pinned base image reference (e.g. "python:3.11-slim").
	Base string

	// WorkDir is the absolute directory inside the image holding the build context.
	WorkDir string

	// Env is the resolver configuration baked into the image environment.
	Env EnvConfig

	// Resolver describes the dependency manager installed into the image.
	Resolver ResolverTool

	// System lists OS packages installed before dependency resolution.
	System SystemDeps

	// Context locates the build context on the host.
	Context BuildContext

	// Entrypoint is the process the container runs on start.
	Entrypoint Entrypoint
}

// BuildContext locates the files copied into the image.
type BuildContext struct {
	// Root is the host directory holding the build context.
	Root string

	// Manifest is the manifest path relative to Root.
	Manifest string

	// Lockfile is the lockfile path relative to Root.
	Lockfile string

	// Ignore holds file name patterns excluded from the source copy.
	Ignore []string
}

// ResolverTool describes the dependency manager that installs the locked packages.
type ResolverTool struct {
	// Name is the package name of the tool (e.g. "poetry").
	Name string

	// Version pins the tool version. Empty installs the latest release.
	Version string

	// OnlyMain restricts installation to the main dependency group.
	OnlyMain bool
}

// Requirement returns the pip requirement string for the tool.
func (r ResolverTool) Requirement() string {
	if r.Version == "" {
		return r.Name
	}
	return r.Name + "==" + r.Version
}

// InstallCommands returns the commands installing the resolver tool itself.
func (r ResolverTool) InstallCommands(env EnvConfig) [][]string {
	args := []string{"pip", "install"}
	if env.NoCache {
		args = append(args, "--no-cache-dir")
	}
	args = append(args, r.Requirement())
	return [][]string{args}
}

// ResolveCommands returns the commands installing the locked dependency set.
// The project itself is not installed because its source is copied later.
func (r ResolverTool) ResolveCommands(env EnvConfig) [][]string {
	args := []string{r.Name, "install", "--no-interaction", "--no-ansi", "--no-root"}
	if r.OnlyMain {
		args = append(args, "--only", "main")
	}
	if env.NoCache {
		args = append(args, "--no-cache")
	}
	return [][]string{args}
}

// SystemDeps lists the OS packages required by the build.
type SystemDeps struct {
	Manager  PackageManager
	Packages []string
}

// With returns a copy including pkg, keeping the package list sorted and unique.
func (s SystemDeps) With(pkg string) SystemDeps {
	pkgs := append(slices.Clone(s.Packages), pkg)
	slices.Sort(pkgs)
	s.Packages = slices.Compact(pkgs)
	return s
}

// InstallCommands returns the package manager commands installing the packages.
func (s SystemDeps) InstallCommands() [][]string {
	if len(s.Packages) == 0 {
		return nil
	}

	switch s.Manager {
	case PackageManagerApk:
		return [][]string{
			append([]string{"apk", "add", "--no-cache"}, s.Packages...),
		}
	default:
		return [][]string{
			{"apt-get", "update"},
			append([]string{"apt-get", "install", "-y", "--no-install-recommends"}, s.Packages...),
			{"find", "/var/lib/apt/lists", "-mindepth", "1", "-delete"},
		}
	}
}

// Validate checks that the recipe describes a buildable image.
func (r *Recipe) Validate() error {
	if r.Base == "" {
		return zerr.With(zerr.Wrap(ErrInvalidRecipe, "base image is required"), "field", "base")
	}
	if r.Resolver.Name == "" {
		return zerr.With(zerr.Wrap(ErrInvalidRecipe, "resolver name is required"), "field", "resolver.name")
	}
	if !path.IsAbs(r.WorkDir) {
		return zerr.With(zerr.Wrap(ErrInvalidRecipe, "workdir must be absolute"), "workdir", r.WorkDir)
	}
	if r.Context.Manifest == "" || r.Context.Lockfile == "" {
		return zerr.With(zerr.Wrap(ErrInvalidRecipe, "manifest and lockfile are required"), "field", "context")
	}
	switch r.System.Manager {
	case PackageManagerApt, PackageManagerApk:
	default:
		return zerr.With(zerr.Wrap(ErrInvalidRecipe, "unsupported package manager"), "manager", string(r.System.Manager))
	}
	return r.Entrypoint.Validate()
}

// RecipeFileName is the file holding the build recipe at the root of a build context.
const RecipeFileName = "kiln.yaml"
