package domain

import "go.trai.ch/zerr"

var (
	// ErrBaseImageFetch is returned when the pinned base image cannot be pulled from its registry.
	ErrBaseImageFetch = zerr.New("failed to fetch base image")

	// ErrResolverInstall is returned when installing the dependency resolver tool fails.
	ErrResolverInstall = zerr.New("failed to install resolver tool")

	// ErrSystemPackageInstall is returned when the OS package manager exits non-zero.
	ErrSystemPackageInstall = zerr.New("failed to install system packages")

	// ErrDependencyResolution is returned when the resolver fails to install the locked dependency set.
	ErrDependencyResolution = zerr.New("dependency resolution failed")

	// ErrUnpinnedDependency is returned when a manifest dependency has no pinned lockfile entry.
	ErrUnpinnedDependency = zerr.New("dependency is not pinned in lockfile")

	// ErrBuildContextFile is returned when a build context file is missing or unreadable.
	ErrBuildContextFile = zerr.New("build context file unavailable")

	// ErrLayerCommitFailed is returned when a stage finished but its layer could not be committed.
	ErrLayerCommitFailed = zerr.New("failed to commit layer")

	// ErrBuildExecutionFailed is returned when the build pipeline aborts.
	ErrBuildExecutionFailed = zerr.New("build execution failed")

	// ErrConfigNotFound is returned when no recipe file exists in the directory or its parents.
	ErrConfigNotFound = zerr.New("recipe file not found")

	// ErrInvalidRecipe is returned when the build recipe is incomplete or inconsistent.
	ErrInvalidRecipe = zerr.New("invalid build recipe")

	// ErrInvalidEntrypoint is returned when the entrypoint has no interpreter or module.
	ErrInvalidEntrypoint = zerr.New("invalid entrypoint")

	// ErrInvalidPlan is returned when a stage list violates the required stage order.
	ErrInvalidPlan = zerr.New("invalid build plan")

	// ErrManifestParse is returned when the manifest cannot be decoded.
	ErrManifestParse = zerr.New("failed to parse manifest")

	// ErrLockfileParse is returned when the lockfile cannot be decoded.
	ErrLockfileParse = zerr.New("failed to parse lockfile")

	// ErrRuntimeUnavailable is returned when the container runtime cannot be reached.
	ErrRuntimeUnavailable = zerr.New("container runtime unavailable")

	// ErrStoreReadFailed is returned when reading from the layer cache fails.
	ErrStoreReadFailed = zerr.New("failed to read from layer cache")

	// ErrStoreWriteFailed is returned when writing to the layer cache fails.
	ErrStoreWriteFailed = zerr.New("failed to write to layer cache")

	// ErrUnknownBackend is returned when a build backend name is not recognized.
	ErrUnknownBackend = zerr.New("unknown build backend")
)
