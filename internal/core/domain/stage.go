package domain

// StageKind identifies a pipeline stage. Kinds are ordered: a valid plan
// lists its stages in strictly increasing kind order.
type StageKind int

const (
	// StageBase pulls the pinned base runtime image.
	StageBase StageKind = iota
	// StageResolverTool installs the dependency resolver tool.
	StageResolverTool
	// StageSystemDeps installs OS packages.
	StageSystemDeps
	// StageCopyManifest copies the manifest and lockfile into the image.
	StageCopyManifest
	// StageResolve installs the locked dependency set.
	StageResolve
	// StageCopySource copies the remaining source tree into the image.
	StageCopySource
	// StageEntrypoint fixes the process the container runs on start.
	StageEntrypoint
)

var stageKindNames = map[StageKind]string{
	StageBase:         "base",
	StageResolverTool: "resolver-tool",
	StageSystemDeps:   "system-deps",
	StageCopyManifest: "copy-manifest",
	StageResolve:      "resolve",
	StageCopySource:   "copy-source",
	StageEntrypoint:   "entrypoint",
}

// String returns the stage kind name.
func (k StageKind) String() string {
	if name, ok := stageKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Runs reports whether the stage executes commands inside a container.
func (k StageKind) Runs() bool {
	return k == StageResolverTool || k == StageSystemDeps || k == StageResolve
}

// Copies reports whether the stage copies build context files into the image.
func (k StageKind) Copies() bool {
	return k == StageCopyManifest || k == StageCopySource
}

// Sentinel returns the error reported when a stage of this kind fails.
func (k StageKind) Sentinel() error {
	switch k {
	case StageBase:
		return ErrBaseImageFetch
	case StageResolverTool:
		return ErrResolverInstall
	case StageSystemDeps:
		return ErrSystemPackageInstall
	case StageResolve:
		return ErrDependencyResolution
	case StageCopyManifest, StageCopySource:
		return ErrBuildContextFile
	default:
		return ErrLayerCommitFailed
	}
}

// ImageConfig is the runtime configuration recorded in the image.
type ImageConfig struct {
	Entrypoint []string
	Cmd        []string
	Env        []string
	WorkingDir string
}

// Stage is one step of the build. Every stage produces exactly one layer.
type Stage struct {
	// Name is a human-readable label.
	Name string

	// Kind selects how the stage is executed.
	Kind StageKind

	// Image is the pinned reference pulled by the base stage.
	Image string

	// Commands are the argv lists run in order by run stages.
	Commands [][]string

	// Env holds KEY=VALUE entries set for run stages and recorded in the image.
	Env []string

	// WorkingDir is the directory commands run in and files are copied to.
	WorkingDir string

	// Sources are the context-relative patterns copied by copy stages.
	Sources []string

	// Excludes are file name patterns skipped by copy stages.
	Excludes []string

	// Config is the image configuration written by the entrypoint stage.
	Config ImageConfig
}
