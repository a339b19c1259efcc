package domain

// DependencySource describes where a declared dependency is fetched from.
type DependencySource string

const (
	// SourceRegistry is a package index such as PyPI.
	SourceRegistry DependencySource = "registry"
	// SourceGit is a source-control URL; fetching it needs a VCS client in the image.
	SourceGit DependencySource = "git"
	// SourcePath is a local directory or archive.
	SourcePath DependencySource = "path"
	// SourceURL is a direct archive URL.
	SourceURL DependencySource = "url"
)

// Dependency is a direct dependency declared in the manifest.
type Dependency struct {
	// Name is the package name as declared (e.g. "discord.py").
	Name InternedString

	// Constraint is the version constraint as declared (e.g. "^2.3"). Empty for non-registry sources.
	Constraint string

	// Source is where the package is fetched from.
	Source DependencySource

	// Location is the git URL, path or archive URL for non-registry sources.
	Location string

	// Optional marks dependencies only installed through an extra.
	Optional bool
}

// Manifest is the decoded project manifest.
type Manifest struct {
	// Name is the project name.
	Name string

	// Python is the interpreter constraint declared by the project.
	Python string

	// Dependencies lists the direct dependencies, sorted by normalized name.
	Dependencies []Dependency
}

// RequiresVCS reports whether any dependency is fetched from source control.
func (m *Manifest) RequiresVCS() bool {
	for _, dep := range m.Dependencies {
		if dep.Source == SourceGit {
			return true
		}
	}
	return false
}
