package domain

import (
	"regexp"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

var nameSeparators = regexp.MustCompile(`[-_.]+`)

// NormalizePackageName returns the canonical form of a Python package name,
// so that "Discord.py", "discord-py" and "discord_py" compare equal.
func NormalizePackageName(name string) string {
	return nameSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// LockedPackage is a single pinned entry of the lockfile.
type LockedPackage struct {
	// Name is the package name as recorded by the resolver.
	Name InternedString

	// Version is the exact pinned version.
	Version string

	// SourceType is empty for registry packages, otherwise "git", "directory", "file" or "url".
	SourceType string

	// SourceURL is the fetch location for non-registry packages.
	SourceURL string

	// Reference is the resolved VCS reference (commit) for git packages.
	Reference string
}

// Lockfile is the decoded lockfile: the complete pinned dependency set.
type Lockfile struct {
	// ContentHash is the manifest digest recorded by the resolver when locking.
	ContentHash string

	packages map[string]LockedPackage
}

// NewLockfile creates a Lockfile from its pinned packages.
func NewLockfile(contentHash string, pkgs []LockedPackage) *Lockfile {
	l := &Lockfile{
		ContentHash: contentHash,
		packages:    make(map[string]LockedPackage, len(pkgs)),
	}
	for _, pkg := range pkgs {
		l.packages[NormalizePackageName(pkg.Name.String())] = pkg
	}
	return l
}

// Len returns the number of pinned packages.
func (l *Lockfile) Len() int {
	return len(l.packages)
}

// Lookup returns the pinned entry for name.
func (l *Lockfile) Lookup(name string) (LockedPackage, bool) {
	pkg, ok := l.packages[NormalizePackageName(name)]
	return pkg, ok
}

// Verify checks that every manifest dependency has a pinned entry, and that
// git dependencies are pinned from source control.
// Missing pins are reported together under the "dependencies" metadata key.
func (l *Lockfile) Verify(m *Manifest) error {
	var missing []string
	for _, dep := range m.Dependencies {
		pkg, ok := l.Lookup(dep.Name.String())
		if !ok {
			missing = append(missing, dep.Name.String())
			continue
		}
		if dep.Source == SourceGit && pkg.SourceType != string(SourceGit) {
			err := zerr.Wrap(ErrUnpinnedDependency, "git dependency is locked from another source")
			err = zerr.With(err, "dependency", dep.Name.String())
			return zerr.With(err, "locked_source", pkg.SourceType)
		}
	}

	if len(missing) > 0 {
		slices.Sort(missing)
		err := zerr.Wrap(ErrUnpinnedDependency, "lockfile is out of date with manifest")
		return zerr.With(err, "dependencies", strings.Join(missing, ", "))
	}
	return nil
}
