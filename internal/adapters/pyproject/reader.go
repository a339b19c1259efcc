// Package pyproject decodes Python project manifests and poetry lockfiles.
package pyproject

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// pythonKey is the pseudo-dependency poetry uses for the interpreter constraint.
const pythonKey = "python"

// Reader implements ports.ProjectReader for pyproject.toml and poetry.lock.
type Reader struct{}

var _ ports.ProjectReader = (*Reader)(nil)

// NewReader creates a new Reader.
func NewReader() *Reader {
	return &Reader{}
}

type pyprojectFile struct {
	Project struct {
		Name           string   `toml:"name"`
		RequiresPython string   `toml:"requires-python"`
		Dependencies   []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Name         string         `toml:"name"`
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

type lockFile struct {
	Package []struct {
		Name     string `toml:"name"`
		Version  string `toml:"version"`
		Optional bool   `toml:"optional"`
		Source   struct {
			Type              string `toml:"type"`
			URL               string `toml:"url"`
			Reference         string `toml:"reference"`
			ResolvedReference string `toml:"resolved_reference"`
		} `toml:"source"`
	} `toml:"package"`
	Metadata struct {
		ContentHash string `toml:"content-hash"`
	} `toml:"metadata"`
}

// ReadManifest decodes the manifest at path. Dependencies declared under
// [tool.poetry.dependencies] and [project].dependencies are merged.
func (r *Reader) ReadManifest(path string) (*domain.Manifest, error) {
	data, err := readContextFile(path)
	if err != nil {
		return nil, err
	}

	var doc pyprojectFile
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrManifestParse, err.Error()), "path", path)
	}

	manifest := &domain.Manifest{
		Name:   firstNonEmpty(doc.Tool.Poetry.Name, doc.Project.Name),
		Python: doc.Project.RequiresPython,
	}

	seen := make(map[string]struct{})
	add := func(dep domain.Dependency) {
		key := domain.NormalizePackageName(dep.Name.String())
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		manifest.Dependencies = append(manifest.Dependencies, dep)
	}

	for name, spec := range doc.Tool.Poetry.Dependencies {
		if strings.EqualFold(name, pythonKey) {
			if constraint, ok := spec.(string); ok {
				manifest.Python = constraint
			}
			continue
		}
		dep, err := poetryDependency(name, spec)
		if err != nil {
			return nil, zerr.With(err, "path", path)
		}
		add(dep)
	}

	for _, requirement := range doc.Project.Dependencies {
		dep, err := pep508Dependency(requirement)
		if err != nil {
			return nil, zerr.With(err, "path", path)
		}
		add(dep)
	}

	slices.SortFunc(manifest.Dependencies, func(a, b domain.Dependency) int {
		return strings.Compare(domain.NormalizePackageName(a.Name.String()), domain.NormalizePackageName(b.Name.String()))
	})
	return manifest, nil
}

// ReadLockfile decodes the poetry lockfile at path.
func (r *Reader) ReadLockfile(path string) (*domain.Lockfile, error) {
	data, err := readContextFile(path)
	if err != nil {
		return nil, err
	}

	var doc lockFile
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrLockfileParse, err.Error()), "path", path)
	}

	pkgs := make([]domain.LockedPackage, 0, len(doc.Package))
	for _, p := range doc.Package {
		if p.Name == "" || p.Version == "" {
			return nil, zerr.With(zerr.Wrap(domain.ErrLockfileParse, "package entry without name or version"), "path", path)
		}
		pkgs = append(pkgs, domain.LockedPackage{
			Name:       domain.NewInternedString(p.Name),
			Version:    p.Version,
			SourceType: p.Source.Type,
			SourceURL:  p.Source.URL,
			Reference:  firstNonEmpty(p.Source.ResolvedReference, p.Source.Reference),
		})
	}
	return domain.NewLockfile(doc.Metadata.ContentHash, pkgs), nil
}

func readContextFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the recipe
	if err != nil {
		msg := "failed to read file"
		if errors.Is(err, fs.ErrNotExist) {
			msg = "file does not exist"
		}
		return nil, zerr.With(zerr.Wrap(domain.ErrBuildContextFile, msg), "path", path)
	}
	return data, nil
}

// poetryDependency decodes one entry of [tool.poetry.dependencies]: either a
// version string or an inline table naming its source.
func poetryDependency(name string, spec any) (domain.Dependency, error) {
	dep := domain.Dependency{
		Name:   domain.NewInternedString(name),
		Source: domain.SourceRegistry,
	}

	switch v := spec.(type) {
	case string:
		dep.Constraint = v
	case map[string]any:
		dep.Constraint = stringField(v, "version")
		dep.Optional, _ = v["optional"].(bool)
		switch {
		case stringField(v, "git") != "":
			dep.Source = domain.SourceGit
			dep.Location = stringField(v, "git")
		case stringField(v, "path") != "":
			dep.Source = domain.SourcePath
			dep.Location = stringField(v, "path")
		case stringField(v, "url") != "":
			dep.Source = domain.SourceURL
			dep.Location = stringField(v, "url")
		}
	case []any:
		// Multiple-constraint dependencies; the first marker set decides the source.
		if len(v) == 0 {
			return dep, zerr.With(zerr.Wrap(domain.ErrManifestParse, "empty constraint list"), "dependency", name)
		}
		return poetryDependency(name, v[0])
	default:
		return dep, zerr.With(zerr.Wrap(domain.ErrManifestParse, "unsupported dependency declaration"), "dependency", name)
	}
	return dep, nil
}

var requirementName = regexp.MustCompile(`^\s*([A-Za-z0-9][A-Za-z0-9._-]*)\s*(\[[^\]]*\])?\s*(.*)$`)

// pep508Dependency decodes a PEP 508 requirement string such as
// "discord.py>=2.3" or "lib @ git+https://host/lib.git".
func pep508Dependency(requirement string) (domain.Dependency, error) {
	m := requirementName.FindStringSubmatch(requirement)
	if m == nil {
		return domain.Dependency{}, zerr.With(zerr.Wrap(domain.ErrManifestParse, "invalid requirement"), "requirement", requirement)
	}

	dep := domain.Dependency{
		Name:   domain.NewInternedString(m[1]),
		Source: domain.SourceRegistry,
	}

	rest, _, _ := strings.Cut(m[3], ";")
	rest = strings.TrimSpace(rest)
	if location, ok := strings.CutPrefix(rest, "@"); ok {
		location = strings.TrimSpace(location)
		dep.Location = location
		switch {
		case strings.HasPrefix(location, "git+"):
			dep.Source = domain.SourceGit
		case strings.HasPrefix(location, "file:"):
			dep.Source = domain.SourcePath
		default:
			dep.Source = domain.SourceURL
		}
		return dep, nil
	}

	dep.Constraint = strings.Trim(rest, "() ")
	return dep, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
