package config

// Kilnfile represents the structure of the kiln.yaml recipe file.
type Kilnfile struct {
	Version    string        `yaml:"version"`
	Image      ImageDTO      `yaml:"image"`
	Env        EnvDTO        `yaml:"env"`
	Resolver   ResolverDTO   `yaml:"resolver"`
	System     SystemDTO     `yaml:"system"`
	Context    ContextDTO    `yaml:"context"`
	Entrypoint EntrypointDTO `yaml:"entrypoint"`
}

// ImageDTO describes the produced image.
type ImageDTO struct {
	Tag     string `yaml:"tag"`
	Base    string `yaml:"base"`
	Workdir string `yaml:"workdir"`
}

// EnvDTO holds the resolver flags. Pointers distinguish unset from false.
type EnvDTO struct {
	NoCache      *bool             `yaml:"no_cache"`
	NoVirtualenv *bool             `yaml:"no_virtualenv"`
	Vars         map[string]string `yaml:"vars"`
}

// ResolverDTO describes the dependency manager.
type ResolverDTO struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	OnlyMain bool   `yaml:"only_main"`
}

// SystemDTO lists OS packages.
type SystemDTO struct {
	Manager  string   `yaml:"manager"`
	Packages []string `yaml:"packages"`
}

// ContextDTO locates build context files.
type ContextDTO struct {
	Manifest string   `yaml:"manifest"`
	Lockfile string   `yaml:"lockfile"`
	Ignore   []string `yaml:"ignore"`
}

// EntrypointDTO is the container start contract.
type EntrypointDTO struct {
	Interpreter string `yaml:"interpreter"`
	Module      string `yaml:"module"`
}
