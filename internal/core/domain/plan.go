package domain

import (
	"iter"
	"slices"

	"go.trai.ch/zerr"
)

// Plan is the ordered list of stages building one image.
type Plan struct {
	// Tag is the reference applied to the final image.
	Tag string

	stages []Stage
}

// NewPlan derives the stage list for recipe. The manifest decides whether the
// version-control client has to be installed before dependency resolution.
func NewPlan(recipe *Recipe, manifest *Manifest) (*Plan, error) {
	if err := recipe.Validate(); err != nil {
		return nil, err
	}

	env := recipe.Env.Environ()
	workdir := recipe.WorkDir

	system := recipe.System
	if manifest.RequiresVCS() {
		system = system.With(VCSPackage)
	}

	stages := []Stage{
		{
			Name:  "pull " + recipe.Base,
			Kind:  StageBase,
			Image: recipe.Base,
		},
		{
			Name:       "install " + recipe.Resolver.Requirement(),
			Kind:       StageResolverTool,
			Commands:   recipe.Resolver.InstallCommands(recipe.Env),
			Env:        env,
			WorkingDir: workdir,
		},
	}

	if cmds := system.InstallCommands(); len(cmds) > 0 {
		stages = append(stages, Stage{
			Name:       "install system packages",
			Kind:       StageSystemDeps,
			Commands:   cmds,
			Env:        env,
			WorkingDir: workdir,
		})
	}

	stages = append(stages,
		Stage{
			Name:       "copy " + recipe.Context.Manifest + " " + recipe.Context.Lockfile,
			Kind:       StageCopyManifest,
			Sources:    []string{recipe.Context.Manifest, recipe.Context.Lockfile},
			WorkingDir: workdir,
		},
		Stage{
			Name:       "resolve dependencies",
			Kind:       StageResolve,
			Commands:   recipe.Resolver.ResolveCommands(recipe.Env),
			Env:        env,
			WorkingDir: workdir,
		},
		Stage{
			Name:       "copy source",
			Kind:       StageCopySource,
			Sources:    []string{"."},
			Excludes:   slices.Clone(recipe.Context.Ignore),
			WorkingDir: workdir,
		},
		Stage{
			Name: "entrypoint " + recipe.Entrypoint.Module,
			Kind: StageEntrypoint,
			Config: ImageConfig{
				Entrypoint: recipe.Entrypoint.Argv(),
				Cmd:        []string{},
				Env:        env,
				WorkingDir: workdir,
			},
			WorkingDir: workdir,
		},
	)

	p := &Plan{Tag: recipe.Tag, stages: stages}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewPlanFromStages creates a plan from an explicit stage list.
func NewPlanFromStages(tag string, stages []Stage) (*Plan, error) {
	p := &Plan{Tag: tag, stages: slices.Clone(stages)}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the stage order: a base stage first, an entrypoint stage
// last, and kinds strictly increasing in between.
func (p *Plan) Validate() error {
	if len(p.stages) < 2 {
		return zerr.Wrap(ErrInvalidPlan, "plan needs at least a base and an entrypoint stage")
	}
	if p.stages[0].Kind != StageBase {
		return zerr.With(zerr.Wrap(ErrInvalidPlan, "first stage must pull the base image"), "stage", p.stages[0].Name)
	}
	if last := p.stages[len(p.stages)-1]; last.Kind != StageEntrypoint {
		return zerr.With(zerr.Wrap(ErrInvalidPlan, "last stage must set the entrypoint"), "stage", last.Name)
	}
	for i := 1; i < len(p.stages); i++ {
		if p.stages[i].Kind <= p.stages[i-1].Kind {
			err := zerr.Wrap(ErrInvalidPlan, "stages out of order")
			err = zerr.With(err, "stage", p.stages[i].Name)
			return zerr.With(err, "after", p.stages[i-1].Name)
		}
	}
	return nil
}

// Len returns the number of stages.
func (p *Plan) Len() int {
	return len(p.stages)
}

// Stages returns a copy of the stage list.
func (p *Plan) Stages() []Stage {
	return slices.Clone(p.stages)
}

// Stage returns the stage of the given kind.
func (p *Plan) Stage(kind StageKind) (Stage, bool) {
	for _, s := range p.stages {
		if s.Kind == kind {
			return s, true
		}
	}
	return Stage{}, false
}

// Walk yields the stages in execution order.
func (p *Plan) Walk() iter.Seq2[int, Stage] {
	return func(yield func(int, Stage) bool) {
		for i, s := range p.stages {
			if !yield(i, s) {
				return
			}
		}
	}
}
