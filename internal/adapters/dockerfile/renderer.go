// Package dockerfile renders a build plan as a Dockerfile, so the same image
// can be produced by "docker build" or any BuildKit frontend.
package dockerfile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"strconv"
	"strings"
	"text/template"

	"go.trai.ch/kiln/internal/adapters/shell"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// Syntax is the Dockerfile frontend required for COPY --exclude.
const Syntax = "docker/dockerfile:1.7-labs"

//go:embed templates/Dockerfile.tmpl
var dockerfileTemplate string

var tmpl = template.Must(template.New("Dockerfile").Parse(dockerfileTemplate))

var _ ports.Renderer = (*Renderer)(nil)

// Renderer implements ports.Renderer.
type Renderer struct{}

// NewRenderer creates a new Renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

type templateData struct {
	Syntax  string
	Base    string
	Env     []string
	WorkDir string
	Steps   []step
}

type step struct {
	Comment     string
	Instruction string
}

// Render returns the Dockerfile equivalent of plan. Every stage after the
// base maps to exactly one instruction, so each produces one layer.
func (r *Renderer) Render(plan *domain.Plan) ([]byte, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	final, _ := plan.Stage(domain.StageEntrypoint)
	data := templateData{
		Syntax:  Syntax,
		WorkDir: final.Config.WorkingDir,
	}
	for _, kv := range final.Config.Env {
		k, v, _ := strings.Cut(kv, "=")
		data.Env = append(data.Env, k+"="+strconv.Quote(v))
	}

	for _, stage := range plan.Walk() {
		if stage.Kind == domain.StageBase {
			data.Base = stage.Image
			continue
		}
		instruction, err := r.instruction(&stage)
		if err != nil {
			return nil, zerr.With(err, "stage", stage.Name)
		}
		data.Steps = append(data.Steps, step{Comment: stage.Kind.String(), Instruction: instruction})
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, zerr.Wrap(err, "failed to render Dockerfile template")
	}
	return buf.Bytes(), nil
}

func (r *Renderer) instruction(stage *domain.Stage) (string, error) {
	switch {
	case stage.Kind.Runs():
		script, err := shell.Script(stage.Commands)
		if err != nil {
			return "", err
		}
		return "RUN " + script, nil

	case stage.Kind.Copies():
		var b strings.Builder
		b.WriteString("COPY")
		for _, exclude := range copyExcludes(stage) {
			b.WriteString(" --exclude=")
			b.WriteString(exclude)
		}
		args, err := jsonArray(append(append([]string{}, stage.Sources...), "./"))
		if err != nil {
			return "", err
		}
		b.WriteString(" ")
		b.WriteString(args)
		return b.String(), nil

	case stage.Kind == domain.StageEntrypoint:
		entrypoint, err := jsonArray(stage.Config.Entrypoint)
		if err != nil {
			return "", err
		}
		cmd, err := jsonArray(stage.Config.Cmd)
		if err != nil {
			return "", err
		}
		return "ENTRYPOINT " + entrypoint + "\nCMD " + cmd, nil
	}

	return "", zerr.With(zerr.Wrap(domain.ErrInvalidPlan, "stage cannot be rendered"), "kind", stage.Kind.String())
}

// copyExcludes mirrors the context walk: VCS directories are always skipped
// and a pattern without a slash matches an entry name at any depth.
func copyExcludes(stage *domain.Stage) []string {
	if stage.Kind != domain.StageCopySource {
		return nil
	}
	var excludes []string
	for _, dir := range domain.VCSDirs {
		excludes = append(excludes, dir, "**/"+dir)
	}
	for _, pattern := range stage.Excludes {
		excludes = append(excludes, pattern)
		if !strings.Contains(pattern, "/") {
			excludes = append(excludes, "**/"+pattern)
		}
	}
	return excludes
}

func jsonArray(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", zerr.Wrap(err, "failed to encode instruction arguments")
	}
	return string(data), nil
}
