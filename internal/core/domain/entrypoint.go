package domain

import (
	"slices"

	"go.trai.ch/zerr"
)

// ModuleFlag is the interpreter flag running a module as the main program.
const ModuleFlag = "-m"

// Entrypoint is the process invocation fixed into the image.
// The executable and module never change; callers may only append arguments.
type Entrypoint struct {
	// Interpreter is the executable started in the container (e.g. "python").
	Interpreter string

	// Module is the module run as the main program (e.g. "bot").
	Module string
}

// Validate checks that both the interpreter and the module are set.
func (e Entrypoint) Validate() error {
	if e.Interpreter == "" {
		return zerr.With(zerr.Wrap(ErrInvalidEntrypoint, "interpreter is required"), "field", "interpreter")
	}
	if e.Module == "" {
		return zerr.With(zerr.Wrap(ErrInvalidEntrypoint, "module is required"), "field", "module")
	}
	return nil
}

// Argv returns the default invocation: interpreter, module flag, module.
func (e Entrypoint) Argv() []string {
	return []string{e.Interpreter, ModuleFlag, e.Module}
}

// Invocation returns the argv a container start runs when given args.
// With no args it is exactly Argv.
func (e Entrypoint) Invocation(args []string) []string {
	return append(e.Argv(), slices.Clone(args)...)
}
