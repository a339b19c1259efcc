// Package shell turns stage commands into POSIX shell scripts and drives the
// external docker CLI builder.
package shell

import (
	"strings"

	"go.trai.ch/zerr"
	"mvdan.cc/sh/v3/syntax"
)

// Interpreter is the shell every run stage executes its script with.
var Interpreter = []string{"/bin/sh", "-c"}

// commandSeparator stops the script at the first failing command.
const commandSeparator = " && "

// Script joins argv lists into one POSIX shell script. Every argument is
// quoted, so the script runs exactly the given argv lists in order and stops
// at the first non-zero exit.
func Script(cmds [][]string) (string, error) {
	if len(cmds) == 0 {
		return "", zerr.New("script has no commands")
	}

	parts := make([]string, 0, len(cmds))
	for _, argv := range cmds {
		line, err := Line(argv)
		if err != nil {
			return "", err
		}
		parts = append(parts, line)
	}

	script := strings.Join(parts, commandSeparator)
	if err := Validate(script); err != nil {
		return "", err
	}
	return script, nil
}

// Line quotes a single argv list into one shell command.
func Line(argv []string) (string, error) {
	if len(argv) == 0 {
		return "", zerr.New("empty command")
	}

	words := make([]string, 0, len(argv))
	for _, arg := range argv {
		quoted, err := syntax.Quote(arg, syntax.LangPOSIX)
		if err != nil {
			return "", zerr.With(zerr.Wrap(err, "failed to quote argument"), "argument", arg)
		}
		words = append(words, quoted)
	}
	return strings.Join(words, " "), nil
}

// Validate parses script as POSIX shell.
func Validate(script string) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	if _, err := parser.Parse(strings.NewReader(script), "script"); err != nil {
		return zerr.Wrap(err, "invalid shell script")
	}
	return nil
}
