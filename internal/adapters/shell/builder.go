package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/shlex"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// DefaultDockerCommand is the CLI invoked when no override is configured.
const DefaultDockerCommand = "docker"

var _ ports.ImageBuilder = (*Builder)(nil)

// Builder implements ports.ImageBuilder by piping a Dockerfile into
// "docker build".
type Builder struct {
	logger  ports.Logger
	command []string
}

// NewBuilder creates a new Builder. command is split with shell word rules,
// so wrappers such as "sudo docker" work.
func NewBuilder(logger ports.Logger, command string) (*Builder, error) {
	if strings.TrimSpace(command) == "" {
		command = DefaultDockerCommand
	}
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "invalid docker command"), "command", command)
	}
	if len(argv) == 0 {
		return nil, zerr.With(zerr.New("invalid docker command"), "command", command)
	}
	return &Builder{logger: logger, command: argv}, nil
}

// Args returns the argv Build runs.
func (b *Builder) Args(contextDir, tag string, noCache bool) []string {
	args := append([]string{}, b.command...)
	args = append(args, "build", "--file", "-")
	if tag != "" {
		args = append(args, "--tag", tag)
	}
	if noCache {
		args = append(args, "--no-cache")
	}
	return append(args, contextDir)
}

// Build runs the docker CLI over contextDir, feeding dockerfile on stdin.
// Output goes to the vertex carried by ctx, or to the logger line by line.
func (b *Builder) Build(ctx context.Context, dockerfile []byte, contextDir, tag string, noCache bool) error {
	argv := b.Args(contextDir, tag, noCache)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // user provided command
	cmd.Stdin = bytes.NewReader(dockerfile)

	var stdout, stderr io.Writer
	if vertex, ok := ports.VertexFromContext(ctx); ok {
		stdout, stderr = vertex.Stdout(), vertex.Stderr()
	} else {
		outLog := &logWriter{logger: b.logger}
		errLog := &logWriter{logger: b.logger}
		defer outLog.Flush()
		defer errLog.Flush()
		stdout, stderr = outLog, errLog
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return zerr.With(zerr.Wrap(err, "docker build failed"), "exit_code", exitCode)
	}
	return nil
}

// logWriter forwards complete lines to the logger. The docker CLI reports
// progress on stderr, so both streams log at info level.
type logWriter struct {
	logger ports.Logger

	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Keep the partial line for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emit(strings.TrimSuffix(line, "\n"))
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (w *logWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *logWriter) emit(line string) {
	if line == "" {
		return
	}
	w.logger.Info(line)
}
