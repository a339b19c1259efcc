// Package progrock provides the Progrock implementation of the telemetry adapter.
package progrock

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/opencontainers/go-digest"
	"github.com/vito/progrock"
	"go.trai.ch/kiln/internal/core/ports"
)

var _ ports.Telemetry = (*Recorder)(nil)

// Recorder implements the ports.Telemetry interface using the vito/progrock library.
type Recorder struct {
	w   progrock.Writer
	rec *progrock.Recorder

	mu   sync.Mutex
	seen map[string]int
}

// New creates a Recorder printing progress to out. A nil out records to an
// in-memory tape only.
func New(out io.Writer) *Recorder {
	if out == nil {
		return NewRecorder(progrock.NewTape())
	}
	return NewRecorder(NewConsoleWriter(out))
}

// NewRecorder creates a new Recorder with the given writer.
func NewRecorder(w progrock.Writer) *Recorder {
	return &Recorder{
		w:    w,
		rec:  progrock.NewRecorder(w),
		seen: make(map[string]int),
	}
}

// Record starts recording a new vertex. Recording the same name twice yields
// distinct vertices.
func (r *Recorder) Record(ctx context.Context, name string) (context.Context, ports.Vertex) {
	r.mu.Lock()
	n := r.seen[name]
	r.seen[name] = n + 1
	r.mu.Unlock()

	d := digest.FromString(fmt.Sprintf("%s#%d", name, n))

	v := r.rec.Vertex(d, name)
	vertex := &Vertex{vertex: v}
	return ports.ContextWithVertex(ctx, vertex), vertex
}

// Close flushes and closes the recording session.
func (r *Recorder) Close() error {
	// If the writer implements Close, call it.
	if c, ok := r.w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
