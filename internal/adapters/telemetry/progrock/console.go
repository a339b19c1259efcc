package progrock

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/vito/progrock"
)

// ConsoleWriter is a progrock.Writer printing plain-text progress: one line
// per stage transition and the stage output indented below its name.
type ConsoleWriter struct {
	out io.Writer

	mu      sync.Mutex
	names   map[string]string
	started map[string]bool
	done    map[string]bool
	partial map[string]*bytes.Buffer
}

// NewConsoleWriter creates a ConsoleWriter printing to out.
func NewConsoleWriter(out io.Writer) *ConsoleWriter {
	return &ConsoleWriter{
		out:     out,
		names:   make(map[string]string),
		started: make(map[string]bool),
		done:    make(map[string]bool),
		partial: make(map[string]*bytes.Buffer),
	}
}

// WriteStatus prints the transitions carried by update.
func (w *ConsoleWriter) WriteStatus(update *progrock.StatusUpdate) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, v := range update.Vertexes {
		w.vertex(v)
	}
	for _, l := range update.Logs {
		w.log(l.Vertex, l.Data)
	}
	return nil
}

func (w *ConsoleWriter) vertex(v *progrock.Vertex) {
	w.names[v.Id] = v.Name

	if !w.started[v.Id] && !v.Cached {
		w.started[v.Id] = true
		_, _ = fmt.Fprintf(w.out, "▸ %s\n", v.Name)
	}

	if w.done[v.Id] {
		return
	}

	switch {
	case v.Cached:
		w.done[v.Id] = true
		_, _ = fmt.Fprintf(w.out, "• %s (cached)\n", v.Name)
	case v.Completed != nil && v.Error != nil:
		w.done[v.Id] = true
		w.flush(v.Id)
		_, _ = fmt.Fprintf(w.out, "✗ %s: %s\n", v.Name, *v.Error)
	case v.Completed != nil:
		w.done[v.Id] = true
		w.flush(v.Id)
		_, _ = fmt.Fprintf(w.out, "✓ %s\n", v.Name)
	}
}

// log prints complete lines and keeps a trailing partial line for later.
func (w *ConsoleWriter) log(id string, data []byte) {
	buf, ok := w.partial[id]
	if !ok {
		buf = new(bytes.Buffer)
		w.partial[id] = buf
	}
	buf.Write(data)

	for {
		line, err := buf.ReadBytes('\n')
		if err != nil {
			buf.Reset()
			buf.Write(line)
			return
		}
		_, _ = fmt.Fprintf(w.out, "  │ %s", line)
	}
}

func (w *ConsoleWriter) flush(id string) {
	buf, ok := w.partial[id]
	if !ok || buf.Len() == 0 {
		return
	}
	_, _ = fmt.Fprintf(w.out, "  │ %s\n", buf.String())
	buf.Reset()
}

// Close prints any pending partial lines.
func (w *ConsoleWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id := range w.partial {
		w.flush(id)
	}
	return nil
}
