package fs

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

var _ ports.Hasher = (*Hasher)(nil)

// Hasher computes layer cache keys from stage definitions and file content.
type Hasher struct {
	limit int
}

// NewHasher creates a new Hasher.
func NewHasher() *Hasher {
	return &Hasher{limit: runtime.NumCPU()}
}

// ComputeFileHash computes the XXHash of a file's permission bits and content.
// Symbolic links hash their target path.
func (h *Hasher) ComputeFileHash(path string) (uint64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, zerr.With(zerr.Wrap(domain.ErrBuildContextFile, "failed to stat file"), "path", path)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return 0, zerr.With(zerr.Wrap(domain.ErrBuildContextFile, "failed to read link"), "path", path)
		}
		return xxhash.Sum64String(target), nil
	}

	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return 0, zerr.With(zerr.Wrap(domain.ErrBuildContextFile, "failed to open file"), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	hasher := xxhash.New()
	if err := binary.Write(hasher, binary.LittleEndian, uint32(info.Mode().Perm())); err != nil {
		return 0, zerr.Wrap(err, "failed to write mode to digest")
	}
	if _, err := io.Copy(hasher, f); err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to hash file content"), "path", path)
	}

	return hasher.Sum64(), nil
}

// ComputeStageKey hashes the parent key, the stage definition and the content
// of files. Files are hashed concurrently but combined in the given order.
func (h *Hasher) ComputeStageKey(parent string, stage *domain.Stage, root string, files []string) (string, error) {
	sums := make([]uint64, len(files))

	var g errgroup.Group
	g.SetLimit(h.limit)
	for i, file := range files {
		g.Go(func() error {
			sum, err := h.ComputeFileHash(filepath.Join(root, filepath.FromSlash(file)))
			if err != nil {
				return err
			}
			sums[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	hasher := xxhash.New()
	writeField(hasher, parent)
	h.hashStageDefinition(stage, hasher)

	for i, file := range files {
		writeField(hasher, file)
		if err := binary.Write(hasher, binary.LittleEndian, sums[i]); err != nil {
			return "", zerr.Wrap(err, "failed to write hash to digest")
		}
	}

	return fmt.Sprintf("%016x", hasher.Sum64()), nil
}

// hashStageDefinition hashes everything that decides what a stage does.
// The display name is excluded so relabeling a stage keeps its cache entry.
func (h *Hasher) hashStageDefinition(stage *domain.Stage, hasher *xxhash.Digest) {
	writeField(hasher, stage.Kind.String())
	writeField(hasher, stage.Image)

	for _, cmd := range stage.Commands {
		writeList(hasher, cmd)
	}
	endSection(hasher)

	writeList(hasher, stage.Env)
	writeField(hasher, stage.WorkingDir)
	writeList(hasher, stage.Sources)
	writeList(hasher, stage.Excludes)

	writeList(hasher, stage.Config.Entrypoint)
	// A nil Cmd keeps the base image command; an empty one clears it.
	if stage.Config.Cmd == nil {
		writeField(hasher, "inherit")
	} else {
		writeList(hasher, stage.Config.Cmd)
	}
	writeList(hasher, stage.Config.Env)
	writeField(hasher, stage.Config.WorkingDir)
}

func writeField(w io.Writer, s string) {
	_, _ = io.WriteString(w, s)
	_, _ = w.Write([]byte{0})
}

func writeList(w io.Writer, items []string) {
	for _, s := range items {
		writeField(w, s)
	}
	endSection(w)
}

func endSection(w io.Writer) {
	_, _ = w.Write([]byte{0})
}
