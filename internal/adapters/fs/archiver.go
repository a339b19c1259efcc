package fs

import (
	"archive/tar"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Archiver = (*Archiver)(nil)

// epoch is the modification time of every archived entry, so that equal
// content always yields an equal layer.
var epoch = time.Unix(0, 0).UTC()

const dirMode = 0o755

// Archiver packs build context files into a tar stream.
type Archiver struct{}

// NewArchiver creates a new Archiver.
func NewArchiver() *Archiver {
	return &Archiver{}
}

// Archive streams a tar archive holding files below dest. Parent directories
// are emitted before their contents. Ownership and timestamps are normalized.
func (a *Archiver) Archive(root string, files []string, dest string) (io.ReadCloser, error) {
	if !path.IsAbs(dest) {
		return nil, zerr.With(zerr.New("archive destination must be absolute"), "dest", dest)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(a.write(pw, root, files, dest))
	}()
	return pr, nil
}

func (a *Archiver) write(w io.Writer, root string, files []string, dest string) error {
	tw := tar.NewWriter(w)
	written := make(map[string]struct{})

	for _, file := range files {
		name := strings.TrimPrefix(path.Join(dest, file), "/")

		if err := a.writeParents(tw, path.Dir(name), written); err != nil {
			return err
		}
		if err := a.writeFile(tw, filepath.Join(root, filepath.FromSlash(file)), name); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return zerr.Wrap(err, "failed to finish archive")
	}
	return nil
}

func (a *Archiver) writeParents(tw *tar.Writer, dir string, written map[string]struct{}) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, ok := written[dir]; ok {
		return nil
	}
	if err := a.writeParents(tw, path.Dir(dir), written); err != nil {
		return err
	}

	hdr := &tar.Header{
		Typeflag: tar.TypeDir,
		Name:     dir + "/",
		Mode:     dirMode,
		ModTime:  epoch,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write directory header"), "path", dir)
	}
	written[dir] = struct{}{}
	return nil
}

func (a *Archiver) writeFile(tw *tar.Writer, src, name string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return zerr.With(zerr.Wrap(domain.ErrBuildContextFile, "failed to stat file"), "path", src)
	}

	hdr := &tar.Header{
		Name:    name,
		Mode:    int64(info.Mode().Perm()),
		ModTime: epoch,
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return zerr.With(zerr.Wrap(domain.ErrBuildContextFile, "failed to read link"), "path", src)
		}
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = target
		return tw.WriteHeader(hdr)
	}

	if !info.Mode().IsRegular() {
		return zerr.With(zerr.Wrap(domain.ErrBuildContextFile, "unsupported file type"), "path", src)
	}

	hdr.Typeflag = tar.TypeReg
	hdr.Size = info.Size()
	if err := tw.WriteHeader(hdr); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write file header"), "path", src)
	}

	f, err := os.Open(src) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return zerr.With(zerr.Wrap(domain.ErrBuildContextFile, "failed to open file"), "path", src)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	if _, err := io.CopyN(tw, f, hdr.Size); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to copy file content"), "path", src)
	}
	return nil
}
