package filestore

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/beatok/backend/pkg/utils"
)

// Local implements FileStore on top of the local filesystem.
// All paths are resolved relative to the configured root directory.
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := utils.MakeDir(abs); err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute directory backing the store.
func (l *Local) Root() string { return l.root }

// resolve maps a store path to a filesystem path, refusing paths that
// climb out of the root.
func (l *Local) resolve(path string) (string, error) {
	full := filepath.Join(l.root, filepath.FromSlash(path))
	if full != l.root && !strings.HasPrefix(full, l.root+string(filepath.Separator)) {
		return "", &fs.PathError{Op: "resolve", Path: path, Err: fs.ErrInvalid}
	}
	return full, nil
}

func (l *Local) Read(_ context.Context, path string) (io.ReadCloser, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Write writes to a temporary sibling and renames it into place on Close,
// so readers never see a partially written file.
func (l *Local) Write(_ context.Context, path string) (io.WriteCloser, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := utils.MakeDir(filepath.Dir(full)); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(filepath.Dir(full), "."+filepath.Base(full)+".*")
	if err != nil {
		return nil, err
	}
	return &localWriter{File: f, dst: full}, nil
}

func (l *Local) Delete(_ context.Context, path string) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	err = utils.DeleteFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	l.pruneEmptyDirs(filepath.Dir(full))
	return nil
}

func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	full, err := l.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// pruneEmptyDirs removes now-empty per-beat directories up to the root.
func (l *Local) pruneEmptyDirs(dir string) {
	for dir != l.root && strings.HasPrefix(dir, l.root) {
		if removed, err := utils.RemoveEmptyDir(dir); err != nil || !removed {
			return
		}
		dir = filepath.Dir(dir)
	}
}

type localWriter struct {
	*os.File
	dst string
}

func (w *localWriter) Close() error {
	if err := w.File.Close(); err != nil {
		os.Remove(w.Name())
		return err
	}
	if err := utils.MoveFile(w.Name(), w.dst); err != nil {
		os.Remove(w.Name())
		return err
	}
	return nil
}

var _ FileStore = (*Local)(nil)
