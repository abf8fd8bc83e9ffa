// Package filestore keeps uploaded beat audio on local disk or in an
// S3-compatible bucket.
package filestore

import (
	"context"
	"fmt"
	"io"
)

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading. The caller must close it.
	// A missing file yields an error wrapping os.ErrNotExist.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing, truncating any existing
	// file. Data is only durable once Close returns nil.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file. Missing files are not an error.
	Delete(ctx context.Context, path string) error

	Exists(ctx context.Context, path string) (bool, error)
}

// Put copies r into path and returns the number of bytes written.
func Put(ctx context.Context, fs FileStore, path string, r io.Reader) (int64, error) {
	w, err := fs.Write(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("open %s for writing: %w", path, err)
	}
	n, err := io.Copy(w, r)
	if err != nil {
		w.Close()
		return n, fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return n, fmt.Errorf("flush %s: %w", path, err)
	}
	return n, nil
}

// ReadAll returns the full contents of path.
func ReadAll(ctx context.Context, fs FileStore, path string) ([]byte, error) {
	r, err := fs.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
