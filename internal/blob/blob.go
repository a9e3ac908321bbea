// Package blob stores opaque objects addressed by slash-separated paths.
// The disk datastore keeps file content in a Local store; the cloud
// datastore mirrors records to an S3 store.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// ObjectStore is a minimal interface for object-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type ObjectStore interface {
	// Read opens the named object for reading.
	// The caller must close the returned ReadCloser when done.
	// If the object does not exist, an error wrapping os.ErrNotExist is returned.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named object for writing, replacing any previous
	// content. The object only becomes visible once Close returns nil.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named object. Deleting a missing object returns nil.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named object exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns the paths of every object under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ReadAll reads the whole object at path.
func ReadAll(ctx context.Context, s ObjectStore, path string) ([]byte, error) {
	r, err := s.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("blob: read %s: %w", path, err)
	}
	return data, nil
}

// WriteAll replaces the object at path with data.
func WriteAll(ctx context.Context, s ObjectStore, path string, data []byte) error {
	w, err := s.Write(ctx, path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		abort(w)
		return fmt.Errorf("blob: write %s: %w", path, err)
	}
	return w.Close()
}

// aborter is implemented by writers that can discard a partial object.
type aborter interface {
	Abort() error
}

func abort(w io.WriteCloser) {
	if a, ok := w.(aborter); ok {
		a.Abort()
		return
	}
	w.Close()
}
