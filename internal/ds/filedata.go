package ds

import (
	"bytes"
	"fmt"
	"io"
)

// FileData is content handed to WriteFile: a byte slice, a path to a local
// file, or a reader. The zero value carries no content.
type FileData struct {
	bytes  []byte
	path   string
	reader io.Reader
	set    bool
}

// BytesData wraps an in-memory byte slice. A nil slice is empty content.
func BytesData(b []byte) FileData {
	return FileData{bytes: b, set: true}
}

// PathData refers to a local file that is read when the data is stored.
func PathData(path string) FileData {
	return FileData{path: path, set: true}
}

// ReaderData wraps a reader that is drained when the data is stored.
func ReaderData(r io.Reader) FileData {
	return FileData{reader: r, set: true}
}

// Kind names the form of the data, for error messages.
func (d FileData) Kind() string {
	switch {
	case !d.set:
		return "nothing"
	case d.path != "":
		return "path"
	case d.reader != nil:
		return "reader"
	default:
		return "bytes"
	}
}

// Bytes normalizes the data to a byte slice. Path data is read through fsmgr.
// Zero data fails with *TypeMismatchError.
func (d FileData) Bytes(fsmgr FilesystemManager) ([]byte, error) {
	switch d.Kind() {
	case "nothing":
		return nil, &TypeMismatchError{Field: "file data", Want: "bytes, path or reader", Got: "nothing"}
	case "path":
		if fsmgr == nil {
			return nil, fmt.Errorf("reading %s: no filesystem available", d.path)
		}
		p, err := fsmgr.Resolve(d.path)
		if err != nil {
			return nil, fmt.Errorf("resolving file data path: %w", err)
		}
		f, err := fsmgr.Open(p)
		if err != nil {
			return nil, fmt.Errorf("opening file data: %w", err)
		}
		defer f.Close()
		return readAll(f)
	case "reader":
		return readAll(d.reader)
	default:
		return bytes.Clone(d.bytes), nil
	}
}

func readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading file data: %w", err)
	}
	return data, nil
}
