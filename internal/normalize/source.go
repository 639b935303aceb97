package normalize

import (
	"bytes"
	"io"
	"os"
)

// Source yields a fresh reader over the raw wide-format rows each time it is opened.
// A lazy Stream opens its source once per pass.
type Source interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// FileSource reads rows from a file on disk.
type FileSource struct {
	Path string
}

// Name returns the file path.
func (f FileSource) Name() string { return f.Path }

// Open opens the file for reading.
func (f FileSource) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}

// BytesSource serves rows from an in-memory buffer.
type BytesSource struct {
	Label string
	Data  []byte
}

// Name returns the label, or "memory" when none is set.
func (b BytesSource) Name() string {
	if b.Label == "" {
		return "memory"
	}
	return b.Label
}

// Open returns a reader over a shared, never-mutated copy of Data.
func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}
