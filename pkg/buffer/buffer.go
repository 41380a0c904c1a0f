// Package buffer stores response bodies in memory, spilling them to a
// temporary file once they outgrow a configured limit.
package buffer

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/WhileEndless/go-wirehttp/pkg/errors"
)

const (
	// DefaultMemoryLimit is the default memory threshold before spilling to disk.
	DefaultMemoryLimit = 4 * 1024 * 1024 // 4MB

	tempPattern = "wirehttp-body-*.tmp"
)

// Buffer is an append-only byte store. All methods are safe for concurrent use.
type Buffer struct {
	mu     sync.Mutex
	mem    bytes.Buffer
	file   *os.File
	size   int64
	limit  int64
	closed bool
}

// New creates a new Buffer with the provided memory limit.
func New(limit int64) *Buffer {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Buffer{limit: limit}
}

// NewWithData creates a buffer pre-filled with data.
func NewWithData(data []byte) *Buffer {
	b := New(int64(len(data)))
	b.mem.Write(data)
	b.size = int64(len(data))
	return b
}

// Write appends p, moving the payload to a temporary file the first time the
// memory limit would be exceeded.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errors.NewIOError("write to closed buffer", nil)
	}

	if b.file == nil && int64(b.mem.Len()+len(p)) > b.limit {
		if err := b.spill(); err != nil {
			return 0, err
		}
	}

	var (
		n   int
		err error
	)
	if b.file != nil {
		n, err = b.file.Write(p)
		if err != nil {
			err = errors.NewIOError("writing spill file", err)
		}
	} else {
		n, err = b.mem.Write(p)
	}
	b.size += int64(n)
	return n, err
}

// spill moves the in-memory payload to a fresh temp file. Callers hold mu.
func (b *Buffer) spill() error {
	f, err := os.CreateTemp("", tempPattern)
	if err != nil {
		return errors.NewIOError("creating spill file", err)
	}

	if _, err := f.Write(b.mem.Bytes()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return errors.NewIOError("writing spill file", err)
	}

	b.file = f
	b.mem.Reset()
	return nil
}

// Bytes returns the in-memory data, or nil once the payload spilled to disk.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file != nil {
		return nil
	}
	return b.mem.Bytes()
}

// ReadAll returns the whole payload regardless of where it is stored.
func (b *Buffer) ReadAll() ([]byte, error) {
	r, err := b.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewIOError("reading spill file", err)
	}
	return data, nil
}

// Path returns the filesystem path backing the spilled payload.
func (b *Buffer) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		return ""
	}
	return b.file.Name()
}

// Size returns the total number of bytes written.
func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// IsSpilled returns true if the buffer has spilled to disk.
func (b *Buffer) IsSpilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file != nil
}

// Reader provides a fresh reader over the stored data.
func (b *Buffer) Reader() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.NewIOError("read from closed buffer", nil)
	}

	if b.file == nil {
		return io.NopCloser(bytes.NewReader(b.mem.Bytes())), nil
	}

	if err := b.file.Sync(); err != nil {
		return nil, errors.NewIOError("syncing spill file", err)
	}
	f, err := os.Open(b.file.Name())
	if err != nil {
		return nil, errors.NewIOError("opening spill file", err)
	}
	return f, nil
}

// Close releases the spill file, if any. It is idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.dropFile()
}

// Reset clears the buffer and prepares it for reuse.
func (b *Buffer) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.dropFile()
	b.mem.Reset()
	b.size = 0
	b.closed = false
	return err
}

func (b *Buffer) dropFile() error {
	if b.file == nil {
		return nil
	}

	name := b.file.Name()
	err := b.file.Close()
	if rmErr := os.Remove(name); rmErr != nil && err == nil {
		err = rmErr
	}
	b.file = nil
	if err != nil {
		return errors.NewIOError("removing spill file", err)
	}
	return nil
}
