package nvram

import (
	"io"
	"sync"
)

// Store is a bounded byte-addressable region that survives power loss.
type Store interface {
	io.ReaderAt
	io.WriterAt

	// Size returns the fixed capacity in bytes.
	Size() int64

	// Sync commits pending writes to the backing medium.
	Sync() error

	// Close releases the backing medium. Unsynced writes are discarded.
	Close() error
}

// image is the RAM shadow shared by every backend.
type image struct {
	mu     sync.Mutex
	buf    []byte
	dirty  bool
	closed bool
}

func newImage(capacity int64, initial []byte) *image {
	buf := make([]byte, capacity)
	copy(buf, initial)
	return &image{buf: buf}
}

// ReadAt implements io.ReaderAt.
func (m *image) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	if off < 0 || off > int64(len(m.buf)) {
		return 0, ErrOutOfRange
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt. A write that does not fit is rejected whole.
func (m *image) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	if off < 0 || off+int64(len(p)) > int64(len(m.buf)) {
		return 0, ErrOutOfRange
	}
	copy(m.buf[off:], p)
	m.dirty = true
	return len(p), nil
}

// Size returns the capacity.
func (m *image) Size() int64 {
	return int64(len(m.buf))
}

// commit runs fn with a copy of the image when it has changed since the last
// successful commit. The image stays dirty when fn fails.
func (m *image) commit(fn func(snapshot []byte) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if !m.dirty {
		return nil
	}
	snapshot := make([]byte, len(m.buf))
	copy(snapshot, m.buf)
	if err := fn(snapshot); err != nil {
		return err
	}
	m.dirty = false
	return nil
}

func (m *image) close() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	was := m.closed
	m.closed = true
	return !was
}
