package nvram

import "sync/atomic"

// Memory is a volatile Store. It records how many physical writes a real
// medium would have seen.
type Memory struct {
	*image
	writes    atomic.Int64
	committed atomic.Pointer[[]byte]
}

// NewMemory returns an empty memory store of the given capacity.
func NewMemory(capacity int64) (*Memory, error) {
	if capacity <= 0 {
		return nil, ErrBadCapacity
	}
	return &Memory{image: newImage(capacity, nil)}, nil
}

// Sync commits the image and counts one write when it changed.
func (m *Memory) Sync() error {
	return m.commit(func(snapshot []byte) error {
		m.committed.Store(&snapshot)
		m.writes.Add(1)
		return nil
	})
}

// Writes returns the number of physical writes so far.
func (m *Memory) Writes() int64 {
	return m.writes.Load()
}

// Committed returns a copy of the last synced image, nil before the first Sync.
func (m *Memory) Committed() []byte {
	p := m.committed.Load()
	if p == nil {
		return nil
	}
	out := make([]byte, len(*p))
	copy(out, *p)
	return out
}

// Reopen returns a new Memory holding only the last synced image, as a
// power cycle would leave it.
func (m *Memory) Reopen() *Memory {
	return &Memory{image: newImage(m.Size(), m.Committed())}
}

// Close marks the store closed.
func (m *Memory) Close() error {
	m.close()
	return nil
}
