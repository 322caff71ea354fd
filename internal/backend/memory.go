package backend

import (
	"fmt"
	"sort"
	"sync"

	rerr "github.com/reparc/reparc/internal/errors"
	"github.com/reparc/reparc/pkg/types"
)

// MemoryBackend keeps all array data in process memory. It supports
// every capability and is the reference implementation the on-disk
// backends are tested against.
type MemoryBackend struct {
	mu     sync.RWMutex
	arrays map[Locator]*memArray
	nextID uint64
}

type memArray struct {
	buf types.Buffer
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{arrays: make(map[Locator]*memArray)}
}

// Kind returns "memory".
func (m *MemoryBackend) Kind() string { return "memory" }

// Capabilities returns the full capability set.
func (m *MemoryBackend) Capabilities() CapabilitySet { return AllCapabilities }

// ZeroLengthOK reports that zero-element arrays are allowed.
func (m *MemoryBackend) ZeroLengthOK() bool { return true }

// Create allocates a zero-valued element buffer.
func (m *MemoryBackend) Create(scope, name string, dtype types.DType, elems int64) (Locator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loc := Locator(fmt.Sprintf("m/%d", m.nextID))
	m.nextID++
	m.arrays[loc] = &memArray{buf: types.NewBuffer(dtype, elems)}
	return loc, nil
}

// ReadRange returns an independent copy of elements [start, stop).
func (m *MemoryBackend) ReadRange(loc Locator, start, stop int64) (types.Buffer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	arr, ok := m.arrays[loc]
	if !ok {
		return types.Buffer{}, rerr.NewStorageError(rerr.CodeNotFound,
			fmt.Sprintf("no array at locator %q", loc), nil)
	}
	if start < 0 || stop < start || stop > arr.buf.Len() {
		return types.Buffer{}, rerr.NewValidationError(rerr.CodeRangeError,
			fmt.Sprintf("range [%d, %d) outside array of %d elements", start, stop, arr.buf.Len()))
	}
	return arr.buf.Slice(start, stop).Clone(), nil
}

// WriteRange copies data into the array at element offset.
func (m *MemoryBackend) WriteRange(loc Locator, offset int64, data types.Buffer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	arr, ok := m.arrays[loc]
	if !ok {
		return rerr.NewStorageError(rerr.CodeNotFound,
			fmt.Sprintf("no array at locator %q", loc), nil)
	}
	if offset < 0 || offset+data.Len() > arr.buf.Len() {
		return rerr.NewValidationError(rerr.CodeRangeError,
			fmt.Sprintf("write [%d, %d) outside array of %d elements", offset, offset+data.Len(), arr.buf.Len()))
	}
	arr.buf.CopyAt(offset, data)
	return nil
}

// Delete releases the array.
func (m *MemoryBackend) Delete(loc Locator) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.arrays[loc]; !ok {
		return rerr.NewStorageError(rerr.CodeNotFound,
			fmt.Sprintf("no array at locator %q", loc), nil)
	}
	delete(m.arrays, loc)
	return nil
}

// Flush is a no-op for the in-memory backend.
func (m *MemoryBackend) Flush() error { return nil }

// Close is a no-op for the in-memory backend.
func (m *MemoryBackend) Close() error { return nil }

// Locators lists every live array locator in sorted order.
func (m *MemoryBackend) Locators() []Locator {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Locator, 0, len(m.arrays))
	for loc := range m.arrays {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var _ Backend = (*MemoryBackend)(nil)
