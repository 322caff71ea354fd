// Package array implements the typed multi-dimensional array store.
// Arrays live in a pluggable backend and are addressed through opaque
// handles; dtype and shape are fixed at creation, and reads and writes
// address row-major sub-slices of the declared extent.
package array

import (
	"fmt"
	"sync"

	"github.com/reparc/reparc/internal/backend"
	rerr "github.com/reparc/reparc/internal/errors"
	"github.com/reparc/reparc/pkg/types"
)

// Handle identifies one array in a store. The zero Handle is never
// issued and resolves to NOT_FOUND.
type Handle struct {
	id uint64
}

// Valid reports whether the handle was issued by a store.
func (h Handle) Valid() bool { return h.id != 0 }

// Info describes an array without touching its data.
type Info struct {
	Scope   string
	Name    string
	DType   types.DType
	Shape   types.Shape
	Locator backend.Locator

	// Missing is the set of capabilities the creator asked for that the
	// backend does not provide. Operations needing one of these fail at
	// call time instead of blocking creation.
	Missing backend.CapabilitySet
}

type nameKey struct {
	scope string
	name  string
}

type entry struct {
	scope   string
	name    string
	dtype   types.DType
	shape   types.Shape
	loc     backend.Locator
	missing backend.CapabilitySet
	deleted bool
}

// Store owns the handle space over one backend. Scope strings keep
// arrays from different groups apart; names are unique among live
// arrays within a scope.
type Store struct {
	backend backend.Backend

	mu     sync.RWMutex
	nextID uint64
	arrays map[uint64]*entry
	names  map[nameKey]uint64
}

// New creates a store over the given backend.
func New(b backend.Backend) *Store {
	return &Store{
		backend: b,
		arrays:  make(map[uint64]*entry),
		names:   make(map[nameKey]uint64),
	}
}

// Backend returns the backend the store writes to.
func (s *Store) Backend() backend.Backend { return s.backend }

// Create allocates a new array and returns its handle. The shape must
// have rank of at least one and no negative dimensions; zero-length
// dimensions are rejected when the backend does not store them. wants
// declares the capabilities the caller intends to exercise; missing
// ones are recorded on the handle rather than failing creation.
func (s *Store) Create(scope, name string, dtype types.DType, shape types.Shape, wants backend.CapabilitySet) (Handle, error) {
	if !types.ValidName(name) {
		return Handle{}, rerr.NewValidationError(rerr.CodeInvalidName,
			fmt.Sprintf("invalid array name %q", name))
	}
	if !dtype.Valid() {
		return Handle{}, rerr.NewValidationError(rerr.CodeDtypeMismatch,
			fmt.Sprintf("unknown dtype %q", dtype))
	}
	if shape.Rank() == 0 {
		return Handle{}, rerr.NewValidationError(rerr.CodeShapeError,
			"shape must have at least one dimension")
	}
	for i, d := range shape {
		if d < 0 {
			return Handle{}, rerr.NewValidationError(rerr.CodeShapeError,
				fmt.Sprintf("dimension %d is negative: %d", i, d))
		}
		if d == 0 && !s.backend.ZeroLengthOK() {
			return Handle{}, rerr.NewValidationError(rerr.CodeShapeError,
				fmt.Sprintf("dimension %d is zero and backend %q does not store empty arrays", i, s.backend.Kind()))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := nameKey{scope: scope, name: name}
	if _, exists := s.names[key]; exists {
		return Handle{}, rerr.NewStorageError(rerr.CodeNameConflict,
			fmt.Sprintf("array %q already exists in %q", name, scope), nil)
	}

	loc, err := s.backend.Create(scope, name, dtype, shape.Elems())
	if err != nil {
		return Handle{}, err
	}

	s.nextID++
	id := s.nextID
	s.arrays[id] = &entry{
		scope:   scope,
		name:    name,
		dtype:   dtype,
		shape:   shape.Clone(),
		loc:     loc,
		missing: wants &^ s.backend.Capabilities(),
	}
	s.names[key] = id
	return Handle{id: id}, nil
}

// Adopt registers an array that already exists in the backend, as when
// rebuilding handles from a manifest. The caller vouches that the
// locator holds elems matching the shape.
func (s *Store) Adopt(scope, name string, dtype types.DType, shape types.Shape, loc backend.Locator) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := nameKey{scope: scope, name: name}
	if _, exists := s.names[key]; exists {
		return Handle{}, rerr.NewStorageError(rerr.CodeNameConflict,
			fmt.Sprintf("array %q already exists in %q", name, scope), nil)
	}

	s.nextID++
	id := s.nextID
	s.arrays[id] = &entry{
		scope: scope,
		name:  name,
		dtype: dtype,
		shape: shape.Clone(),
		loc:   loc,
	}
	s.names[key] = id
	return Handle{id: id}, nil
}

// Describe returns the array's descriptor.
func (s *Store) Describe(h Handle) (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, err := s.lookup(h)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Scope:   e.scope,
		Name:    e.name,
		DType:   e.dtype,
		Shape:   e.shape.Clone(),
		Locator: e.loc,
		Missing: e.missing,
	}, nil
}

// Read returns the elements selected by ranges, one Range per axis in
// row-major order. A nil slice selects the full extent. Only the
// backend regions covering the selection are fetched.
func (s *Store) Read(h Handle, ranges []types.Range) (types.Buffer, error) {
	s.mu.RLock()
	e, err := s.lookup(h)
	if err != nil {
		s.mu.RUnlock()
		return types.Buffer{}, err
	}
	dtype, shape, loc := e.dtype, e.shape, e.loc
	s.mu.RUnlock()

	if ranges == nil {
		ranges = types.FullSlice(shape)
	}
	if len(ranges) != shape.Rank() {
		return types.Buffer{}, rerr.NewValidationError(rerr.CodeRangeError,
			fmt.Sprintf("%d ranges for array of rank %d", len(ranges), shape.Rank()))
	}
	for i, r := range ranges {
		if r.Start < 0 || r.Stop < r.Start || r.Stop > shape[i] {
			return types.Buffer{}, rerr.NewValidationError(rerr.CodeRangeError,
				fmt.Sprintf("axis %d: range [%d, %d) outside dimension of %d", i, r.Start, r.Stop, shape[i]))
		}
	}

	result := types.NewBuffer(dtype, types.SliceShape(ranges).Elems())
	err = forEachRun(shape, ranges, func(src, dst, n int64) error {
		buf, err := s.backend.ReadRange(loc, src, src+n)
		if err != nil {
			return err
		}
		result.CopyAt(dst, buf)
		return nil
	})
	if err != nil {
		return types.Buffer{}, err
	}
	return result, nil
}

// Write stores data into the elements selected by ranges. A nil slice
// targets the full extent. The data buffer must match the array's
// dtype and hold exactly one element per selected position.
func (s *Store) Write(h Handle, ranges []types.Range, data types.Buffer) error {
	s.mu.RLock()
	e, err := s.lookup(h)
	if err != nil {
		s.mu.RUnlock()
		return err
	}
	dtype, shape, loc := e.dtype, e.shape, e.loc
	s.mu.RUnlock()

	if data.DType != dtype {
		return rerr.NewValidationError(rerr.CodeDtypeMismatch,
			fmt.Sprintf("writing %s data to %s array", data.DType, dtype))
	}
	if ranges == nil {
		ranges = types.FullSlice(shape)
	}
	if len(ranges) != shape.Rank() {
		return rerr.NewValidationError(rerr.CodeShapeMismatch,
			fmt.Sprintf("%d ranges for array of rank %d", len(ranges), shape.Rank()))
	}
	for i, r := range ranges {
		if r.Start < 0 || r.Stop < r.Start {
			return rerr.NewValidationError(rerr.CodeRangeError,
				fmt.Sprintf("axis %d: malformed range [%d, %d)", i, r.Start, r.Stop))
		}
		if r.Stop > shape[i] {
			return rerr.NewValidationError(rerr.CodeShapeMismatch,
				fmt.Sprintf("axis %d: write extent [%d, %d) exceeds dimension of %d", i, r.Start, r.Stop, shape[i]))
		}
	}
	if want := types.SliceShape(ranges).Elems(); data.Len() != want {
		return rerr.NewValidationError(rerr.CodeShapeMismatch,
			fmt.Sprintf("data holds %d elements, selection needs %d", data.Len(), want))
	}

	return forEachRun(shape, ranges, func(src, dst, n int64) error {
		return s.backend.WriteRange(loc, src, data.Slice(dst, dst+n))
	})
}

// Delete releases the array's backend storage and frees its name for
// reuse. Deleting an already-deleted handle is a no-op; a handle the
// store never issued fails with NOT_FOUND.
func (s *Store) Delete(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.arrays[h.id]
	if !ok {
		return rerr.NewStorageError(rerr.CodeNotFound,
			fmt.Sprintf("unknown handle %d", h.id), nil)
	}
	if e.deleted {
		return nil
	}

	if err := s.backend.Delete(e.loc); err != nil {
		return err
	}
	e.deleted = true
	delete(s.names, nameKey{scope: e.scope, name: e.name})
	return nil
}

// Flush forces pending backend state to durable storage.
func (s *Store) Flush() error {
	return s.backend.Flush()
}

// Close flushes and closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) lookup(h Handle) (*entry, error) {
	e, ok := s.arrays[h.id]
	if !ok || e.deleted {
		return nil, rerr.NewStorageError(rerr.CodeNotFound,
			fmt.Sprintf("no array for handle %d", h.id), nil)
	}
	return e, nil
}

// forEachRun decomposes a row-major slice selection into contiguous
// element runs and calls fn(srcStart, dstStart, n) for each. Trailing
// fully-selected axes fold into longer runs, so a full-extent
// selection is a single call.
func forEachRun(shape types.Shape, ranges []types.Range, fn func(src, dst, n int64) error) error {
	rank := len(shape)
	for _, r := range ranges {
		if r.Len() == 0 {
			return nil
		}
	}

	strides := make([]int64, rank)
	strides[rank-1] = 1
	for i := rank - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * shape[i+1]
	}

	// Fold fully-covered trailing axes into the run.
	runAxis := rank - 1
	for runAxis > 0 && ranges[runAxis].Start == 0 && ranges[runAxis].Stop == shape[runAxis] {
		runAxis--
	}
	runLen := ranges[runAxis].Len() * strides[runAxis]

	idx := make([]int64, runAxis)
	for i := range idx {
		idx[i] = ranges[i].Start
	}

	dst := int64(0)
	for {
		src := ranges[runAxis].Start * strides[runAxis]
		for i := 0; i < runAxis; i++ {
			src += idx[i] * strides[i]
		}
		if err := fn(src, dst, runLen); err != nil {
			return err
		}
		dst += runLen

		axis := runAxis - 1
		for ; axis >= 0; axis-- {
			idx[axis]++
			if idx[axis] < ranges[axis].Stop {
				break
			}
			idx[axis] = ranges[axis].Start
		}
		if axis < 0 {
			return nil
		}
	}
}
