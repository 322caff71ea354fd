// Package backend provides the persistence backends that hold array
// data: an in-memory arena, an append-only chunked file, and a
// grouped-file directory container. The array store mediates all
// access; backends only see flat element ranges.
package backend

import "github.com/reparc/reparc/pkg/types"

// Capability identifies one optional backend ability.
type Capability uint8

const (
	// CapRandomRead allows reading any element range at any time.
	CapRandomRead Capability = 1 << iota

	// CapAppend allows sequential writes at the array's watermark.
	CapAppend

	// CapChunkedWrite allows writing or overwriting arbitrary element
	// ranges independently.
	CapChunkedWrite
)

// CapabilitySet is a bit set of capabilities.
type CapabilitySet uint8

// Has reports whether the set includes the capability.
func (s CapabilitySet) Has(c Capability) bool {
	return s&CapabilitySet(c) != 0
}

// AllCapabilities is the full capability set.
const AllCapabilities = CapabilitySet(CapRandomRead | CapAppend | CapChunkedWrite)

// Locator identifies one stored array within its backend. Locators are
// opaque to callers and durable: the manifest persists them so a
// reopened archive can reach its data without touching it.
type Locator string

// Backend stores the flat element buffers of arrays. Implementations
// are safe for concurrent use. Shape, dtype enforcement, and name
// conflict detection are the array store's job; backends see arrays as
// fixed-length element sequences identified by locator.
type Backend interface {
	// Kind returns the backend's config name.
	Kind() string

	// Capabilities returns the abilities this backend supports.
	Capabilities() CapabilitySet

	// ZeroLengthOK reports whether the backend accepts arrays with
	// zero total elements.
	ZeroLengthOK() bool

	// Create allocates storage for elems elements of the given dtype.
	// The scope is the owning group's archive path; grouped-file
	// backends use it to place data, others may ignore it.
	Create(scope, name string, dtype types.DType, elems int64) (Locator, error)

	// ReadRange reads elements [start, stop). Elements that were never
	// written read back as zero values.
	ReadRange(loc Locator, start, stop int64) (types.Buffer, error)

	// WriteRange writes data starting at element offset. Backends
	// without CapChunkedWrite accept only sequential writes at the
	// array's watermark.
	WriteRange(loc Locator, offset int64, data types.Buffer) error

	// Delete releases the array's storage. Deleting an unknown locator
	// is an error.
	Delete(loc Locator) error

	// Flush persists buffered state to durable storage.
	Flush() error

	// Close flushes and releases resources.
	Close() error
}
