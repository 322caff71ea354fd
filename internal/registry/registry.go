// Package registry dispatches raw program output to format adapters.
// An adapter descriptor binds a format identifier to a parse function
// and the set of array names it guarantees to produce. Dispatch
// validates the adapter's actual output against that contract before
// anything reaches a store, so a broken parser surfaces as a
// CONTRACT_VIOLATION while malformed input stays a PARSE_ERROR.
package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reparc/reparc/internal/digest"
	rerr "github.com/reparc/reparc/internal/errors"
	"github.com/reparc/reparc/pkg/types"
)

// Provenance metadata keys stamped on every dispatch result.
const (
	MetaFormat   = "provenance_format"
	MetaDigest   = "provenance_digest"
	MetaRunID    = "provenance_run_id"
	MetaParsedAt = "provenance_parsed_at"
)

// VolatileMetaKeys are the provenance keys that change between
// dispatches of the same input. Idempotence comparisons exclude them.
var VolatileMetaKeys = []string{MetaRunID, MetaParsedAt}

// Array is one named array emitted by an adapter, held in memory until
// a store persists it.
type Array struct {
	Name  string
	Role  types.AxisRole
	DType types.DType
	Shape types.Shape
	Data  types.Buffer
}

// Payload is the raw output of one adapter parse call.
type Payload struct {
	Arrays   []Array
	Metadata types.Metadata
}

// ParseFunc converts one raw input into a payload. Implementations
// must be pure: same input, same payload.
type ParseFunc func(ctx context.Context, r io.Reader) (*Payload, error)

// Descriptor declares one adapter: its format identifier, the array
// names it guarantees to produce, and the parse function.
type Descriptor struct {
	FormatID    string
	Description string
	Arrays      []string
	Parse       ParseFunc
}

// Result is a dispatch outcome: the contract-satisfying payload plus
// input provenance. Metadata already carries the provenance stamps.
type Result struct {
	FormatID   string
	InputBytes int64
	Digest     digest.Digest
	Arrays     []Array
	Metadata   types.Metadata
}

// Registry maps format identifiers to adapters. Registration is
// additive and order-independent; dispatch for a format serializes
// against concurrent registration through the registry lock.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]*Descriptor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{adapters: make(map[string]*Descriptor)}
}

// Register adds an adapter. A format identifier can be registered only
// once; a second registration fails with DUPLICATE_FORMAT and leaves
// the first in place.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil || d.FormatID == "" {
		return rerr.NewParseError(rerr.CodeParseError, "descriptor needs a format id", nil)
	}
	if d.Parse == nil {
		return rerr.NewParseError(rerr.CodeParseError,
			fmt.Sprintf("descriptor %q has no parse function", d.FormatID), nil)
	}
	if len(d.Arrays) == 0 {
		return rerr.NewParseError(rerr.CodeParseError,
			fmt.Sprintf("descriptor %q declares no output arrays", d.FormatID), nil)
	}
	declared := make(map[string]bool, len(d.Arrays))
	for _, name := range d.Arrays {
		if !types.ValidName(name) {
			return rerr.NewValidationError(rerr.CodeInvalidName,
				fmt.Sprintf("descriptor %q declares invalid array name %q", d.FormatID, name))
		}
		if declared[name] {
			return rerr.NewParseError(rerr.CodeParseError,
				fmt.Sprintf("descriptor %q declares array %q twice", d.FormatID, name), nil)
		}
		declared[name] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[d.FormatID]; exists {
		return rerr.NewParseError(rerr.CodeDuplicateFormat,
			fmt.Sprintf("format %q is already registered", d.FormatID), nil)
	}
	r.adapters[d.FormatID] = d
	return nil
}

// Formats returns the registered format identifiers in sorted order.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Contract returns the declared output array names for a format.
func (r *Registry) Contract(formatID string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.adapters[formatID]
	if !ok {
		return nil, false
	}
	out := make([]string, len(d.Arrays))
	copy(out, d.Arrays)
	return out, true
}

// Dispatch parses raw input with the adapter registered for formatID
// and checks the output against the declared contract. On any failure
// no result is produced; nothing is retained from a partial parse.
func (r *Registry) Dispatch(ctx context.Context, formatID string, input io.Reader) (*Result, error) {
	r.mu.RLock()
	d, ok := r.adapters[formatID]
	r.mu.RUnlock()
	if !ok {
		return nil, rerr.NewParseError(rerr.CodeUnknownFormat,
			fmt.Sprintf("no adapter registered for format %q", formatID), nil)
	}

	raw, err := io.ReadAll(input)
	if err != nil {
		return nil, rerr.NewParseError(rerr.CodeParseError, "reading raw input", err)
	}

	payload, err := d.Parse(ctx, bytes.NewReader(raw))
	if err != nil {
		var re *rerr.ReparcError
		if errors.As(err, &re) && re.Category == rerr.ErrCategoryParse {
			return nil, err
		}
		return nil, rerr.NewParseError(rerr.CodeParseError,
			fmt.Sprintf("adapter %q failed", formatID), err)
	}
	if err := checkContract(d, payload); err != nil {
		return nil, err
	}

	meta, err := normalizeMetadata(d, payload.Metadata)
	if err != nil {
		return nil, err
	}
	sum := digest.Sum(raw)
	meta[MetaFormat] = formatID
	meta[MetaDigest] = sum.String()
	meta[MetaRunID] = uuid.New().String()
	meta[MetaParsedAt] = time.Now().UTC().Format(time.RFC3339Nano)

	return &Result{
		FormatID:   formatID,
		InputBytes: int64(len(raw)),
		Digest:     sum,
		Arrays:     payload.Arrays,
		Metadata:   meta,
	}, nil
}

// checkContract verifies that the payload's array set matches the
// declared contract exactly and that every array is internally sound.
// Failures here mean the adapter is broken, not the input.
func checkContract(d *Descriptor, payload *Payload) error {
	if payload == nil {
		return contractViolation(d.FormatID, "adapter returned no payload", nil)
	}

	produced := make(map[string]bool, len(payload.Arrays))
	for _, a := range payload.Arrays {
		if produced[a.Name] {
			return contractViolation(d.FormatID,
				fmt.Sprintf("array %q emitted twice", a.Name), nil)
		}
		produced[a.Name] = true

		if !types.ValidName(a.Name) {
			return contractViolation(d.FormatID,
				fmt.Sprintf("invalid array name %q", a.Name), nil)
		}
		if !a.DType.Valid() {
			return contractViolation(d.FormatID,
				fmt.Sprintf("array %q has unknown dtype %q", a.Name, a.DType), nil)
		}
		if !a.Role.Valid() {
			return contractViolation(d.FormatID,
				fmt.Sprintf("array %q has unknown axis role %q", a.Name, a.Role), nil)
		}
		if a.Shape.Rank() == 0 {
			return contractViolation(d.FormatID,
				fmt.Sprintf("array %q has no shape", a.Name), nil)
		}
		for _, dim := range a.Shape {
			if dim < 0 {
				return contractViolation(d.FormatID,
					fmt.Sprintf("array %q has negative dimension in %s", a.Name, a.Shape), nil)
			}
		}
		if a.Data.DType != a.DType {
			return contractViolation(d.FormatID,
				fmt.Sprintf("array %q declares dtype %s but carries %s data", a.Name, a.DType, a.Data.DType), nil)
		}
		if a.Data.Len() != a.Shape.Elems() {
			return contractViolation(d.FormatID,
				fmt.Sprintf("array %q shape %s needs %d elements, buffer holds %d",
					a.Name, a.Shape, a.Shape.Elems(), a.Data.Len()), nil)
		}
	}

	var missing, unexpected []string
	for _, name := range d.Arrays {
		if !produced[name] {
			missing = append(missing, name)
		}
	}
	declared := make(map[string]bool, len(d.Arrays))
	for _, name := range d.Arrays {
		declared[name] = true
	}
	for _, a := range payload.Arrays {
		if !declared[a.Name] {
			unexpected = append(unexpected, a.Name)
		}
	}
	if len(missing) > 0 || len(unexpected) > 0 {
		sort.Strings(missing)
		sort.Strings(unexpected)
		return contractViolation(d.FormatID,
			"output arrays differ from declared contract", map[string]interface{}{
				"missing":    missing,
				"unexpected": unexpected,
			})
	}
	return nil
}

func normalizeMetadata(d *Descriptor, meta types.Metadata) (types.Metadata, error) {
	out := make(types.Metadata, len(meta)+4)
	for k, v := range meta {
		nv, ok := types.NormalizeMetaValue(v)
		if !ok {
			return nil, contractViolation(d.FormatID,
				fmt.Sprintf("metadata key %q: unsupported value type %T", k, v), nil)
		}
		out[k] = nv
	}
	return out, nil
}

func contractViolation(formatID, msg string, details map[string]interface{}) error {
	err := rerr.NewParseError(rerr.CodeContractViolation,
		fmt.Sprintf("adapter %q: %s", formatID, msg), nil)
	if details != nil {
		return err.WithDetails(details)
	}
	return err
}
