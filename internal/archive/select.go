package archive

import (
	"context"
	"fmt"

	"github.com/reparc/reparc/internal/backend"
	rerr "github.com/reparc/reparc/internal/errors"
	"github.com/reparc/reparc/internal/schema"
	"github.com/reparc/reparc/pkg/types"
)

// Metadata keys stamped on selection results.
const (
	MetaSelectionSource = "selection_source"
	MetaSelectionCount  = "selection_count"
)

// Select extracts the given frame indices from the group at path into
// a new standalone group. Frame-indexed arrays keep the selected rows
// in index order; other arrays are copied whole. The result is an
// independent copy: mutating it never touches the source, and the
// caller owns it until insertion.
//
// Indices must be strictly increasing and within the frame extent of
// every frame-indexed array; otherwise the call fails with RANGE_ERROR
// and nothing is created.
func (a *Archive) Select(ctx context.Context, path string, indices []int64) (*Group, error) {
	g, err := a.Resolve(path)
	if err != nil {
		return nil, err
	}
	descrs, err := g.Descriptors()
	if err != nil {
		return nil, err
	}

	for i := 1; i < len(indices); i++ {
		if indices[i] <= indices[i-1] {
			return nil, rerr.NewValidationError(rerr.CodeRangeError,
				fmt.Sprintf("frame indices must be strictly increasing, got %d after %d", indices[i], indices[i-1]))
		}
	}
	if len(indices) > 0 {
		if indices[0] < 0 {
			return nil, rerr.NewValidationError(rerr.CodeRangeError,
				fmt.Sprintf("negative frame index %d", indices[0]))
		}
		last := indices[len(indices)-1]
		for _, d := range descrs {
			if d.Role == types.AxisFrame && d.Shape.Rank() > 0 && last >= d.Shape[0] {
				return nil, rerr.NewValidationError(rerr.CodeRangeError,
					fmt.Sprintf("frame index %d outside array %q with %d frames", last, d.Name, d.Shape[0]))
			}
		}
	}

	out := NewStandalone(a.store)
	if err := a.selectInto(ctx, g, out, descrs, indices); err != nil {
		discard(out)
		return nil, err
	}

	meta := g.Metadata()
	meta[MetaSelectionSource] = path
	meta[MetaSelectionCount] = int64(len(indices))
	out.mu.Lock()
	out.meta = meta
	out.mu.Unlock()
	return out, nil
}

func (a *Archive) selectInto(ctx context.Context, src, out *Group, descrs []schema.ArrayDescr, indices []int64) error {
	wants := backend.CapabilitySet(backend.CapRandomRead | backend.CapAppend)
	for _, d := range descrs {
		srcHandle, ok := src.Handle(d.Name)
		if !ok {
			return rerr.NewArchiveError(rerr.CodeNotFound,
				fmt.Sprintf("array %q vanished during selection", d.Name))
		}
		if d.Role != types.AxisFrame || d.Shape.Rank() == 0 {
			dst, err := out.CreateArray(d.Name, d.DType, d.Shape.Clone(), d.Role, wants)
			if err != nil {
				return err
			}
			if err := copyWhole(ctx, a.store, srcHandle, a.store, dst, d.Shape); err != nil {
				return err
			}
			continue
		}

		outShape := d.Shape.Clone()
		outShape[0] = int64(len(indices))
		dst, err := out.CreateArray(d.Name, d.DType, outShape, d.Role, wants)
		if err != nil {
			return err
		}
		written := int64(0)
		for _, run := range frameRuns(indices) {
			if err := copyFrames(ctx, a.store, srcHandle, d.Shape, a.store, dst, outShape, run.Start, run.Stop, written); err != nil {
				return err
			}
			written += run.Len()
		}
	}
	return nil
}
