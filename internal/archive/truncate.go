package archive

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/reparc/reparc/internal/backend"
	rerr "github.com/reparc/reparc/internal/errors"
	"github.com/reparc/reparc/internal/schema"
	"github.com/reparc/reparc/pkg/types"
)

// Truncate applies a repair plan produced by the schema validator,
// cutting each listed frame array down to the plan's frame count. The
// repair is recorded in the group metadata under the validator's
// truncation keys so later readers can tell the group was cut.
//
// Prefixes are staged in a scratch group before the shorter
// replacement is created, keeping peak memory bounded by the copy
// block size regardless of array size.
func (g *Group) Truncate(ctx context.Context, truncs []schema.Truncation) error {
	if len(truncs) == 0 {
		return nil
	}

	names := make([]string, 0, len(truncs))
	from := make(map[string]int64, len(truncs))
	minTo := truncs[0].To
	for _, tr := range truncs {
		names = append(names, tr.Array)
		from[tr.Array] = tr.From
		if tr.To < minTo {
			minTo = tr.To
		}
	}
	sort.Strings(names)

	for _, tr := range truncs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("truncation of %q interrupted: %w", g.path, err)
		}
		if err := g.truncateArray(ctx, tr); err != nil {
			return err
		}
	}

	olds := make([]string, 0, len(names))
	for _, name := range names {
		olds = append(olds, fmt.Sprintf("%s:%d", name, from[name]))
	}
	if err := g.SetMeta(schema.MetaTruncatedTo, minTo); err != nil {
		return err
	}
	if err := g.SetMeta(schema.MetaTruncatedArrays, strings.Join(names, ",")); err != nil {
		return err
	}
	return g.SetMeta(schema.MetaTruncatedFrom, strings.Join(olds, ","))
}

func (g *Group) truncateArray(ctx context.Context, tr schema.Truncation) error {
	info, err := g.Describe(tr.Array)
	if err != nil {
		return err
	}
	if g.Role(tr.Array) != types.AxisFrame || info.Shape.Rank() == 0 {
		return rerr.NewValidationError(rerr.CodeShapeError,
			fmt.Sprintf("array %q is not frame-indexed", tr.Array))
	}
	if tr.To < 0 || tr.To > info.Shape[0] {
		return rerr.NewValidationError(rerr.CodeRangeError,
			fmt.Sprintf("cannot truncate array %q with %d frames to %d", tr.Array, info.Shape[0], tr.To))
	}
	if tr.To == info.Shape[0] {
		return nil
	}

	src, ok := g.Handle(tr.Array)
	if !ok {
		return rerr.NewStorageError(rerr.CodeNotFound,
			fmt.Sprintf("no array %q in group %q", tr.Array, g.path), nil)
	}
	role := g.Role(tr.Array)
	wants := backend.CapabilitySet(backend.CapRandomRead | backend.CapAppend)

	shortShape := info.Shape.Clone()
	shortShape[0] = tr.To

	scratch := NewStandalone(g.store)
	defer discard(scratch)
	stage, err := scratch.CreateArray(tr.Array, info.DType, shortShape.Clone(), role, wants)
	if err != nil {
		return err
	}
	if err := copyFrames(ctx, g.store, src, info.Shape, g.store, stage, shortShape, 0, tr.To, 0); err != nil {
		return err
	}

	if err := g.DeleteArray(tr.Array); err != nil {
		return err
	}
	dst, err := g.CreateArray(tr.Array, info.DType, shortShape.Clone(), role, wants)
	if err != nil {
		return err
	}
	return copyWhole(ctx, g.store, stage, g.store, dst, shortShape)
}
