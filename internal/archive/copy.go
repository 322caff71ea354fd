package archive

import (
	"context"
	"fmt"

	"github.com/reparc/reparc/internal/array"
	"github.com/reparc/reparc/pkg/types"
)

// copyBlockFrames bounds how many leading-axis rows move per backend
// round trip during select, merge, and export. Cancellation is checked
// between blocks.
const copyBlockFrames = 1024

// copyFrames copies rows [srcStart, srcStop) of src into dst starting
// at dstStart, block by block. Both arrays must share trailing
// dimensions; srcShape and dstShape are their full shapes. The two
// handles may live in different stores, which is how export moves
// arrays between backends.
func copyFrames(ctx context.Context, from *array.Store, src array.Handle, srcShape types.Shape, to *array.Store, dst array.Handle, dstShape types.Shape, srcStart, srcStop, dstStart int64) error {
	for srcStart < srcStop {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("frame copy interrupted: %w", err)
		}
		n := srcStop - srcStart
		if n > copyBlockFrames {
			n = copyBlockFrames
		}

		buf, err := from.Read(src, frameRange(srcShape, srcStart, srcStart+n))
		if err != nil {
			return err
		}
		if err := to.Write(dst, frameRange(dstShape, dstStart, dstStart+n), buf); err != nil {
			return err
		}
		srcStart += n
		dstStart += n
	}
	return nil
}

// copyWhole copies the full extent of src into dst in one pass,
// blocked along the leading axis.
func copyWhole(ctx context.Context, from *array.Store, src array.Handle, to *array.Store, dst array.Handle, shape types.Shape) error {
	if shape.Rank() == 0 || shape[0] == 0 {
		return nil
	}
	return copyFrames(ctx, from, src, shape, to, dst, shape, 0, shape[0], 0)
}

// frameRange builds a slice selection covering rows [start, stop) and
// the full extent of every trailing axis.
func frameRange(shape types.Shape, start, stop int64) []types.Range {
	ranges := make([]types.Range, shape.Rank())
	ranges[0] = types.Range{Start: start, Stop: stop}
	for i := 1; i < shape.Rank(); i++ {
		ranges[i] = types.FullRange(shape[i])
	}
	return ranges
}

// frameRuns coalesces strictly increasing indices into half-open
// contiguous runs.
func frameRuns(indices []int64) []types.Range {
	var runs []types.Range
	for i := 0; i < len(indices); {
		j := i + 1
		for j < len(indices) && indices[j] == indices[j-1]+1 {
			j++
		}
		runs = append(runs, types.Range{Start: indices[i], Stop: indices[j-1] + 1})
		i = j
	}
	return runs
}

// discard deletes every array the standalone group has accumulated.
// Used to roll back a partially built select, merge, or ingest result.
func discard(g *Group) {
	_ = g.releaseArrays()
}
