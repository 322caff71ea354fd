package archive

import (
	"context"
	"fmt"
	"sort"

	"github.com/reparc/reparc/internal/backend"
	rerr "github.com/reparc/reparc/internal/errors"
	"github.com/reparc/reparc/internal/schema"
	"github.com/reparc/reparc/pkg/types"
)

// Merge concatenates the groups at pathA and pathB into a new
// standalone group. Frame-indexed arrays hold all of A's frames
// followed by all of B's; scalar and fixed arrays are taken from B,
// mirroring the last-writer-wins metadata union. Neither source group
// is modified.
//
// The two groups must agree on array names, dtypes, roles, and
// per-frame shapes. Every disagreement is reported in a single
// SCHEMA_MISMATCH error before anything is created.
func (a *Archive) Merge(ctx context.Context, pathA, pathB string) (*Group, error) {
	gA, err := a.Resolve(pathA)
	if err != nil {
		return nil, err
	}
	gB, err := a.Resolve(pathB)
	if err != nil {
		return nil, err
	}
	descrsA, err := gA.Descriptors()
	if err != nil {
		return nil, err
	}
	descrsB, err := gB.Descriptors()
	if err != nil {
		return nil, err
	}
	if err := checkMergeSchemas(descrsA, descrsB); err != nil {
		return nil, err
	}

	byNameB := make(map[string]schema.ArrayDescr, len(descrsB))
	for _, d := range descrsB {
		byNameB[d.Name] = d
	}

	out := NewStandalone(a.store)
	if err := a.mergeInto(ctx, gA, gB, out, descrsA, byNameB); err != nil {
		discard(out)
		return nil, err
	}

	meta := gA.Metadata()
	meta.MergeFrom(gB.Metadata())
	out.mu.Lock()
	out.meta = meta
	out.mu.Unlock()
	return out, nil
}

func (a *Archive) mergeInto(ctx context.Context, gA, gB, out *Group, descrsA []schema.ArrayDescr, byNameB map[string]schema.ArrayDescr) error {
	wants := backend.CapabilitySet(backend.CapRandomRead | backend.CapAppend)
	for _, dA := range descrsA {
		dB := byNameB[dA.Name]
		hA, okA := gA.Handle(dA.Name)
		hB, okB := gB.Handle(dB.Name)
		if !okA || !okB {
			return rerr.NewArchiveError(rerr.CodeNotFound,
				fmt.Sprintf("array %q vanished during merge", dA.Name))
		}

		if dA.Role != types.AxisFrame || dA.Shape.Rank() == 0 {
			dst, err := out.CreateArray(dA.Name, dB.DType, dB.Shape.Clone(), dB.Role, wants)
			if err != nil {
				return err
			}
			if err := copyWhole(ctx, a.store, hB, a.store, dst, dB.Shape); err != nil {
				return err
			}
			continue
		}

		outShape := dA.Shape.Clone()
		outShape[0] = dA.Shape[0] + dB.Shape[0]
		dst, err := out.CreateArray(dA.Name, dA.DType, outShape, dA.Role, wants)
		if err != nil {
			return err
		}
		if err := copyFrames(ctx, a.store, hA, dA.Shape, a.store, dst, outShape, 0, dA.Shape[0], 0); err != nil {
			return err
		}
		if err := copyFrames(ctx, a.store, hB, dB.Shape, a.store, dst, outShape, 0, dB.Shape[0], dA.Shape[0]); err != nil {
			return err
		}
	}
	return nil
}

// checkMergeSchemas verifies that the two descriptor sets describe
// merge-compatible groups. All disagreements surface in one error.
func checkMergeSchemas(descrsA, descrsB []schema.ArrayDescr) error {
	byNameA := make(map[string]schema.ArrayDescr, len(descrsA))
	for _, d := range descrsA {
		byNameA[d.Name] = d
	}
	byNameB := make(map[string]schema.ArrayDescr, len(descrsB))
	for _, d := range descrsB {
		byNameB[d.Name] = d
	}

	var onlyA, onlyB []string
	for name := range byNameA {
		if _, ok := byNameB[name]; !ok {
			onlyA = append(onlyA, name)
		}
	}
	for name := range byNameB {
		if _, ok := byNameA[name]; !ok {
			onlyB = append(onlyB, name)
		}
	}
	if len(onlyA) > 0 || len(onlyB) > 0 {
		sort.Strings(onlyA)
		sort.Strings(onlyB)
		return rerr.NewArchiveError(rerr.CodeSchemaMismatch,
			"groups declare different array sets").WithDetails(map[string]interface{}{
			"only_in_a": onlyA,
			"only_in_b": onlyB,
		})
	}

	var mismatches []string
	for _, dA := range descrsA {
		dB := byNameB[dA.Name]
		if dA.DType != dB.DType {
			mismatches = append(mismatches,
				fmt.Sprintf("array %q: dtype %s vs %s", dA.Name, dA.DType, dB.DType))
		}
		if dA.Role != dB.Role {
			mismatches = append(mismatches,
				fmt.Sprintf("array %q: role %s vs %s", dA.Name, dA.Role, dB.Role))
		}
		if dA.Role == types.AxisFrame && dB.Role == types.AxisFrame &&
			dA.Shape.Rank() > 0 && dB.Shape.Rank() > 0 {
			if !frameShapeEqual(dA.Shape, dB.Shape) {
				mismatches = append(mismatches,
					fmt.Sprintf("array %q: per-frame shape %s vs %s", dA.Name, dA.Shape[1:], dB.Shape[1:]))
			}
			continue
		}
		if !dA.Shape.Equal(dB.Shape) {
			mismatches = append(mismatches,
				fmt.Sprintf("array %q: shape %s vs %s", dA.Name, dA.Shape, dB.Shape))
		}
	}
	if len(mismatches) > 0 {
		return rerr.NewArchiveError(rerr.CodeSchemaMismatch,
			fmt.Sprintf("%d incompatible arrays", len(mismatches))).WithDetails(map[string]interface{}{
			"mismatches": mismatches,
		})
	}
	return nil
}

// frameShapeEqual compares two frame-indexed shapes ignoring the frame
// axis itself.
func frameShapeEqual(a, b types.Shape) bool {
	if a.Rank() != b.Rank() {
		return false
	}
	for i := 1; i < a.Rank(); i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
