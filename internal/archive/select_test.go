package archive

import (
	"context"
	"testing"

	rerr "github.com/reparc/reparc/internal/errors"
	"github.com/reparc/reparc/internal/schema"
	"github.com/reparc/reparc/pkg/types"
)

func TestSelectCopiesChosenFrames(t *testing.T) {
	a := newTestArchive()
	src, err := a.EnsureGroup("/md/run1")
	if err != nil {
		t.Fatal(err)
	}
	seedTrajectory(t, src, 10, 6, 0)
	if err := src.SetMeta("solvent", "water"); err != nil {
		t.Fatal(err)
	}

	indices := []int64{0, 3, 4, 5, 9}
	sel, err := a.Select(context.Background(), "/md/run1", indices)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	en, err := sel.ReadArray("energies", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !en.Equal(types.FloatBuffer([]float64{0, 3, 4, 5, 9})) {
		t.Errorf("selected energies = %v", en.Floats)
	}

	pos, err := sel.ReadArray("positions", nil)
	if err != nil {
		t.Fatal(err)
	}
	if pos.Len() != int64(len(indices))*3 {
		t.Fatalf("selected positions length = %d", pos.Len())
	}
	for i, frame := range indices {
		row := pos.Slice(int64(i)*3, int64(i+1)*3)
		want := types.FloatBuffer([]float64{
			float64(frame*3) * 0.25,
			float64(frame*3+1) * 0.25,
			float64(frame*3+2) * 0.25,
		})
		if !row.Equal(want) {
			t.Errorf("frame %d row = %v, want %v", frame, row.Floats, want.Floats)
		}
	}

	// Arrays off the frame axis come over whole.
	z, err := sel.ReadArray("atomic_numbers", nil)
	if err != nil {
		t.Fatal(err)
	}
	if z.Len() != 6 {
		t.Errorf("atomic_numbers length = %d, want 6", z.Len())
	}
	if sel.Role("atomic_numbers") != types.AxisAtom || sel.Role("energies") != types.AxisFrame {
		t.Error("roles were not preserved")
	}

	if v, _ := sel.MetaValue("solvent"); v != "water" {
		t.Errorf("solvent = %v, want water", v)
	}
	if v, _ := sel.MetaValue(MetaSelectionSource); v != "/md/run1" {
		t.Errorf("%s = %v", MetaSelectionSource, v)
	}
	if v, _ := sel.MetaValue(MetaSelectionCount); v != int64(5) {
		t.Errorf("%s = %v", MetaSelectionCount, v)
	}
}

func TestSelectIsIndependentCopy(t *testing.T) {
	a := newTestArchive()
	src, err := a.EnsureGroup("/md/run1")
	if err != nil {
		t.Fatal(err)
	}
	seedTrajectory(t, src, 6, 4, 0)

	sel, err := a.Select(context.Background(), "/md/run1", []int64{1, 2})
	if err != nil {
		t.Fatal(err)
	}

	// Writing the selection leaves the source alone.
	if err := sel.WriteArray("energies", nil, types.FloatBuffer([]float64{100, 200})); err != nil {
		t.Fatal(err)
	}
	orig, err := src.ReadArray("energies", []types.Range{{Start: 1, Stop: 3}})
	if err != nil {
		t.Fatal(err)
	}
	if !orig.Equal(types.FloatBuffer([]float64{1, 2})) {
		t.Errorf("source energies changed to %v", orig.Floats)
	}

	// And writing the source leaves the selection alone.
	if err := src.WriteArray("energies", []types.Range{{Start: 1, Stop: 2}}, types.FloatBuffer([]float64{-1})); err != nil {
		t.Fatal(err)
	}
	got, err := sel.ReadArray("energies", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(types.FloatBuffer([]float64{100, 200})) {
		t.Errorf("selection energies changed to %v", got.Floats)
	}
}

func TestSelectIndexValidation(t *testing.T) {
	a := newTestArchive()
	src, err := a.EnsureGroup("/md/run1")
	if err != nil {
		t.Fatal(err)
	}
	seedTrajectory(t, src, 10, 4, 0)

	tests := []struct {
		name    string
		indices []int64
	}{
		{"descending", []int64{3, 1}},
		{"duplicate", []int64{2, 2}},
		{"negative", []int64{-1, 4}},
		{"past the end", []int64{4, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Select(context.Background(), "/md/run1", tt.indices)
			if !rerr.IsCode(err, rerr.CodeRangeError) {
				t.Errorf("Select(%v): got %v, want RANGE_ERROR", tt.indices, err)
			}
		})
	}

	if _, err := a.Select(context.Background(), "/md/nope", []int64{0}); !rerr.IsCode(err, rerr.CodeNotFound) {
		t.Errorf("Select on missing group: got %v, want NOT_FOUND", err)
	}
}

func TestSelectEmptyIndices(t *testing.T) {
	a := newTestArchive()
	src, err := a.EnsureGroup("/md/run1")
	if err != nil {
		t.Fatal(err)
	}
	seedTrajectory(t, src, 5, 4, 0)

	sel, err := a.Select(context.Background(), "/md/run1", nil)
	if err != nil {
		t.Fatalf("Select with no indices: %v", err)
	}
	en, err := sel.ReadArray("energies", nil)
	if err != nil {
		t.Fatal(err)
	}
	if en.Len() != 0 {
		t.Errorf("empty selection has %d energies", en.Len())
	}
	z, err := sel.ReadArray("atomic_numbers", nil)
	if err != nil {
		t.Fatal(err)
	}
	if z.Len() != 4 {
		t.Errorf("atomic_numbers length = %d, want 4", z.Len())
	}
}

func TestSelectThenInsert(t *testing.T) {
	a := newTestArchive()
	src, err := a.EnsureGroup("/md/run1")
	if err != nil {
		t.Fatal(err)
	}
	seedTrajectory(t, src, 8, 4, 0)

	sel, err := a.Select(context.Background(), "/md/run1", []int64{0, 2, 4, 6})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Insert("/md/even", sel); err != nil {
		t.Fatalf("Insert selection: %v", err)
	}

	g, err := a.Resolve("/md/even")
	if err != nil {
		t.Fatal(err)
	}
	en, err := g.ReadArray("energies", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !en.Equal(types.FloatBuffer([]float64{0, 2, 4, 6})) {
		t.Errorf("inserted selection energies = %v", en.Floats)
	}
}

func TestSelectCanceledContext(t *testing.T) {
	a := newTestArchive()
	src, err := a.EnsureGroup("/md/run1")
	if err != nil {
		t.Fatal(err)
	}
	seedTrajectory(t, src, 6, 4, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Select(ctx, "/md/run1", []int64{0, 1}); err == nil {
		t.Error("Select with canceled context succeeded")
	}
}

func TestTruncateRepairsInconsistentGroup(t *testing.T) {
	a := newTestArchive()
	g, err := a.EnsureGroup("/md/run1")
	if err != nil {
		t.Fatal(err)
	}
	seedTrajectory(t, g, 10, 6, 0)

	// Shorten energies out of step, as an interrupted append would.
	if err := g.DeleteArray("energies"); err != nil {
		t.Fatal(err)
	}
	if _, err := g.CreateArray("energies", types.DTypeFloating, types.Shape{8}, types.AxisFrame, 0); err != nil {
		t.Fatal(err)
	}
	if err := g.WriteArray("energies", nil, types.FloatBuffer([]float64{0, 1, 2, 3, 4, 5, 6, 7})); err != nil {
		t.Fatal(err)
	}

	v := schema.New()
	report, err := v.Validate(g)
	if err != nil {
		t.Fatal(err)
	}
	if report.OK() || len(report.Violations) != 1 || report.Violations[0].Array != "energies" {
		t.Fatalf("report = %+v, want one violation on energies", report)
	}

	plan, err := v.Plan(g)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Truncate(context.Background(), plan); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	report, err = v.Validate(g)
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK() || report.FrameLen != 8 {
		t.Fatalf("after repair: %+v, want consistent at 8 frames", report)
	}

	// Truncation keeps leading frames.
	pos, err := g.ReadArray("positions", nil)
	if err != nil {
		t.Fatal(err)
	}
	if pos.Len() != 8*3 {
		t.Fatalf("positions length = %d after repair", pos.Len())
	}
	if pos.Floats[0] != 0 || pos.Floats[23] != 23*0.25 {
		t.Errorf("positions prefix disturbed: first=%v last=%v", pos.Floats[0], pos.Floats[23])
	}

	// The repair is recorded on the group.
	if v, _ := g.MetaValue(schema.MetaTruncatedTo); v != int64(8) {
		t.Errorf("%s = %v, want 8", schema.MetaTruncatedTo, v)
	}
	if v, _ := g.MetaValue(schema.MetaTruncatedArrays); v != "positions" {
		t.Errorf("%s = %v, want positions", schema.MetaTruncatedArrays, v)
	}
	if v, _ := g.MetaValue(schema.MetaTruncatedFrom); v != "positions:10" {
		t.Errorf("%s = %v, want positions:10", schema.MetaTruncatedFrom, v)
	}

	// Arrays off the frame axis were never touched.
	z, err := g.ReadArray("atomic_numbers", nil)
	if err != nil {
		t.Fatal(err)
	}
	if z.Len() != 6 {
		t.Errorf("atomic_numbers length = %d", z.Len())
	}
}

func TestTruncateRejectsBadPlan(t *testing.T) {
	a := newTestArchive()
	g, err := a.EnsureGroup("/md/run1")
	if err != nil {
		t.Fatal(err)
	}
	seedTrajectory(t, g, 5, 4, 0)

	tests := []struct {
		name     string
		plan     []schema.Truncation
		wantCode string
	}{
		{"missing array", []schema.Truncation{{Array: "ghost", From: 5, To: 3}}, rerr.CodeNotFound},
		{"not frame indexed", []schema.Truncation{{Array: "atomic_numbers", From: 4, To: 2}}, rerr.CodeShapeError},
		{"grow instead of cut", []schema.Truncation{{Array: "energies", From: 5, To: 9}}, rerr.CodeRangeError},
		{"negative target", []schema.Truncation{{Array: "energies", From: 5, To: -1}}, rerr.CodeRangeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Truncate(context.Background(), tt.plan)
			if !rerr.IsCode(err, tt.wantCode) {
				t.Errorf("got %v, want code %s", err, tt.wantCode)
			}
		})
	}

	// A no-op plan leaves the metadata unstamped.
	if err := g.Truncate(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := g.MetaValue(schema.MetaTruncatedTo); ok {
		t.Error("empty plan stamped truncation metadata")
	}
}
