package archive

import (
	"testing"

	"github.com/reparc/reparc/internal/array"
	"github.com/reparc/reparc/internal/backend"
	rerr "github.com/reparc/reparc/internal/errors"
	"github.com/reparc/reparc/pkg/types"
)

func newTestArchive() *Archive {
	return New(array.New(backend.NewMemoryBackend()))
}

// seedTrajectory fills g with a consistent frame-indexed group shaped
// like a small trajectory: positions (frames,3) and energies (frames)
// on the frame axis, atomic_numbers (atoms) on the atom axis. Values
// are offset by base so groups are distinguishable after a merge.
func seedTrajectory(t *testing.T, g *Group, frames, atoms int64, base float64) {
	t.Helper()
	wants := backend.CapRandomRead | backend.CapAppend

	if _, err := g.CreateArray("positions", types.DTypeFloating, types.Shape{frames, 3}, types.AxisFrame, wants); err != nil {
		t.Fatalf("create positions: %v", err)
	}
	pos := make([]float64, frames*3)
	for i := range pos {
		pos[i] = base + float64(i)*0.25
	}
	if err := g.WriteArray("positions", nil, types.FloatBuffer(pos)); err != nil {
		t.Fatalf("write positions: %v", err)
	}

	if _, err := g.CreateArray("energies", types.DTypeFloating, types.Shape{frames}, types.AxisFrame, wants); err != nil {
		t.Fatalf("create energies: %v", err)
	}
	en := make([]float64, frames)
	for i := range en {
		en[i] = base + float64(i)
	}
	if err := g.WriteArray("energies", nil, types.FloatBuffer(en)); err != nil {
		t.Fatalf("write energies: %v", err)
	}

	if _, err := g.CreateArray("atomic_numbers", types.DTypeInteger, types.Shape{atoms}, types.AxisAtom, wants); err != nil {
		t.Fatalf("create atomic_numbers: %v", err)
	}
	z := make([]int64, atoms)
	for i := range z {
		z[i] = []int64{1, 6, 8}[i%3]
	}
	if err := g.WriteArray("atomic_numbers", nil, types.IntBuffer(z)); err != nil {
		t.Fatalf("write atomic_numbers: %v", err)
	}
}

func TestEnsureGroupCreatesIntermediates(t *testing.T) {
	a := newTestArchive()

	g, err := a.EnsureGroup("/md/run1/prod")
	if err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}
	if g.Path() != "/md/run1/prod" {
		t.Errorf("leaf path = %q, want /md/run1/prod", g.Path())
	}
	if g.Name() != "prod" {
		t.Errorf("leaf name = %q, want prod", g.Name())
	}

	md, err := a.Resolve("/md")
	if err != nil {
		t.Fatalf("Resolve /md: %v", err)
	}
	if got := md.Children(); len(got) != 1 || got[0] != "run1" {
		t.Errorf("children of /md = %v, want [run1]", got)
	}
	if md.Parent() != a.Root() {
		t.Error("parent of /md is not the root")
	}

	// Idempotent: resolving again yields the same nodes.
	again, err := a.EnsureGroup("/md/run1/prod")
	if err != nil {
		t.Fatalf("EnsureGroup again: %v", err)
	}
	if again != g {
		t.Error("EnsureGroup created a second node for an existing path")
	}
}

func TestResolveMissingGroup(t *testing.T) {
	a := newTestArchive()
	if _, err := a.EnsureGroup("/md"); err != nil {
		t.Fatal(err)
	}

	if _, err := a.Resolve("/md/run9"); !rerr.IsCode(err, rerr.CodeNotFound) {
		t.Errorf("Resolve missing: got %v, want NOT_FOUND", err)
	}
	if _, err := a.Resolve("/md/../run1"); !rerr.IsCode(err, rerr.CodePathConflict) {
		t.Errorf("Resolve dotted path: got %v, want PATH_CONFLICT", err)
	}

	root, err := a.Resolve("/")
	if err != nil || root != a.Root() {
		t.Errorf("Resolve(/) = %v, %v, want root", root, err)
	}
	root, err = a.Resolve("")
	if err != nil || root != a.Root() {
		t.Errorf("Resolve(empty) = %v, %v, want root", root, err)
	}
}

func TestEnsureGroupThroughArrayFails(t *testing.T) {
	a := newTestArchive()
	g, err := a.EnsureGroup("/md")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.CreateArray("positions", types.DTypeFloating, types.Shape{4, 3}, types.AxisFrame, 0); err != nil {
		t.Fatal(err)
	}

	if _, err := a.EnsureGroup("/md/positions/x"); !rerr.IsCode(err, rerr.CodePathConflict) {
		t.Errorf("EnsureGroup through array: got %v, want PATH_CONFLICT", err)
	}
}

func TestCreateArrayNameRules(t *testing.T) {
	a := newTestArchive()
	g, err := a.EnsureGroup("/md")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.EnsureGroup("/md/run1"); err != nil {
		t.Fatal(err)
	}
	if _, err := g.CreateArray("energies", types.DTypeFloating, types.Shape{4}, types.AxisFrame, 0); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		arrName  string
		role     types.AxisRole
		wantCode string
	}{
		{"duplicate array", "energies", types.AxisFrame, rerr.CodeNameConflict},
		{"collides with child group", "run1", types.AxisNone, rerr.CodePathConflict},
		{"invalid role", "forces", types.AxisRole("banana"), rerr.CodeInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.CreateArray(tt.arrName, types.DTypeFloating, types.Shape{4}, tt.role, 0)
			if !rerr.IsCode(err, tt.wantCode) {
				t.Errorf("got %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestGroupArrayReadWriteDelete(t *testing.T) {
	a := newTestArchive()
	g, err := a.EnsureGroup("/md/run1")
	if err != nil {
		t.Fatal(err)
	}
	seedTrajectory(t, g, 4, 6, 0)

	buf, err := g.ReadArray("energies", []types.Range{{Start: 1, Stop: 3}})
	if err != nil {
		t.Fatalf("ReadArray: %v", err)
	}
	if !buf.Equal(types.FloatBuffer([]float64{1, 2})) {
		t.Errorf("energies[1:3] = %v", buf.Floats)
	}

	if err := g.WriteArray("energies", []types.Range{{Start: 0, Stop: 1}}, types.FloatBuffer([]float64{-7})); err != nil {
		t.Fatalf("WriteArray: %v", err)
	}
	buf, err = g.ReadArray("energies", nil)
	if err != nil {
		t.Fatal(err)
	}
	if buf.Floats[0] != -7 {
		t.Errorf("energies[0] = %v after overwrite, want -7", buf.Floats[0])
	}

	if err := g.DeleteArray("energies"); err != nil {
		t.Fatalf("DeleteArray: %v", err)
	}
	if _, err := g.ReadArray("energies", nil); !rerr.IsCode(err, rerr.CodeNotFound) {
		t.Errorf("read after delete: got %v, want NOT_FOUND", err)
	}
	if got := g.Arrays(); len(got) != 2 {
		t.Errorf("arrays after delete = %v", got)
	}
}

func TestTagAndDescriptors(t *testing.T) {
	a := newTestArchive()
	g, err := a.EnsureGroup("/md")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.CreateArray("cell", types.DTypeFloating, types.Shape{3, 3}, types.AxisNone, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := g.CreateArray("energies", types.DTypeFloating, types.Shape{5}, types.AxisNone, 0); err != nil {
		t.Fatal(err)
	}

	if err := g.Tag("energies", types.AxisFrame); err != nil {
		t.Fatalf("Tag: %v", err)
	}
	if got := g.Role("energies"); got != types.AxisFrame {
		t.Errorf("role after tag = %q", got)
	}
	if err := g.Tag("missing", types.AxisFrame); !rerr.IsCode(err, rerr.CodeNotFound) {
		t.Errorf("Tag missing array: got %v, want NOT_FOUND", err)
	}
	if err := g.Tag("energies", types.AxisRole("banana")); !rerr.IsCode(err, rerr.CodeInvalidName) {
		t.Errorf("Tag invalid role: got %v, want INVALID_NAME", err)
	}

	descrs, err := g.Descriptors()
	if err != nil {
		t.Fatal(err)
	}
	if len(descrs) != 2 || descrs[0].Name != "cell" || descrs[1].Name != "energies" {
		t.Fatalf("descriptors out of order: %+v", descrs)
	}
	if descrs[1].Role != types.AxisFrame || !descrs[1].Shape.Equal(types.Shape{5}) {
		t.Errorf("energies descriptor = %+v", descrs[1])
	}
}

func TestSetMetaNormalizesScalars(t *testing.T) {
	a := newTestArchive()
	g, err := a.EnsureGroup("/md")
	if err != nil {
		t.Fatal(err)
	}

	if err := g.SetMeta("temperature", 300); err != nil {
		t.Fatalf("SetMeta int: %v", err)
	}
	if v, _ := g.MetaValue("temperature"); v != int64(300) {
		t.Errorf("temperature = %v (%T), want int64 300", v, v)
	}
	if err := g.SetMeta("solvent", "water"); err != nil {
		t.Fatal(err)
	}
	if err := g.SetMeta("tags", []string{"a"}); !rerr.IsCode(err, rerr.CodeInvalidName) {
		t.Errorf("SetMeta slice: got %v, want INVALID_NAME", err)
	}

	meta := g.Metadata()
	meta["solvent"] = "mutated"
	if v, _ := g.MetaValue("solvent"); v != "water" {
		t.Error("Metadata() does not return an independent copy")
	}
}

func TestInsertStandaloneGroup(t *testing.T) {
	a := newTestArchive()
	g := NewStandalone(a.Store())
	seedTrajectory(t, g, 5, 4, 0)

	if err := a.Insert("/md/run2", g); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if g.Path() != "/md/run2" {
		t.Errorf("mounted path = %q", g.Path())
	}
	got, err := a.Resolve("/md/run2")
	if err != nil || got != g {
		t.Fatalf("Resolve after insert = %v, %v", got, err)
	}
	buf, err := got.ReadArray("energies", nil)
	if err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 5 {
		t.Errorf("energies length = %d after insert", buf.Len())
	}

	// A mounted group cannot be inserted a second time.
	if err := a.Insert("/other", g); !rerr.IsCode(err, rerr.CodePathConflict) {
		t.Errorf("re-insert mounted group: got %v, want PATH_CONFLICT", err)
	}
}

func TestInsertConflicts(t *testing.T) {
	a := newTestArchive()
	populated, err := a.EnsureGroup("/md/run1")
	if err != nil {
		t.Fatal(err)
	}
	seedTrajectory(t, populated, 3, 2, 0)
	parent, err := a.Resolve("/md")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := parent.CreateArray("readme", types.DTypeString, types.Shape{1}, types.AxisNone, 0); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"populated destination", "/md/run1"},
		{"root destination", "/"},
		{"through an array", "/md/readme/x"},
		{"array name in parent", "/md/readme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewStandalone(a.Store())
			seedTrajectory(t, g, 2, 2, 0)
			err := a.Insert(tt.path, g)
			if !rerr.IsCode(err, rerr.CodePathConflict) {
				t.Errorf("Insert(%q): got %v, want PATH_CONFLICT", tt.path, err)
			}
		})
	}

	if err := a.Insert("/md/run3", nil); !rerr.IsCode(err, rerr.CodePathConflict) {
		t.Errorf("Insert(nil): got %v, want PATH_CONFLICT", err)
	}
}

func TestInsertOntoEmptyIntermediate(t *testing.T) {
	a := newTestArchive()
	// /md/run4 exists but is empty, created as a side effect.
	if _, err := a.EnsureGroup("/md/run4/"); err != nil {
		t.Fatal(err)
	}

	g := NewStandalone(a.Store())
	seedTrajectory(t, g, 3, 2, 0)
	if err := a.Insert("/md/run4", g); err != nil {
		t.Fatalf("Insert onto empty group: %v", err)
	}
	got, err := a.Resolve("/md/run4")
	if err != nil || got != g {
		t.Fatalf("Resolve after insert = %v, %v", got, err)
	}
}

func TestRemoveReleasesArrays(t *testing.T) {
	a := newTestArchive()
	g, err := a.EnsureGroup("/md/run1")
	if err != nil {
		t.Fatal(err)
	}
	seedTrajectory(t, g, 3, 2, 0)
	h, ok := g.Handle("energies")
	if !ok {
		t.Fatal("no handle for energies")
	}

	if err := a.Remove("/md/run1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := a.Resolve("/md/run1"); !rerr.IsCode(err, rerr.CodeNotFound) {
		t.Errorf("Resolve after remove: got %v, want NOT_FOUND", err)
	}
	if _, err := a.Store().Read(h, nil); !rerr.IsCode(err, rerr.CodeNotFound) {
		t.Errorf("read released array: got %v, want NOT_FOUND", err)
	}

	// Removing twice reports the group as gone.
	if err := a.Remove("/md/run1"); !rerr.IsCode(err, rerr.CodeNotFound) {
		t.Errorf("second Remove: got %v, want NOT_FOUND", err)
	}
	if err := a.Remove("/"); err == nil {
		t.Error("Remove(/) succeeded")
	}
}

func TestWalkVisitsParentsFirst(t *testing.T) {
	a := newTestArchive()
	for _, p := range []string{"/md/run2", "/md/run1", "/qm"} {
		if _, err := a.EnsureGroup(p); err != nil {
			t.Fatal(err)
		}
	}

	var visited []string
	err := a.Walk(func(g *Group) error {
		visited = append(visited, g.Path())
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	want := []string{"", "/md", "/md/run1", "/md/run2", "/qm"}
	if len(visited) != len(want) {
		t.Fatalf("visited %v, want %v", visited, want)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("visited %v, want %v", visited, want)
		}
	}
}
