package xyz

import (
	"bytes"
	"context"
	"strings"
	"testing"

	rerr "github.com/reparc/reparc/internal/errors"
	"github.com/reparc/reparc/internal/registry"
	"github.com/reparc/reparc/pkg/types"
)

const waterFrame = `3
water, frame 0
O 0.0 0.0 0.117
H 0.0 0.757 -0.471
H 0.0 -0.757 -0.471
`

const waterTrajectory = waterFrame + `3
water, frame 1
O 0.0 0.0 0.120
H 0.0 0.760 -0.470
H 0.0 -0.760 -0.470
`

func findArray(t *testing.T, p *registry.Payload, name string) registry.Array {
	t.Helper()
	for _, a := range p.Arrays {
		if a.Name == name {
			return a
		}
	}
	t.Fatalf("payload has no array %q", name)
	return registry.Array{}
}

func TestParseSingleFrame(t *testing.T) {
	p, err := Parse(context.Background(), strings.NewReader(waterFrame))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p.Arrays) != 3 {
		t.Fatalf("expected 3 arrays, got %d", len(p.Arrays))
	}

	z := findArray(t, p, ArrayAtomicNumbers)
	if z.Role != types.AxisAtom || z.DType != types.DTypeInteger {
		t.Errorf("atomic_numbers role/dtype: %s/%s", z.Role, z.DType)
	}
	if !z.Shape.Equal(types.Shape{3}) {
		t.Errorf("atomic_numbers shape: %s", z.Shape)
	}
	want := []int64{8, 1, 1}
	for i, v := range z.Data.Ints {
		if v != want[i] {
			t.Errorf("atom %d: got %d, want %d", i, v, want[i])
		}
	}

	r := findArray(t, p, ArrayGeometry)
	if r.Role != types.AxisFrame || r.DType != types.DTypeFloating {
		t.Errorf("geometry role/dtype: %s/%s", r.Role, r.DType)
	}
	if !r.Shape.Equal(types.Shape{1, 3, 3}) {
		t.Errorf("geometry shape: %s", r.Shape)
	}
	if r.Data.Floats[2] != 0.117 || r.Data.Floats[4] != 0.757 {
		t.Errorf("geometry data: %v", r.Data.Floats)
	}

	c := findArray(t, p, ArrayComment)
	if !c.Shape.Equal(types.Shape{1}) || c.Data.Strings[0] != "water, frame 0" {
		t.Errorf("comment: shape %s, data %v", c.Shape, c.Data.Strings)
	}
}

func TestParseTrajectory(t *testing.T) {
	// A blank separator line between frames is tolerated.
	input := waterFrame + "\n" + `3
water, frame 1
O 0.0 0.0 0.120
H 0.0 0.760 -0.470
H 0.0 -0.760 -0.470
`
	p, err := Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	r := findArray(t, p, ArrayGeometry)
	if !r.Shape.Equal(types.Shape{2, 3, 3}) {
		t.Fatalf("geometry shape: %s", r.Shape)
	}
	if r.Data.Floats[9+2] != 0.120 {
		t.Errorf("frame 1 oxygen z: %v", r.Data.Floats[9+2])
	}

	c := findArray(t, p, ArrayComment)
	if c.Data.Strings[1] != "water, frame 1" {
		t.Errorf("frame 1 comment: %q", c.Data.Strings[1])
	}
}

func TestParseExtendedColumns(t *testing.T) {
	// Extra per-atom columns beyond the coordinates are ignored.
	input := `2
Lattice="10 0 0 0 10 0 0 0 10" Properties=species:S:1:pos:R:3:forces:R:3
C 0.0 0.0 0.0 0.1 0.2 0.3
O 1.2 0.0 0.0 -0.1 -0.2 -0.3
`
	p, err := Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	z := findArray(t, p, ArrayAtomicNumbers)
	if z.Data.Ints[0] != 6 || z.Data.Ints[1] != 8 {
		t.Errorf("atomic numbers: %v", z.Data.Ints)
	}
	r := findArray(t, p, ArrayGeometry)
	if r.Data.Floats[3] != 1.2 {
		t.Errorf("second atom x: %v", r.Data.Floats[3])
	}
}

func TestParseSymbolCase(t *testing.T) {
	input := `2
case test
FE 0.0 0.0 0.0
fe 1.0 1.0 1.0
`
	p, err := Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	z := findArray(t, p, ArrayAtomicNumbers)
	for i, v := range z.Data.Ints {
		if v != 26 {
			t.Errorf("atom %d: got %d, want 26", i, v)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty input", ""},
		{"blank input", "\n\n"},
		{"bad atom count", "three\ncomment\n"},
		{"zero atom count", "0\ncomment\n"},
		{"negative atom count", "-2\ncomment\n"},
		{"missing comment line", "2\n"},
		{"truncated frame", "3\ncomment\nO 0.0 0.0 0.0\n"},
		{"short atom line", "1\ncomment\nO 0.0 0.0\n"},
		{"bad coordinate", "1\ncomment\nO 0.0 zero 0.0\n"},
		{"unknown symbol", "1\ncomment\nXx 0.0 0.0 0.0\n"},
		{"ragged frames", waterFrame + "2\nsmaller\nO 0.0 0.0 0.0\nH 0.0 0.0 1.0\n"},
		{"inconsistent atoms", waterFrame + "3\nreordered\nH 0.0 0.0 0.117\nO 0.0 0.757 -0.471\nH 0.0 -0.757 -0.471\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(context.Background(), strings.NewReader(tt.input))
			if !rerr.IsCode(err, rerr.CodeParseError) {
				t.Errorf("got %v, want PARSE_ERROR", err)
			}
		})
	}
}

func TestParseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Parse(ctx, strings.NewReader(waterFrame)); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestDispatchThroughRegistry(t *testing.T) {
	reg := registry.New()
	if err := reg.Register(Descriptor()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	res, err := reg.Dispatch(context.Background(), FormatID, strings.NewReader(waterTrajectory))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.FormatID != FormatID {
		t.Errorf("format id: %q", res.FormatID)
	}
	if res.Metadata[registry.MetaFormat] != FormatID {
		t.Errorf("provenance format stamp: %v", res.Metadata[registry.MetaFormat])
	}
	if len(res.Arrays) != 3 {
		t.Errorf("expected 3 arrays, got %d", len(res.Arrays))
	}
}

func TestWriteRoundTrip(t *testing.T) {
	p, err := Parse(context.Background(), strings.NewReader(waterTrajectory))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	z := findArray(t, p, ArrayAtomicNumbers)
	r := findArray(t, p, ArrayGeometry)
	c := findArray(t, p, ArrayComment)

	var buf bytes.Buffer
	if err := Write(&buf, z.Data.Ints, r.Data.Floats, c.Data.Strings, 6); err != nil {
		t.Fatalf("Write: %v", err)
	}

	back, err := Parse(context.Background(), &buf)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if !findArray(t, back, ArrayAtomicNumbers).Data.Equal(z.Data) {
		t.Error("atomic numbers changed across round trip")
	}
	if !findArray(t, back, ArrayGeometry).Data.Equal(r.Data) {
		t.Error("geometry changed across round trip")
	}
	if !findArray(t, back, ArrayComment).Data.Equal(c.Data) {
		t.Error("comments changed across round trip")
	}
}

func TestWriteNilComments(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, []int64{1}, []float64{0, 0, 0, 1, 1, 1}, nil, 2)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := "1\n\nH 0.00 0.00 0.00\n1\n\nH 1.00 1.00 1.00\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestWriteValidation(t *testing.T) {
	coords := []float64{0, 0, 0}
	if err := Write(&bytes.Buffer{}, nil, coords, nil, 2); err == nil {
		t.Error("expected error for empty atom list")
	}
	if err := Write(&bytes.Buffer{}, []int64{1, 1}, coords, nil, 2); err == nil {
		t.Error("expected error for coordinates not dividing into frames")
	}
	if err := Write(&bytes.Buffer{}, []int64{1}, coords, []string{"a", "b"}, 2); err == nil {
		t.Error("expected error for comment count mismatch")
	}
	if err := Write(&bytes.Buffer{}, []int64{200}, coords, nil, 2); err == nil {
		t.Error("expected error for atomic number without symbol")
	}
}

func TestElementTable(t *testing.T) {
	tests := []struct {
		symbol string
		z      int64
	}{
		{"H", 1}, {"C", 6}, {"O", 8}, {"Fe", 26}, {"U", 92}, {"Og", 118},
	}
	for _, tt := range tests {
		z, ok := AtomicNumber(tt.symbol)
		if !ok || z != tt.z {
			t.Errorf("AtomicNumber(%q) = %d, %v; want %d", tt.symbol, z, ok, tt.z)
		}
		sym, ok := Symbol(tt.z)
		if !ok || sym != tt.symbol {
			t.Errorf("Symbol(%d) = %q, %v; want %q", tt.z, sym, ok, tt.symbol)
		}
	}

	if _, ok := AtomicNumber("Xx"); ok {
		t.Error("Xx resolved to an atomic number")
	}
	if _, ok := Symbol(0); ok {
		t.Error("Symbol(0) resolved")
	}
	if _, ok := Symbol(119); ok {
		t.Error("Symbol(119) resolved")
	}
}
