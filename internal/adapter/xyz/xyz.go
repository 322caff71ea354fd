// Package xyz parses extended-XYZ trajectory text into archive arrays.
//
// An XYZ trajectory is a sequence of frames. Each frame is an atom
// count line, a free-form comment line, and one line per atom holding
// an element symbol and three Cartesian coordinates. Every frame of a
// trajectory must describe the same atoms in the same order; atom
// identity belongs to the system, not to the frame.
package xyz

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	rerr "github.com/reparc/reparc/internal/errors"
	"github.com/reparc/reparc/internal/registry"
	"github.com/reparc/reparc/pkg/types"
)

// FormatID is the identifier the adapter registers under.
const FormatID = "xyz"

// Names of the arrays the adapter guarantees to produce.
const (
	ArrayAtomicNumbers = "atomic_numbers"
	ArrayGeometry      = "geometry"
	ArrayComment       = "comment"
)

// Comment lines longer than this fail the parse. Extended-XYZ packs
// lattice vectors and per-column type declarations into the comment
// line, so it runs long in practice.
const maxLineBytes = 1 << 20

// Descriptor returns the registry descriptor for the adapter.
func Descriptor() *registry.Descriptor {
	return &registry.Descriptor{
		FormatID:    FormatID,
		Description: "extended-XYZ trajectory text",
		Arrays:      []string{ArrayAtomicNumbers, ArrayGeometry, ArrayComment},
		Parse:       Parse,
	}
}

// lineScanner counts lines so parse errors can point at the input.
type lineScanner struct {
	sc   *bufio.Scanner
	line int
}

func (s *lineScanner) next() (string, bool) {
	if !s.sc.Scan() {
		return "", false
	}
	s.line++
	return s.sc.Text(), true
}

// Parse reads an XYZ trajectory and produces the adapter's three
// arrays: atomic_numbers over the atom axis, geometry and comment over
// the frame axis. Blank lines are tolerated between frames but not
// inside one.
func Parse(ctx context.Context, r io.Reader) (*registry.Payload, error) {
	sc := &lineScanner{sc: bufio.NewScanner(r)}
	sc.sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		atoms    []int64
		coords   []float64
		comments []string
	)

	for frame := 0; ; frame++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		header, ok := sc.next()
		for ok && strings.TrimSpace(header) == "" {
			header, ok = sc.next()
		}
		if !ok {
			break
		}

		count, err := strconv.Atoi(strings.TrimSpace(header))
		if err != nil || count <= 0 {
			return nil, parseErrf(sc.line, "atom count line %q is not a positive integer",
				strings.TrimSpace(header))
		}
		if frame > 0 && count != len(atoms) {
			return nil, parseErrf(sc.line, "frame %d declares %d atoms, earlier frames have %d",
				frame, count, len(atoms))
		}

		comment, ok := sc.next()
		if !ok {
			return nil, parseErrf(sc.line, "frame %d ends before its comment line", frame)
		}
		comments = append(comments, comment)

		for atom := 0; atom < count; atom++ {
			raw, ok := sc.next()
			if !ok {
				return nil, parseErrf(sc.line, "frame %d ends at atom %d of %d", frame, atom, count)
			}
			fields := strings.Fields(raw)
			if len(fields) < 4 {
				return nil, parseErrf(sc.line, "atom line %q needs a symbol and three coordinates", raw)
			}
			z, ok := AtomicNumber(fields[0])
			if !ok {
				return nil, parseErrf(sc.line, "unknown element symbol %q", fields[0])
			}
			if frame == 0 {
				atoms = append(atoms, z)
			} else if atoms[atom] != z {
				want, _ := Symbol(atoms[atom])
				return nil, parseErrf(sc.line, "frame %d atom %d is %s, frame 0 has %s",
					frame, atom, fields[0], want)
			}
			for axis := 0; axis < 3; axis++ {
				v, err := strconv.ParseFloat(fields[1+axis], 64)
				if err != nil {
					return nil, parseErrf(sc.line, "coordinate %q is not a number", fields[1+axis])
				}
				coords = append(coords, v)
			}
		}
	}
	if err := sc.sc.Err(); err != nil {
		return nil, rerr.NewParseError(rerr.CodeParseError, "reading trajectory", err)
	}
	if len(comments) == 0 {
		return nil, rerr.NewParseError(rerr.CodeParseError, "trajectory holds no frames", nil)
	}

	nFrames := int64(len(comments))
	nAtoms := int64(len(atoms))
	return &registry.Payload{
		Arrays: []registry.Array{
			{
				Name:  ArrayAtomicNumbers,
				Role:  types.AxisAtom,
				DType: types.DTypeInteger,
				Shape: types.Shape{nAtoms},
				Data:  types.IntBuffer(atoms),
			},
			{
				Name:  ArrayGeometry,
				Role:  types.AxisFrame,
				DType: types.DTypeFloating,
				Shape: types.Shape{nFrames, nAtoms, 3},
				Data:  types.FloatBuffer(coords),
			},
			{
				Name:  ArrayComment,
				Role:  types.AxisFrame,
				DType: types.DTypeString,
				Shape: types.Shape{nFrames},
				Data:  types.StringBuffer(comments),
			},
		},
	}, nil
}

func parseErrf(line int, format string, args ...interface{}) error {
	return rerr.NewParseError(rerr.CodeParseError,
		fmt.Sprintf("line %d: %s", line, fmt.Sprintf(format, args...)), nil)
}
