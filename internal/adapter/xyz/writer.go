package xyz

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	rerr "github.com/reparc/reparc/internal/errors"
)

// DefaultPrecision is the number of coordinate decimals Write emits
// when the caller passes a non-positive precision.
const DefaultPrecision = 10

// Write renders frames as XYZ trajectory text. numbers holds one
// atomic number per atom, coords the flat (frame, atom, axis)
// coordinates, and comments one line per frame or nil for empty
// comment lines. The output parses back to the same arrays.
func Write(w io.Writer, numbers []int64, coords []float64, comments []string, precision int) error {
	nAtoms := len(numbers)
	if nAtoms == 0 {
		return rerr.NewValidationError(rerr.CodeShapeError, "no atoms to write")
	}
	if len(coords)%(3*nAtoms) != 0 {
		return rerr.NewValidationError(rerr.CodeShapeMismatch,
			fmt.Sprintf("%d coordinates do not divide into frames of %d atoms", len(coords), nAtoms))
	}
	nFrames := len(coords) / (3 * nAtoms)
	if comments != nil && len(comments) != nFrames {
		return rerr.NewValidationError(rerr.CodeShapeMismatch,
			fmt.Sprintf("%d comments for %d frames", len(comments), nFrames))
	}

	syms := make([]string, nAtoms)
	for i, z := range numbers {
		sym, ok := Symbol(z)
		if !ok {
			return rerr.NewValidationError(rerr.CodeRangeError,
				fmt.Sprintf("atomic number %d has no element symbol", z))
		}
		syms[i] = sym
	}
	if precision <= 0 {
		precision = DefaultPrecision
	}

	bw := bufio.NewWriter(w)
	for f := 0; f < nFrames; f++ {
		fmt.Fprintf(bw, "%d\n", nAtoms)
		if comments != nil {
			fmt.Fprintf(bw, "%s\n", strings.TrimRight(comments[f], "\n"))
		} else {
			fmt.Fprint(bw, "\n")
		}
		base := f * nAtoms * 3
		for a := 0; a < nAtoms; a++ {
			p := base + a*3
			fmt.Fprintf(bw, "%s %.*f %.*f %.*f\n",
				syms[a], precision, coords[p], precision, coords[p+1], precision, coords[p+2])
		}
	}
	return bw.Flush()
}
