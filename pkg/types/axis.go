package types

// AxisRole is the semantic role of an array's leading axis within a group.
// Tagging an array with AxisFrame subjects it to the axis-consistency
// check: every frame-indexed array in a group must share shape[0].
// Roles are assigned explicitly; the engine never infers them.
type AxisRole string

const (
	// AxisNone marks an array that carries no cross-array axis constraint.
	AxisNone AxisRole = ""

	// AxisFrame marks the leading axis as a count of frames.
	AxisFrame AxisRole = "frame"

	// AxisAtom marks the leading axis as a count of atoms.
	AxisAtom AxisRole = "atom"

	// AxisProperty marks the leading axis as a property vector.
	AxisProperty AxisRole = "property"
)

// Valid reports whether r is a recognized axis role.
func (r AxisRole) Valid() bool {
	switch r {
	case AxisNone, AxisFrame, AxisAtom, AxisProperty:
		return true
	}
	return false
}
