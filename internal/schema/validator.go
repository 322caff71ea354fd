// Package schema checks axis consistency across the arrays of a group.
// The central invariant: every array tagged with the frame role shares
// the same leading-dimension length. Validation is read-only; repair
// plans are computed here but applied by the caller.
package schema

import (
	"fmt"
	"strings"

	"github.com/reparc/reparc/pkg/types"
)

// Metadata keys recorded by callers that apply a truncation plan.
const (
	MetaTruncatedTo     = "truncated_to"
	MetaTruncatedArrays = "truncated_arrays"
	MetaTruncatedFrom   = "truncated_from"
)

// ArrayDescr is the view of one array the validator works from.
type ArrayDescr struct {
	Name  string
	Role  types.AxisRole
	DType types.DType
	Shape types.Shape
}

// GroupView exposes a group's array descriptors without exposing the
// group itself. Implementations return descriptors in name order so
// reports are deterministic.
type GroupView interface {
	Descriptors() ([]ArrayDescr, error)
}

// Violation reports one array whose frame axis disagrees with the
// group consensus.
type Violation struct {
	Array    string
	FrameLen int64
	Want     int64
}

func (v *Violation) Error() string {
	return fmt.Sprintf("array %q: frame axis is %d, group consensus is %d", v.Array, v.FrameLen, v.Want)
}

// Violations collects every frame-axis violation found in one pass.
type Violations []*Violation

func (vs Violations) Error() string {
	if len(vs) == 0 {
		return "no axis violations"
	}
	if len(vs) == 1 {
		return vs[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d axis violations:\n", len(vs)))
	for i, v := range vs {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("  - ")
		sb.WriteString(v.Error())
	}
	return sb.String()
}

// Names returns the violating array names in report order.
func (vs Violations) Names() []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Array
	}
	return out
}

// Report is the outcome of validating one group.
type Report struct {
	// FrameLen is the consensus frame-axis length, or -1 when the
	// group has no frame-indexed arrays.
	FrameLen int64

	// Checked counts the frame-indexed arrays examined.
	Checked int

	// Violations lists every array disagreeing with the consensus,
	// never just the first.
	Violations Violations
}

// OK reports whether the group satisfies the axis-consistency
// invariant.
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

// Err returns the violations as an error, or nil when the group is
// consistent.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	return r.Violations
}

// Truncation is one step of a truncate-to-shortest repair plan.
type Truncation struct {
	Array string
	From  int64
	To    int64
}

// Validator checks groups against the axis-consistency invariant.
type Validator struct{}

// New creates a validator.
func New() *Validator {
	return &Validator{}
}

// Validate examines every frame-indexed array in the group and reports
// all of them that disagree with the consensus frame length. The
// consensus is the most common leading-dimension length, with ties
// broken toward the longest. The group is never mutated.
func (v *Validator) Validate(view GroupView) (*Report, error) {
	descrs, err := view.Descriptors()
	if err != nil {
		return nil, err
	}

	report := &Report{FrameLen: -1}
	frames := frameDescrs(descrs)
	report.Checked = len(frames)
	if len(frames) == 0 {
		return report, nil
	}

	report.FrameLen = consensusFrameLen(frames)
	for _, d := range frames {
		if d.Shape[0] != report.FrameLen {
			report.Violations = append(report.Violations, &Violation{
				Array:    d.Name,
				FrameLen: d.Shape[0],
				Want:     report.FrameLen,
			})
		}
	}
	return report, nil
}

// Plan computes the truncate-to-shortest repair for a group: every
// frame-indexed array longer than the minimum frame length is cut to
// it, keeping leading elements. A consistent group yields a nil plan.
func (v *Validator) Plan(view GroupView) ([]Truncation, error) {
	descrs, err := view.Descriptors()
	if err != nil {
		return nil, err
	}

	frames := frameDescrs(descrs)
	if len(frames) == 0 {
		return nil, nil
	}
	min := frames[0].Shape[0]
	for _, d := range frames[1:] {
		if d.Shape[0] < min {
			min = d.Shape[0]
		}
	}

	var plan []Truncation
	for _, d := range frames {
		if d.Shape[0] > min {
			plan = append(plan, Truncation{Array: d.Name, From: d.Shape[0], To: min})
		}
	}
	return plan, nil
}

// frameDescrs filters descriptors to the frame-indexed ones.
func frameDescrs(descrs []ArrayDescr) []ArrayDescr {
	var out []ArrayDescr
	for _, d := range descrs {
		if d.Role == types.AxisFrame && d.Shape.Rank() > 0 {
			out = append(out, d)
		}
	}
	return out
}

// consensusFrameLen picks the modal leading-dimension length, breaking
// ties toward the longest. A group where one array was shortened out
// of step therefore flags the shortened array, not the survivors.
func consensusFrameLen(frames []ArrayDescr) int64 {
	counts := make(map[int64]int)
	for _, d := range frames {
		counts[d.Shape[0]]++
	}

	best := int64(-1)
	bestCount := 0
	for length, count := range counts {
		if count > bestCount || (count == bestCount && length > best) {
			best = length
			bestCount = count
		}
	}
	return best
}
