package sampler

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring"

	rerr "github.com/reparc/reparc/internal/errors"
)

// SpecError reports a malformed index spec with location information.
type SpecError struct {
	Message  string
	Position int
	Token    Token
}

func (e *SpecError) Error() string {
	return fmt.Sprintf("index spec error at position %d: %s (got %q)", e.Position, e.Message, e.Token.Literal)
}

// term is one comma-separated clause of an index spec: either a single
// frame index or a [start]:[stop][:step] range with Python slice
// semantics over the frame axis.
type term struct {
	start, stop, step int64
	hasStart, hasStop bool
	hasStep           bool
	point             bool
}

// Plan is a parsed frame selection. Open-ended clauses resolve against
// the frame extent when Frames is called, so one plan can drive
// selections over groups of different lengths.
type Plan struct {
	terms []term
}

// Parse parses an index spec such as "0:100:2,500,900:". Clauses are
// single indices or ranges with an optional step; indices are
// non-negative, ranges half-open, and steps at least one.
func Parse(spec string) (*Plan, error) {
	p := &parser{lexer: NewLexer(spec)}
	p.nextToken()
	p.nextToken()
	return p.parsePlan()
}

// parser consumes tokens with one token of lookahead.
type parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
}

func (p *parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *parser) errorf(format string, args ...any) *SpecError {
	return &SpecError{
		Message:  fmt.Sprintf(format, args...),
		Position: p.curToken.Pos,
		Token:    p.curToken,
	}
}

func (p *parser) parsePlan() (*Plan, error) {
	if p.curTokenIs(TokenEOF) {
		return nil, p.errorf("empty index spec")
	}

	plan := &Plan{}
	for {
		t, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		plan.terms = append(plan.terms, t)

		switch p.curToken.Type {
		case TokenComma:
			p.nextToken()
		case TokenEOF:
			return plan, nil
		default:
			return nil, p.errorf("expected ',' or end of spec")
		}
	}
}

func (p *parser) parseTerm() (term, error) {
	t := term{step: 1}

	if p.curTokenIs(TokenNumber) {
		v, err := p.parseNumber()
		if err != nil {
			return term{}, err
		}
		t.start = v
		t.hasStart = true
		p.nextToken()
	}

	if !p.curTokenIs(TokenColon) {
		if !t.hasStart {
			return term{}, p.errorf("expected frame index")
		}
		t.point = true
		return t, nil
	}
	p.nextToken()

	if p.curTokenIs(TokenNumber) {
		v, err := p.parseNumber()
		if err != nil {
			return term{}, err
		}
		t.stop = v
		t.hasStop = true
		p.nextToken()
	}

	if p.curTokenIs(TokenColon) {
		p.nextToken()
		if p.curTokenIs(TokenNumber) {
			v, err := p.parseNumber()
			if err != nil {
				return term{}, err
			}
			if v < 1 {
				return term{}, p.errorf("step must be positive")
			}
			t.step = v
			t.hasStep = true
			p.nextToken()
		}
	}

	return t, nil
}

func (p *parser) parseNumber() (int64, error) {
	v, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
	if err != nil {
		return 0, p.errorf("bad number")
	}
	return v, nil
}

// Frames materializes the plan against a frame extent of n, returning
// the selected indices sorted ascending with duplicates removed.
// Clauses reaching past the extent are clipped, never an error, so a
// spec written for a long trajectory still selects from a short one.
func (p *Plan) Frames(n int64) ([]int64, error) {
	if n < 0 {
		return nil, rerr.NewValidationError(rerr.CodeRangeError,
			fmt.Sprintf("negative frame extent %d", n))
	}
	if n > math.MaxUint32 {
		return nil, rerr.NewValidationError(rerr.CodeRangeError,
			fmt.Sprintf("frame extent %d exceeds the 32-bit plan limit", n))
	}

	bm := roaring.New()
	for _, t := range p.terms {
		if t.point {
			if t.start < n {
				bm.Add(uint32(t.start))
			}
			continue
		}

		start := int64(0)
		if t.hasStart {
			start = t.start
		}
		stop := n
		if t.hasStop && t.stop < n {
			stop = t.stop
		}
		if start >= stop {
			continue
		}

		if t.step == 1 {
			bm.AddRange(uint64(start), uint64(stop))
			continue
		}
		for i := start; i < stop; i += t.step {
			bm.Add(uint32(i))
		}
	}

	out := make([]int64, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, int64(it.Next()))
	}
	return out, nil
}

// Count returns how many frames the plan selects from an extent of n.
func (p *Plan) Count(n int64) (int64, error) {
	frames, err := p.Frames(n)
	if err != nil {
		return 0, err
	}
	return int64(len(frames)), nil
}

// String renders the plan back to index-spec text.
func (p *Plan) String() string {
	parts := make([]string, 0, len(p.terms))
	for _, t := range p.terms {
		if t.point {
			parts = append(parts, strconv.FormatInt(t.start, 10))
			continue
		}
		var sb strings.Builder
		if t.hasStart {
			sb.WriteString(strconv.FormatInt(t.start, 10))
		}
		sb.WriteByte(':')
		if t.hasStop {
			sb.WriteString(strconv.FormatInt(t.stop, 10))
		}
		if t.hasStep {
			sb.WriteByte(':')
			sb.WriteString(strconv.FormatInt(t.step, 10))
		}
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, ",")
}
