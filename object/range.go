package object

import "fmt"

// Range represents a numeric iteration range with a live cursor. Field
// widths match the binary codec's range record.
type Range struct {
	*base
	start     uint32
	end       uint32
	step      uint32
	current   uint32
	inclusive bool
	ascending bool
}

func (r *Range) Type() Type {
	return RANGE
}

func (r *Range) Start() uint32     { return r.start }
func (r *Range) End() uint32       { return r.end }
func (r *Range) Step() uint32      { return r.step }
func (r *Range) Current() uint32   { return r.current }
func (r *Range) Inclusive() bool   { return r.inclusive }
func (r *Range) IsAscending() bool { return r.ascending }

func (r *Range) Inspect() string {
	op := ".."
	if r.inclusive {
		op = "..="
	}
	return fmt.Sprintf("range(%d%s%d)", r.start, op, r.end)
}

func (r *Range) String() string {
	return r.Inspect()
}

func (r *Range) Interface() interface{} {
	return nil
}

func (r *Range) Equals(other Object) bool {
	otherRange, ok := other.(*Range)
	if !ok {
		return false
	}
	return *r == *otherRange
}

func NewRange(start, end, step, current uint32, inclusive, ascending bool) *Range {
	return &Range{
		base:      &base{},
		start:     start,
		end:       end,
		step:      step,
		current:   current,
		inclusive: inclusive,
		ascending: ascending,
	}
}
