package object

import (
	"fmt"
	"time"
)

// Time precision levels, in increasing granularity.
const (
	PrecisionDate uint8 = iota
	PrecisionMinute
	PrecisionSecond
	PrecisionNano
)

// Time wraps time.Time together with the metadata the binary codec carries
// verbatim: declared precision, UTC flag and the literal source text the
// value was parsed from (empty when constructed programmatically).
type Time struct {
	*base
	value     time.Time
	precision uint8
	utc       bool
	literal   string
}

func (t *Time) Type() Type {
	return TIME
}

func (t *Time) Value() time.Time {
	return t.value
}

func (t *Time) Precision() uint8 {
	return t.precision
}

func (t *Time) IsUTC() bool {
	return t.utc
}

func (t *Time) Literal() string {
	return t.literal
}

func (t *Time) Inspect() string {
	return fmt.Sprintf("time(%q)", t.value.Format(time.RFC3339Nano))
}

func (t *Time) String() string {
	return t.value.Format(time.RFC3339Nano)
}

func (t *Time) Interface() interface{} {
	return t.value
}

func (t *Time) Equals(other Object) bool {
	otherTime, ok := other.(*Time)
	if !ok {
		return false
	}
	return t.value.Equal(otherTime.value) &&
		t.precision == otherTime.precision &&
		t.utc == otherTime.utc
}

func NewTime(value time.Time) *Time {
	return &Time{value: value, precision: PrecisionNano, utc: value.Location() == time.UTC}
}

func NewTimeWithMeta(value time.Time, precision uint8, utc bool, literal string) *Time {
	return &Time{value: value, precision: precision, utc: utc, literal: literal}
}
