package object

import "fmt"

// Regex holds a regular expression pattern and its flag string. The pattern
// is carried uncompiled; compilation is the embedding evaluator's concern.
type Regex struct {
	*base
	pattern string
	flags   string
}

func (r *Regex) Type() Type {
	return REGEX
}

func (r *Regex) Pattern() string {
	return r.pattern
}

func (r *Regex) Flags() string {
	return r.flags
}

func (r *Regex) Inspect() string {
	return fmt.Sprintf("regex(/%s/%s)", r.pattern, r.flags)
}

func (r *Regex) String() string {
	return r.Inspect()
}

func (r *Regex) Interface() interface{} {
	return r.pattern
}

func (r *Regex) Equals(other Object) bool {
	otherRegex, ok := other.(*Regex)
	if !ok {
		return false
	}
	return r.pattern == otherRegex.pattern && r.flags == otherRegex.flags
}

func NewRegex(pattern, flags string) *Regex {
	return &Regex{base: &base{}, pattern: pattern, flags: flags}
}
