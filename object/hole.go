package object

// HoleValue marks an absent element in a sparse list. It round-trips
// through the binary codec but otherwise behaves like nil.
var HoleValue = &Hole{}

type Hole struct{}

func (h *Hole) GetAttr(name string) (Object, bool) {
	return nil, false
}

func (h *Hole) SetAttr(name string, value Object) error {
	return TypeErrorf("hole has no attribute %q", name)
}

func (h *Hole) Type() Type {
	return HOLE
}

func (h *Hole) Inspect() string {
	return "hole"
}

func (h *Hole) String() string {
	return "hole"
}

func (h *Hole) Interface() interface{} {
	return nil
}

func (h *Hole) Equals(other Object) bool {
	_, ok := other.(*Hole)
	return ok
}

func (h *Hole) IsTruthy() bool {
	return false
}
