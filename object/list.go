package object

import (
	"strings"
)

// List wraps an ordered slice of objects and implements the Object interface.
type List struct {
	items []Object
}

func (ls *List) GetAttr(name string) (Object, bool) {
	return nil, false
}

func (ls *List) SetAttr(name string, value Object) error {
	return TypeErrorf("list has no attribute %q", name)
}

func (ls *List) Type() Type {
	return LIST
}

func (ls *List) Value() []Object {
	return ls.items
}

func (ls *List) Inspect() string {
	var out strings.Builder
	out.WriteString("[")
	for i, item := range ls.items {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(item.Inspect())
	}
	out.WriteString("]")
	return out.String()
}

func (ls *List) String() string {
	return ls.Inspect()
}

func (ls *List) Interface() interface{} {
	items := make([]interface{}, 0, len(ls.items))
	for _, item := range ls.items {
		items = append(items, item.Interface())
	}
	return items
}

func (ls *List) Equals(other Object) bool {
	otherList, ok := other.(*List)
	if !ok {
		return false
	}
	if len(ls.items) != len(otherList.items) {
		return false
	}
	for i, item := range ls.items {
		if !item.Equals(otherList.items[i]) {
			return false
		}
	}
	return true
}

func (ls *List) IsTruthy() bool {
	return len(ls.items) > 0
}

func (ls *List) Len() int {
	return len(ls.items)
}

func (ls *List) Get(index int) (Object, bool) {
	if index < 0 || index >= len(ls.items) {
		return nil, false
	}
	return ls.items[index], true
}

func (ls *List) Set(index int, value Object) error {
	if index < 0 || index >= len(ls.items) {
		return ValueErrorf("list index out of range: %d", index)
	}
	ls.items[index] = value
	return nil
}

func (ls *List) Append(value Object) {
	ls.items = append(ls.items, value)
}

func NewList(items []Object) *List {
	return &List{items: items}
}
