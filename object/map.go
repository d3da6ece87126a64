package object

import (
	"sort"
	"strings"
)

// Map wraps an ordered string-keyed map of objects and implements the
// Object interface. Insertion order is preserved; the binary codec relies
// on this when it enumerates properties in stored order.
type Map struct {
	items map[string]Object
	keys  []string
}

func (m *Map) GetAttr(name string) (Object, bool) {
	value, found := m.items[name]
	return value, found
}

func (m *Map) SetAttr(name string, value Object) error {
	m.Set(name, value)
	return nil
}

func (m *Map) Type() Type {
	return MAP
}

func (m *Map) Inspect() string {
	var out strings.Builder
	out.WriteString("{")
	for i, key := range m.keys {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(key)
		out.WriteString(": ")
		out.WriteString(m.items[key].Inspect())
	}
	out.WriteString("}")
	return out.String()
}

func (m *Map) String() string {
	return m.Inspect()
}

func (m *Map) Interface() interface{} {
	result := make(map[string]interface{}, len(m.items))
	for key, value := range m.items {
		result[key] = value.Interface()
	}
	return result
}

func (m *Map) Equals(other Object) bool {
	otherMap, ok := other.(*Map)
	if !ok {
		return false
	}
	if len(m.items) != len(otherMap.items) {
		return false
	}
	for key, value := range m.items {
		otherValue, found := otherMap.items[key]
		if !found || !value.Equals(otherValue) {
			return false
		}
	}
	return true
}

func (m *Map) IsTruthy() bool {
	return len(m.items) > 0
}

func (m *Map) Len() int {
	return len(m.items)
}

// Keys returns the map's keys in insertion order.
func (m *Map) Keys() []string {
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys
}

func (m *Map) Get(key string) (Object, bool) {
	value, found := m.items[key]
	return value, found
}

// GetOr returns the value for key, or the given default if absent.
func (m *Map) GetOr(key string, def Object) Object {
	if value, found := m.items[key]; found {
		return value
	}
	return def
}

func (m *Map) Set(key string, value Object) {
	if _, exists := m.items[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.items[key] = value
}

func (m *Map) Delete(key string) {
	if _, exists := m.items[key]; !exists {
		return
	}
	delete(m.items, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Each calls fn for each key/value pair in insertion order.
func (m *Map) Each(fn func(key string, value Object)) {
	for _, key := range m.keys {
		fn(key, m.items[key])
	}
}

func NewEmptyMap() *Map {
	return &Map{items: map[string]Object{}}
}

// NewMap creates a Map from a Go map. Key order is not specified; use Set
// on an empty map when insertion order matters.
func NewMap(items map[string]Object) *Map {
	m := NewEmptyMap()
	for _, key := range sortedKeys(items) {
		m.Set(key, items[key])
	}
	return m
}

func sortedKeys(items map[string]Object) []string {
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
