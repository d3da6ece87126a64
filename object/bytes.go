package object

import (
	"bytes"
	"fmt"
)

// Bytes wraps a byte slice and implements the Object interface. The encoding
// label is advisory metadata carried alongside the raw bytes; the runtime
// never transcodes based on it.
type Bytes struct {
	value    []byte
	encoding string
}

func (b *Bytes) GetAttr(name string) (Object, bool) {
	switch name {
	case "encoding":
		return NewString(b.encoding), true
	}
	return nil, false
}

func (b *Bytes) SetAttr(name string, value Object) error {
	return TypeErrorf("bytes has no attribute %q", name)
}

func (b *Bytes) Type() Type {
	return BYTES
}

func (b *Bytes) Value() []byte {
	return b.value
}

func (b *Bytes) Encoding() string {
	return b.encoding
}

func (b *Bytes) Inspect() string {
	return fmt.Sprintf("bytes(%q)", string(b.value))
}

func (b *Bytes) String() string {
	return string(b.value)
}

func (b *Bytes) Interface() interface{} {
	return b.value
}

func (b *Bytes) Equals(other Object) bool {
	otherBytes, ok := other.(*Bytes)
	if !ok {
		return false
	}
	return bytes.Equal(b.value, otherBytes.value)
}

func (b *Bytes) IsTruthy() bool {
	return len(b.value) > 0
}

func (b *Bytes) Len() int {
	return len(b.value)
}

func NewBytes(value []byte) *Bytes {
	return &Bytes{value: value, encoding: "binary"}
}

func NewBytesWithEncoding(value []byte, encoding string) *Bytes {
	return &Bytes{value: value, encoding: encoding}
}
