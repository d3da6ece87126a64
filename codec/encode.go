package codec

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"

	"github.com/tembo-lang/tembo/errz"
	"github.com/tembo-lang/tembo/object"
)

// Serialize encodes a value graph into the versioned binary format. The
// optional replacer is invoked for each array element and object property
// with (key, value); its return value is encoded in place of the original,
// and a nil return suppresses the value (null is written instead). A
// replacer error aborts the whole operation.
func Serialize(ctx context.Context, value object.Object, replacer object.Callable) ([]byte, error) {
	e := &encoder{
		ctx:      ctx,
		replacer: replacer,
		refs:     map[object.Object]uint32{},
	}
	e.buf.WriteByte(Version)
	if err := e.encode(value); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

type encoder struct {
	ctx      context.Context
	buf      bytes.Buffer
	replacer object.Callable
	refs     map[object.Object]uint32
	nextRef  uint32
}

func (e *encoder) writeU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) writeU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) writeString(s string) {
	e.writeU32(uint32(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) writeBool(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

func (e *encoder) encode(value object.Object) error {
	switch value := value.(type) {
	case *object.NilType, nil:
		e.buf.WriteByte(tagNull)
	case *object.Bool:
		if value.Value() {
			e.buf.WriteByte(tagTrue)
		} else {
			e.buf.WriteByte(tagFalse)
		}
	case *object.Float:
		// Bit-for-bit, preserving NaN payloads and signed zero.
		e.buf.WriteByte(tagNumber)
		e.writeU64(math.Float64bits(value.Value()))
	case *object.String:
		e.buf.WriteByte(tagString)
		e.writeString(value.Value())
	case *object.List:
		return e.encodeList(value)
	case *object.Map:
		return e.encodeMap(value)
	case *object.Bytes:
		e.buf.WriteByte(tagBuffer)
		e.writeString(value.Encoding())
		e.writeU32(uint32(value.Len()))
		e.buf.Write(value.Value())
	case *object.Time:
		e.encodeTime(value)
	case *object.Range:
		e.buf.WriteByte(tagRange)
		e.writeU32(value.Start())
		e.writeU32(value.End())
		e.writeU32(value.Step())
		e.writeU32(value.Current())
		e.writeBool(value.Inclusive())
		e.writeBool(value.IsAscending())
	case *object.Hole:
		e.buf.WriteByte(tagHole)
	case *object.Regex:
		e.buf.WriteByte(tagRegex)
		e.writeString(value.Pattern())
		e.writeString(value.Flags())
	default:
		return errz.Errorf(errz.ErrSerialize,
			"cannot serialize value of type %s", value.Type())
	}
	return nil
}

func (e *encoder) encodeList(list *object.List) error {
	if id, seen := e.refs[list]; seen {
		e.buf.WriteByte(tagReference)
		e.writeU32(id)
		return nil
	}
	// Register before recursing so self-references resolve.
	id := e.nextRef
	e.nextRef++
	e.refs[list] = id

	e.buf.WriteByte(tagArray)
	e.writeU32(id)
	items := list.Value()
	e.writeU32(uint32(len(items)))
	for i, item := range items {
		replaced, err := e.applyReplacer(object.NewFloat(float64(i)), item)
		if err != nil {
			return err
		}
		if err := e.encode(replaced); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) encodeMap(m *object.Map) error {
	if id, seen := e.refs[m]; seen {
		e.buf.WriteByte(tagReference)
		e.writeU32(id)
		return nil
	}
	id := e.nextRef
	e.nextRef++
	e.refs[m] = id

	// Function-like properties are silently skipped; the child count is
	// written post-filtering.
	var keys []string
	var values []object.Object
	var walkErr error
	m.Each(func(key string, value object.Object) {
		if walkErr != nil || skipProperty(value) {
			return
		}
		replaced, err := e.applyReplacer(object.NewString(key), value)
		if err != nil {
			walkErr = err
			return
		}
		keys = append(keys, key)
		values = append(values, replaced)
	})
	if walkErr != nil {
		return walkErr
	}

	e.buf.WriteByte(tagObject)
	e.writeU32(id)
	e.writeU32(uint32(len(keys)))
	for i, key := range keys {
		e.writeString(key)
		if err := e.encode(values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) encodeTime(t *object.Time) {
	value := t.Value()
	_, offset := value.Zone()
	e.buf.WriteByte(tagDatetime)
	e.writeU64(uint64(value.UnixNano()))
	e.writeU32(uint32(value.Year()))
	e.buf.WriteByte(byte(value.Month()))
	e.buf.WriteByte(byte(value.Day()))
	e.buf.WriteByte(byte(value.Hour()))
	e.buf.WriteByte(byte(value.Minute()))
	e.buf.WriteByte(byte(value.Second()))
	e.writeU32(uint32(value.Nanosecond()))
	e.buf.WriteByte(t.Precision())
	e.writeU32(uint32(offset))
	e.writeBool(t.IsUTC())
	e.writeString(t.Literal())
}

// skipProperty reports whether an object property should be silently
// omitted from the encoding rather than rejected.
func skipProperty(value object.Object) bool {
	switch value.(type) {
	case *object.Builtin, *object.Module:
		return true
	}
	_, callable := value.(object.Callable)
	return callable
}

func (e *encoder) applyReplacer(key, value object.Object) (object.Object, error) {
	if e.replacer == nil {
		return value, nil
	}
	replaced, err := e.replacer.Call(e.ctx, key, value)
	if err != nil {
		return nil, errz.Errorf(errz.ErrSerialize, "replacer failed: %s", err).WithCause(err)
	}
	if replaced == nil {
		return object.Nil, nil
	}
	return replaced, nil
}
