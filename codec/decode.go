package codec

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/tembo-lang/tembo/errz"
	"github.com/tembo-lang/tembo/object"
)

// Deserialize decodes a payload produced by Serialize. Decoding is strict:
// reading past the end of input, trailing bytes after the top-level value,
// and unknown type tags are all errors. The optional reviver is invoked for
// each array element and object property with (key, decodedValue) and its
// return value replaces the decoded value in the parent container.
func Deserialize(ctx context.Context, data []byte, reviver object.Callable) (object.Object, error) {
	d := &decoder{
		ctx:     ctx,
		data:    data,
		reviver: reviver,
		refs:    map[uint32]object.Object{},
	}
	version, err := d.readByte()
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, errz.Errorf(errz.ErrDeserialize,
			"unsupported format version %d", version)
	}
	value, err := d.decode()
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.data) {
		return nil, errz.Errorf(errz.ErrDeserialize,
			"unexpected trailing data (%d bytes)", len(d.data)-d.pos)
	}
	return value, nil
}

type decoder struct {
	ctx     context.Context
	data    []byte
	pos     int
	reviver object.Callable
	refs    map[uint32]object.Object
}

func errTruncated() error {
	return errz.New(errz.ErrDeserialize, "unexpected end of data")
}

func (d *decoder) readByte() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, errTruncated()
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) readBytes(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.data) {
		return nil, errTruncated()
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) readU32() (uint32, error) {
	b, err := d.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *decoder) readU64() (uint64, error) {
	b, err := d.readBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *decoder) readString(max int) (string, error) {
	length, err := d.readU32()
	if err != nil {
		return "", err
	}
	if int(length) > max {
		return "", errz.Errorf(errz.ErrDeserialize,
			"string length %d exceeds maximum", length)
	}
	b, err := d.readBytes(int(length))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) readBool() (bool, error) {
	b, err := d.readByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (d *decoder) decode() (object.Object, error) {
	tag, err := d.readByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagNull:
		return object.Nil, nil
	case tagTrue:
		return object.True, nil
	case tagFalse:
		return object.False, nil
	case tagNumber:
		bits, err := d.readU64()
		if err != nil {
			return nil, err
		}
		return object.NewFloat(math.Float64frombits(bits)), nil
	case tagString:
		s, err := d.readString(maxStringLen)
		if err != nil {
			return nil, err
		}
		return object.NewString(s), nil
	case tagArray:
		return d.decodeList()
	case tagObject:
		return d.decodeMap()
	case tagBuffer:
		return d.decodeBuffer()
	case tagDatetime:
		return d.decodeTime()
	case tagRange:
		return d.decodeRange()
	case tagHole:
		return object.HoleValue, nil
	case tagReference:
		id, err := d.readU32()
		if err != nil {
			return nil, err
		}
		ref, found := d.refs[id]
		if !found {
			return nil, errz.Errorf(errz.ErrDeserialize,
				"undefined back-reference %d", id)
		}
		return ref, nil
	case tagRegex:
		pattern, err := d.readString(maxStringLen)
		if err != nil {
			return nil, err
		}
		flags, err := d.readString(maxStringLen)
		if err != nil {
			return nil, err
		}
		return object.NewRegex(pattern, flags), nil
	default:
		return nil, errz.Errorf(errz.ErrDeserialize,
			"unknown type tag 0x%02x", tag)
	}
}

func (d *decoder) decodeList() (object.Object, error) {
	id, err := d.readU32()
	if err != nil {
		return nil, err
	}
	count, err := d.readU32()
	if err != nil {
		return nil, err
	}
	// Register before decoding children so self-references resolve.
	list := object.NewList(nil)
	d.refs[id] = list
	for i := uint32(0); i < count; i++ {
		value, err := d.decode()
		if err != nil {
			return nil, err
		}
		revived, err := d.applyReviver(object.NewFloat(float64(i)), value)
		if err != nil {
			return nil, err
		}
		list.Append(revived)
	}
	return list, nil
}

func (d *decoder) decodeMap() (object.Object, error) {
	id, err := d.readU32()
	if err != nil {
		return nil, err
	}
	count, err := d.readU32()
	if err != nil {
		return nil, err
	}
	m := object.NewEmptyMap()
	d.refs[id] = m
	for i := uint32(0); i < count; i++ {
		key, err := d.readString(maxStringLen)
		if err != nil {
			return nil, err
		}
		value, err := d.decode()
		if err != nil {
			return nil, err
		}
		revived, err := d.applyReviver(object.NewString(key), value)
		if err != nil {
			return nil, err
		}
		m.Set(key, revived)
	}
	return m, nil
}

func (d *decoder) decodeBuffer() (object.Object, error) {
	encoding, err := d.readString(maxStringLen)
	if err != nil {
		return nil, err
	}
	length, err := d.readU32()
	if err != nil {
		return nil, err
	}
	if int(length) > maxBufferLen {
		return nil, errz.Errorf(errz.ErrDeserialize,
			"buffer length %d exceeds maximum", length)
	}
	b, err := d.readBytes(int(length))
	if err != nil {
		return nil, err
	}
	data := make([]byte, len(b))
	copy(data, b)
	return object.NewBytesWithEncoding(data, encoding), nil
}

func (d *decoder) decodeTime() (object.Object, error) {
	epochNanos, err := d.readU64()
	if err != nil {
		return nil, err
	}
	// Calendar fields are stored verbatim on the wire; the epoch and zone
	// offset fully determine them, so they are consumed but not re-derived.
	if _, err := d.readU32(); err != nil { // year
		return nil, err
	}
	if _, err := d.readBytes(5); err != nil { // month, day, hour, minute, second
		return nil, err
	}
	if _, err := d.readU32(); err != nil { // sub-second fraction
		return nil, err
	}
	precision, err := d.readByte()
	if err != nil {
		return nil, err
	}
	offset, err := d.readU32()
	if err != nil {
		return nil, err
	}
	utc, err := d.readBool()
	if err != nil {
		return nil, err
	}
	literal, err := d.readString(maxStringLen)
	if err != nil {
		return nil, err
	}
	loc := time.FixedZone("", int(int32(offset)))
	if utc {
		loc = time.UTC
	}
	value := time.Unix(0, int64(epochNanos)).In(loc)
	return object.NewTimeWithMeta(value, precision, utc, literal), nil
}

func (d *decoder) decodeRange() (object.Object, error) {
	var fields [4]uint32
	for i := range fields {
		v, err := d.readU32()
		if err != nil {
			return nil, err
		}
		fields[i] = v
	}
	inclusive, err := d.readBool()
	if err != nil {
		return nil, err
	}
	ascending, err := d.readBool()
	if err != nil {
		return nil, err
	}
	return object.NewRange(fields[0], fields[1], fields[2], fields[3], inclusive, ascending), nil
}

func (d *decoder) applyReviver(key, value object.Object) (object.Object, error) {
	if d.reviver == nil {
		return value, nil
	}
	revived, err := d.reviver.Call(d.ctx, key, value)
	if err != nil {
		return nil, errz.Errorf(errz.ErrDeserialize, "reviver failed: %s", err).WithCause(err)
	}
	if revived == nil {
		return object.Nil, nil
	}
	return revived, nil
}
