package codec

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tembo-lang/tembo/errz"
	"github.com/tembo-lang/tembo/object"
)

func roundTrip(t *testing.T, value object.Object) object.Object {
	t.Helper()
	ctx := context.Background()
	data, err := Serialize(ctx, value, nil)
	require.NoError(t, err)
	decoded, err := Deserialize(ctx, data, nil)
	require.NoError(t, err)
	return decoded
}

func TestRoundTripScalars(t *testing.T) {
	tests := []object.Object{
		object.Nil,
		object.True,
		object.False,
		object.NewFloat(0),
		object.NewFloat(42.5),
		object.NewFloat(-1e300),
		object.NewFloat(math.Inf(1)),
		object.NewFloat(math.Inf(-1)),
		object.NewString(""),
		object.NewString("hello"),
		object.NewString("héllo wörld é世界"),
		object.NewBytes([]byte{0, 1, 2, 255}),
		object.NewRegex("a+b*", "gi"),
		object.HoleValue,
		object.NewRange(0, 10, 1, 3, true, true),
	}
	for _, value := range tests {
		decoded := roundTrip(t, value)
		assert.True(t, value.Equals(decoded), "round trip mismatch for %s", value.Inspect())
	}
}

func TestRoundTripSignedZero(t *testing.T) {
	decoded := roundTrip(t, object.NewFloat(math.Copysign(0, -1)))
	f, ok := decoded.(*object.Float)
	require.True(t, ok)
	assert.Equal(t, uint64(1)<<63, math.Float64bits(f.Value()))
}

func TestRoundTripNaNPayload(t *testing.T) {
	bits := uint64(0x7ff8dead00000001)
	decoded := roundTrip(t, object.NewFloat(math.Float64frombits(bits)))
	f, ok := decoded.(*object.Float)
	require.True(t, ok)
	assert.Equal(t, bits, math.Float64bits(f.Value()))
}

func TestRoundTripNested(t *testing.T) {
	inner := object.NewEmptyMap()
	inner.Set("name", object.NewString("deep"))
	inner.Set("values", object.NewList([]object.Object{
		object.NewFloat(1), object.NewFloat(2), object.Nil,
	}))
	value := object.NewList([]object.Object{
		inner,
		object.NewList([]object.Object{object.True, object.NewBytes([]byte("xyz"))}),
	})
	decoded := roundTrip(t, value)
	assert.True(t, value.Equals(decoded))
}

func TestMapOrderPreserved(t *testing.T) {
	m := object.NewEmptyMap()
	m.Set("zebra", object.NewFloat(1))
	m.Set("apple", object.NewFloat(2))
	m.Set("mango", object.NewFloat(3))
	decoded := roundTrip(t, m)
	decodedMap, ok := decoded.(*object.Map)
	require.True(t, ok)
	assert.Equal(t, []string{"zebra", "apple", "mango"}, decodedMap.Keys())
}

func TestCycleSafety(t *testing.T) {
	ctx := context.Background()
	list := object.NewList([]object.Object{object.Nil})
	require.NoError(t, list.Set(0, list))

	data, err := Serialize(ctx, list, nil)
	require.NoError(t, err)

	decoded, err := Deserialize(ctx, data, nil)
	require.NoError(t, err)
	decodedList, ok := decoded.(*object.List)
	require.True(t, ok)
	first, ok := decodedList.Get(0)
	require.True(t, ok)
	// The self-reference must be reconstructed as the same object.
	assert.Same(t, decodedList, first)
}

func TestSharedSubstructure(t *testing.T) {
	shared := object.NewEmptyMap()
	shared.Set("k", object.NewFloat(7))
	value := object.NewList([]object.Object{shared, shared})

	decoded := roundTrip(t, value)
	decodedList := decoded.(*object.List)
	a, _ := decodedList.Get(0)
	b, _ := decodedList.Get(1)
	assert.Same(t, a, b)
}

func TestMutualReference(t *testing.T) {
	a := object.NewEmptyMap()
	b := object.NewEmptyMap()
	a.Set("other", b)
	b.Set("other", a)

	decoded := roundTrip(t, a)
	decodedA := decoded.(*object.Map)
	decodedB, found := decodedA.Get("other")
	require.True(t, found)
	back, found := decodedB.(*object.Map).Get("other")
	require.True(t, found)
	assert.Same(t, decodedA, back)
}

func TestUnsupportedTypeFails(t *testing.T) {
	ctx := context.Background()
	fn := object.NewBuiltin("f", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		return object.Nil, nil
	})
	_, err := Serialize(ctx, fn, nil)
	require.Error(t, err)
	assert.True(t, errz.IsKind(err, errz.ErrSerialize))
	assert.Contains(t, err.Error(), "builtin")

	// Nested inside a list it must also fail.
	_, err = Serialize(ctx, object.NewList([]object.Object{fn}), nil)
	require.Error(t, err)
}

func TestFunctionPropertiesSkipped(t *testing.T) {
	ctx := context.Background()
	m := object.NewEmptyMap()
	m.Set("x", object.NewFloat(1))
	m.Set("handler", object.NewBuiltin("h", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		return object.Nil, nil
	}))
	m.Set("y", object.NewFloat(2))

	data, err := Serialize(ctx, m, nil)
	require.NoError(t, err)
	decoded, err := Deserialize(ctx, data, nil)
	require.NoError(t, err)
	decodedMap := decoded.(*object.Map)
	assert.Equal(t, []string{"x", "y"}, decodedMap.Keys())
}

func TestTruncationDetection(t *testing.T) {
	ctx := context.Background()
	m := object.NewEmptyMap()
	m.Set("key", object.NewString("value"))
	data, err := Serialize(ctx, object.NewList([]object.Object{
		m, object.NewFloat(3.14), object.NewString("tail"),
	}), nil)
	require.NoError(t, err)

	for cut := 1; cut < len(data); cut++ {
		_, err := Deserialize(ctx, data[:len(data)-cut], nil)
		require.Error(t, err, "truncating %d bytes must fail", cut)
		assert.True(t, errz.IsKind(err, errz.ErrDeserialize))
	}
}

func TestTrailingDataRejected(t *testing.T) {
	ctx := context.Background()
	data, err := Serialize(ctx, object.NewFloat(1), nil)
	require.NoError(t, err)
	_, err = Deserialize(ctx, append(data, 0x00), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing")
}

func TestUnknownTagRejected(t *testing.T) {
	_, err := Deserialize(context.Background(), []byte{Version, 0x7f}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type tag")
}

func TestBadVersionRejected(t *testing.T) {
	_, err := Deserialize(context.Background(), []byte{99, tagNull}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestWireFormatGolden(t *testing.T) {
	ctx := context.Background()

	data, err := Serialize(ctx, object.Nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{Version, tagNull}, data)

	data, err = Serialize(ctx, object.True, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{Version, tagTrue}, data)

	data, err = Serialize(ctx, object.NewString("ab"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{Version, tagString, 2, 0, 0, 0, 'a', 'b'}, data)

	data, err = Serialize(ctx, object.NewList([]object.Object{object.False}), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		Version, tagArray,
		0, 0, 0, 0, // ref id
		1, 0, 0, 0, // element count
		tagFalse,
	}, data)
}

func TestCloneAndEquals(t *testing.T) {
	ctx := context.Background()
	m := object.NewEmptyMap()
	m.Set("a", object.NewFloat(1))
	m.Set("b", object.NewList([]object.Object{object.NewString("x")}))

	cloned, err := Clone(ctx, m)
	require.NoError(t, err)
	assert.NotSame(t, m, cloned)
	assert.True(t, Equals(ctx, m, cloned))

	other := object.NewEmptyMap()
	other.Set("a", object.NewFloat(1))
	other.Set("b", object.NewList([]object.Object{object.NewString("y")}))
	assert.False(t, Equals(ctx, m, other))

	// Serialization failure yields not-equal rather than an error.
	fn := object.NewBuiltin("f", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		return object.Nil, nil
	})
	assert.False(t, Equals(ctx, fn, fn))
}

func TestReplacer(t *testing.T) {
	ctx := context.Background()
	replacer := object.NewBuiltin("replacer", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		key := args[0]
		value := args[1]
		if s, ok := key.(*object.String); ok && s.Value() == "secret" {
			return nil, nil // suppress: encoded as null
		}
		if f, ok := value.(*object.Float); ok {
			return object.NewFloat(f.Value() * 2), nil
		}
		return value, nil
	})

	m := object.NewEmptyMap()
	m.Set("n", object.NewFloat(21))
	m.Set("secret", object.NewString("hunter2"))

	data, err := Serialize(ctx, m, replacer)
	require.NoError(t, err)
	decoded, err := Deserialize(ctx, data, nil)
	require.NoError(t, err)
	decodedMap := decoded.(*object.Map)

	n, _ := decodedMap.Get("n")
	assert.Equal(t, float64(42), n.(*object.Float).Value())
	secret, _ := decodedMap.Get("secret")
	assert.Equal(t, object.Nil, secret)
}

func TestReviver(t *testing.T) {
	ctx := context.Background()
	data, err := Serialize(ctx, object.NewList([]object.Object{
		object.NewFloat(1), object.NewFloat(2),
	}), nil)
	require.NoError(t, err)

	reviver := object.NewBuiltin("reviver", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if f, ok := args[1].(*object.Float); ok {
			return object.NewFloat(f.Value() + 10), nil
		}
		return args[1], nil
	})
	decoded, err := Deserialize(ctx, data, reviver)
	require.NoError(t, err)
	list := decoded.(*object.List)
	first, _ := list.Get(0)
	second, _ := list.Get(1)
	assert.Equal(t, float64(11), first.(*object.Float).Value())
	assert.Equal(t, float64(12), second.(*object.Float).Value())
}

func TestHookErrorAbortsOperation(t *testing.T) {
	ctx := context.Background()
	boom := object.NewBuiltin("boom", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		return nil, errz.New(errz.ErrRuntime, "hook exploded")
	})

	_, err := Serialize(ctx, object.NewList([]object.Object{object.NewFloat(1)}), boom)
	require.Error(t, err)
	assert.True(t, errz.IsKind(err, errz.ErrSerialize))

	data, err := Serialize(ctx, object.NewList([]object.Object{object.NewFloat(1)}), nil)
	require.NoError(t, err)
	_, err = Deserialize(ctx, data, boom)
	require.Error(t, err)
	assert.True(t, errz.IsKind(err, errz.ErrDeserialize))
}

func TestSealedRoundTrip(t *testing.T) {
	ctx := context.Background()
	value := object.NewString("sealed payload")
	data, err := SealedSerialize(ctx, value, nil)
	require.NoError(t, err)

	decoded, err := SealedDeserialize(ctx, data, nil)
	require.NoError(t, err)
	assert.True(t, value.Equals(decoded))
}

func TestSealedTamperDetection(t *testing.T) {
	ctx := context.Background()
	data, err := SealedSerialize(ctx, object.NewString("payload"), nil)
	require.NoError(t, err)

	for _, idx := range []int{1, len(data) / 2, len(data) - 1} {
		tampered := make([]byte, len(data))
		copy(tampered, data)
		tampered[idx] ^= 0xff
		_, err := SealedDeserialize(ctx, tampered, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "corrupted or tampered data")
	}
}

func mustParseTime(t *testing.T) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, "2023-06-15T10:30:00+02:00")
	require.NoError(t, err)
	return parsed
}

func TestRoundTripTime(t *testing.T) {
	decoded := roundTrip(t, object.NewTimeWithMeta(
		mustParseTime(t), object.PrecisionSecond, false, "2023-06-15 10:30:00+02:00"))
	tm, ok := decoded.(*object.Time)
	require.True(t, ok)
	assert.Equal(t, object.PrecisionSecond, tm.Precision())
	assert.False(t, tm.IsUTC())
	assert.Equal(t, "2023-06-15 10:30:00+02:00", tm.Literal())
}
