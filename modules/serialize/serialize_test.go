package serialize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tembo-lang/tembo/object"
)

func TestRoundTripThroughModule(t *testing.T) {
	ctx := context.Background()

	original := object.NewEmptyMap()
	original.Set("name", object.NewString("tembo"))
	original.Set("count", object.NewFloat(3))
	original.Set("tags", object.NewList([]object.Object{object.True, object.Nil}))

	encoded, err := Serialize(ctx, original)
	require.NoError(t, err)
	decoded, err := Deserialize(ctx, encoded)
	require.NoError(t, err)
	assert.True(t, decoded.Equals(original))
}

func TestSerializeArity(t *testing.T) {
	ctx := context.Background()
	_, err := Serialize(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "takes at least 1 argument")

	_, err = Deserialize(ctx, object.NewString("not bytes"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected bytes")
}

func TestCloneAndEquals(t *testing.T) {
	ctx := context.Background()
	list := object.NewList([]object.Object{object.NewFloat(1), object.NewString("a")})

	copied, err := Clone(ctx, list)
	require.NoError(t, err)
	assert.NotSame(t, list, copied)

	equal, err := Equals(ctx, list, copied)
	require.NoError(t, err)
	assert.Equal(t, object.True, equal)

	other := object.NewList([]object.Object{object.NewFloat(2)})
	equal, err = Equals(ctx, list, other)
	require.NoError(t, err)
	assert.Equal(t, object.False, equal)
}

func TestSealedRoundTripAndTamper(t *testing.T) {
	ctx := context.Background()
	value := object.NewString("integrity")

	sealed, err := SealedSerialize(ctx, value)
	require.NoError(t, err)
	decoded, err := SealedDeserialize(ctx, sealed)
	require.NoError(t, err)
	assert.True(t, decoded.Equals(value))

	raw := sealed.(*object.Bytes).Value()
	tampered := make([]byte, len(raw))
	copy(tampered, raw)
	tampered[2] ^= 0xff
	_, err = SealedDeserialize(ctx, object.NewBytes(tampered))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupted or tampered")
}

func TestReplacerAndReviverHooks(t *testing.T) {
	ctx := context.Background()

	doubler := object.NewBuiltin("doubler", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if f, ok := args[1].(*object.Float); ok {
			return object.NewFloat(f.Value() * 2), nil
		}
		return args[1], nil
	})
	list := object.NewList([]object.Object{object.NewFloat(5)})
	encoded, err := Serialize(ctx, list, doubler)
	require.NoError(t, err)

	decoded, err := Deserialize(ctx, encoded)
	require.NoError(t, err)
	element, _ := decoded.(*object.List).Get(0)
	assert.Equal(t, 10.0, element.(*object.Float).Value())
}

func TestModuleExposesOperations(t *testing.T) {
	m := Module()
	for _, name := range []string{"serialize", "deserialize", "clone", "equals", "sealedSerialize", "sealedDeserialize"} {
		_, found := m.GetAttr(name)
		assert.True(t, found, name)
	}
}
