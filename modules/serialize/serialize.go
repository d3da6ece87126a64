package serialize

import (
	"context"

	"github.com/tembo-lang/tembo/codec"
	"github.com/tembo-lang/tembo/object"
)

func optionalCallable(name string, args []object.Object, index int) (object.Callable, error) {
	if len(args) <= index {
		return nil, nil
	}
	if args[index] == object.Nil {
		return nil, nil
	}
	fn, err := object.AsCallable(args[index])
	if err != nil {
		return nil, err
	}
	return fn, nil
}

// Serialize encodes a value to its binary form. An optional replacer
// callable transforms each value before encoding.
func Serialize(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.RequireRange("serialize", 1, 2, args); err != nil {
		return nil, err
	}
	replacer, err := optionalCallable("serialize", args, 1)
	if err != nil {
		return nil, err
	}
	data, err := codec.Serialize(ctx, args[0], replacer)
	if err != nil {
		return nil, err
	}
	return object.NewBytes(data), nil
}

// Deserialize decodes a binary buffer back to a value. An optional
// reviver callable transforms each decoded value.
func Deserialize(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.RequireRange("deserialize", 1, 2, args); err != nil {
		return nil, err
	}
	buffer, argErr := object.AsBytes(args[0])
	if argErr != nil {
		return nil, argErr
	}
	reviver, err := optionalCallable("deserialize", args, 1)
	if err != nil {
		return nil, err
	}
	return codec.Deserialize(ctx, buffer.Value(), reviver)
}

// Clone deep-copies a value through the codec.
func Clone(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.Require("clone", 1, args); err != nil {
		return nil, err
	}
	return codec.Clone(ctx, args[0])
}

// Equals compares two values structurally via their encoded forms.
func Equals(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.Require("equals", 2, args); err != nil {
		return nil, err
	}
	return object.NewBool(codec.Equals(ctx, args[0], args[1])), nil
}

// SealedSerialize encodes a value and appends an integrity seal.
func SealedSerialize(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.RequireRange("sealedSerialize", 1, 2, args); err != nil {
		return nil, err
	}
	replacer, err := optionalCallable("sealedSerialize", args, 1)
	if err != nil {
		return nil, err
	}
	data, err := codec.SealedSerialize(ctx, args[0], replacer)
	if err != nil {
		return nil, err
	}
	return object.NewBytes(data), nil
}

// SealedDeserialize verifies the integrity seal and decodes the payload.
func SealedDeserialize(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.RequireRange("sealedDeserialize", 1, 2, args); err != nil {
		return nil, err
	}
	buffer, argErr := object.AsBytes(args[0])
	if argErr != nil {
		return nil, argErr
	}
	reviver, err := optionalCallable("sealedDeserialize", args, 1)
	if err != nil {
		return nil, err
	}
	return codec.SealedDeserialize(ctx, buffer.Value(), reviver)
}

func Module() *object.Module {
	return object.NewBuiltinsModule("serialize", map[string]object.Object{
		"serialize":         object.NewBuiltin("serialize", Serialize),
		"deserialize":       object.NewBuiltin("deserialize", Deserialize),
		"clone":             object.NewBuiltin("clone", Clone),
		"equals":            object.NewBuiltin("equals", Equals),
		"sealedSerialize":   object.NewBuiltin("sealedSerialize", SealedSerialize),
		"sealedDeserialize": object.NewBuiltin("sealedDeserialize", SealedDeserialize),
	})
}
