// Package codec implements the versioned binary serialization format used
// for cross-thread message payloads, deep cloning, structural equality and
// integrity-sealed persistence.
//
// The wire format is the one binary-compatibility-sensitive surface of the
// runtime: a 1-byte format version followed by tagged records, little-endian
// throughout. Arrays and objects are assigned pre-order reference ids so
// cyclic and shared structures round-trip faithfully.
package codec

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/tembo-lang/tembo/errz"
	"github.com/tembo-lang/tembo/object"
)

// Version is the current format version, written as the first byte of
// every serialized payload.
const Version = 1

// Record type tags.
const (
	tagNull      byte = 0x00
	tagTrue      byte = 0x01
	tagFalse     byte = 0x02
	tagNumber    byte = 0x03
	tagString    byte = 0x04
	tagArray     byte = 0x05
	tagObject    byte = 0x06
	tagBuffer    byte = 0x07
	tagDatetime  byte = 0x08
	tagRange     byte = 0x09
	tagHole      byte = 0x0A
	tagReference byte = 0x0B
	tagRegex     byte = 0x0C
)

// Decode-side size limits, bounding memory on untrusted input.
const (
	maxStringLen = 10 * 1024 * 1024
	maxBufferLen = 100 * 1024 * 1024
)

const sealLen = sha256.Size

// Clone deep-copies a value by serializing and deserializing it with no
// hooks, sharing the intermediate buffer.
func Clone(ctx context.Context, value object.Object) (object.Object, error) {
	data, err := Serialize(ctx, value, nil)
	if err != nil {
		return nil, err
	}
	return Deserialize(ctx, data, nil)
}

// Equals reports structural equality: both values are serialized hookless
// and the resulting bytes compared. A serialization failure on either side
// yields false rather than an error.
func Equals(ctx context.Context, a, b object.Object) bool {
	aData, err := Serialize(ctx, a, nil)
	if err != nil {
		return false
	}
	bData, err := Serialize(ctx, b, nil)
	if err != nil {
		return false
	}
	return bytes.Equal(aData, bData)
}

// SealedSerialize appends a SHA-256 content hash to the serialized payload.
func SealedSerialize(ctx context.Context, value object.Object, replacer object.Callable) ([]byte, error) {
	data, err := Serialize(ctx, value, replacer)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	return append(data, sum[:]...), nil
}

// SealedDeserialize splits off and verifies the trailing content hash with
// a constant-time comparison before parsing. A hash mismatch is reported as
// corruption, distinct from a format error.
func SealedDeserialize(ctx context.Context, data []byte, reviver object.Callable) (object.Object, error) {
	if len(data) < sealLen+1 {
		return nil, errz.New(errz.ErrDeserialize, "unexpected end of data")
	}
	payload := data[:len(data)-sealLen]
	seal := data[len(data)-sealLen:]
	sum := sha256.Sum256(payload)
	if subtle.ConstantTimeCompare(seal, sum[:]) != 1 {
		return nil, errz.New(errz.ErrDeserialize, "corrupted or tampered data")
	}
	return Deserialize(ctx, payload, reviver)
}
