package mapindex

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Codec encodes index values to bytes. Encodings must preserve order: for
// any a, b the byte comparison of the encodings agrees with Compare.
type Codec[K comparable] interface {
	// Append appends the encoding of v to dst.
	Append(dst []byte, v K) []byte
	// Decode decodes a complete encoding.
	Decode(b []byte) (K, error)
	// Compare orders two values.
	Compare(a, b K) int
	// Size is the stored size of v in bytes.
	Size(v K) int
	// Name identifies the codec in persisted headers.
	Name() string
}

// IntCodec encodes int64 values as big-endian with the sign bit flipped.
type IntCodec struct{}

func (IntCodec) Append(dst []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(dst, uint64(v)^(1<<63))
}

func (IntCodec) Decode(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: int key of %d bytes", ErrCorrupt, len(b))
	}
	return int64(binary.BigEndian.Uint64(b) ^ (1 << 63)), nil
}

func (IntCodec) Compare(a, b int64) int { return cmp.Compare(a, b) }
func (IntCodec) Size(int64) int         { return 8 }
func (IntCodec) Name() string           { return "int" }

// StringCodec stores strings as their raw bytes.
type StringCodec struct{}

func (StringCodec) Append(dst []byte, v string) []byte {
	return append(dst, v...)
}

func (StringCodec) Decode(b []byte) (string, error) {
	return string(b), nil
}

func (StringCodec) Compare(a, b string) int { return strings.Compare(a, b) }
func (StringCodec) Size(v string) int       { return len(v) }
func (StringCodec) Name() string            { return "keyword" }

// UUIDCodec stores UUIDs as their 16 raw bytes.
type UUIDCodec struct{}

func (UUIDCodec) Append(dst []byte, v uuid.UUID) []byte {
	return append(dst, v[:]...)
}

func (UUIDCodec) Decode(b []byte) (uuid.UUID, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return u, nil
}

func (UUIDCodec) Compare(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) }
func (UUIDCodec) Size(uuid.UUID) int         { return 16 }
func (UUIDCodec) Name() string               { return "uuid" }

const pointKeySize = 4

// EncodeRecord builds the transactional store key of a (value, point) pair:
// the value encoding followed by the big-endian point offset.
func EncodeRecord[K comparable](c Codec[K], v K, point uint32) []byte {
	key := c.Append(make([]byte, 0, c.Size(v)+pointKeySize), v)
	return binary.BigEndian.AppendUint32(key, point)
}

// DecodeRecord splits a key built by EncodeRecord.
func DecodeRecord[K comparable](c Codec[K], key []byte) (K, uint32, error) {
	var zero K
	if len(key) < pointKeySize {
		return zero, 0, fmt.Errorf("%w: record key of %d bytes", ErrCorrupt, len(key))
	}
	split := len(key) - pointKeySize
	v, err := c.Decode(key[:split])
	if err != nil {
		return zero, 0, err
	}
	return v, binary.BigEndian.Uint32(key[split:]), nil
}
