package contentledger

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Identity is an authenticated account identifier.
type Identity string

// IsZero reports whether the identity is empty.
func (i Identity) IsZero() bool {
	return i == ""
}

// Uint128 is an unsigned 128-bit integer used for nanosecond timestamps.
type Uint128 struct {
	Hi uint64
	Lo uint64
}

// Uint128FromUint64 returns v as a Uint128.
func Uint128FromUint64(v uint64) Uint128 {
	return Uint128{Lo: v}
}

// Uint128FromTime returns the nanoseconds since the Unix epoch of t.
// Times before the epoch are clamped to zero.
func Uint128FromTime(t time.Time) Uint128 {
	ns := t.UnixNano()
	if ns < 0 {
		return Uint128{}
	}
	return Uint128{Lo: uint64(ns)}
}

// Uint128FromBigEndian decodes a 16-byte big-endian value.
func Uint128FromBigEndian(b []byte) (Uint128, error) {
	if len(b) != 16 {
		return Uint128{}, fmt.Errorf("uint128: expected 16 bytes, got %d", len(b))
	}
	return Uint128{
		Hi: binary.BigEndian.Uint64(b[:8]),
		Lo: binary.BigEndian.Uint64(b[8:]),
	}, nil
}

// LittleEndian returns the 16-byte little-endian encoding.
func (u Uint128) LittleEndian() []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint64(b[:8], u.Lo)
	binary.LittleEndian.PutUint64(b[8:], u.Hi)
	return b
}

// BigEndian returns the 16-byte big-endian encoding. Byte order matches
// numeric order, which is what the SQL repositories sort on.
func (u Uint128) BigEndian() []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], u.Hi)
	binary.BigEndian.PutUint64(b[8:], u.Lo)
	return b
}

// Cmp returns -1, 0 or +1 comparing u with v.
func (u Uint128) Cmp(v Uint128) int {
	switch {
	case u.Hi < v.Hi:
		return -1
	case u.Hi > v.Hi:
		return 1
	case u.Lo < v.Lo:
		return -1
	case u.Lo > v.Lo:
		return 1
	}
	return 0
}

// String returns the decimal representation.
func (u Uint128) String() string {
	n := new(big.Int).SetUint64(u.Hi)
	n.Lsh(n, 64)
	n.Or(n, new(big.Int).SetUint64(u.Lo))
	return n.String()
}

// ContentItem is the immutable record describing one registered piece of content.
type ContentItem struct {
	ContentKey       []byte  `json:"content_key"`
	Fingerprint      []byte  `json:"fingerprint"`
	SequenceMarker   []byte  `json:"sequence_marker"`
	CreatedTimestamp Uint128 `json:"-"`
}

// Clone returns a deep copy of the item.
func (c *ContentItem) Clone() *ContentItem {
	if c == nil {
		return nil
	}
	return &ContentItem{
		ContentKey:       bytes.Clone(c.ContentKey),
		Fingerprint:      bytes.Clone(c.Fingerprint),
		SequenceMarker:   bytes.Clone(c.SequenceMarker),
		CreatedTimestamp: c.CreatedTimestamp,
	}
}

// Sequence decodes the sequence marker back into the sequence value it was
// captured from.
func (c *ContentItem) Sequence() (uint64, error) {
	if len(c.SequenceMarker) != 8 {
		return 0, fmt.Errorf("sequence marker: expected 8 bytes, got %d", len(c.SequenceMarker))
	}
	return binary.BigEndian.Uint64(c.SequenceMarker), nil
}

// LeaseItem pairs content with the time a lease on it was taken. No
// operation records lease items yet.
type LeaseItem struct {
	Content        ContentItem `json:"content"`
	LeaseTimestamp Uint128     `json:"-"`
}

// SequenceMarker encodes a sequence value the way it is stored on content
// items: the 8-byte little-endian encoding, reversed.
func SequenceMarker(seq uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, seq)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b
}

// FormatContentKey renders a content key for display and URLs. Derived keys
// are UUID bytes and render as canonical UUID strings; anything else
// renders as hex.
func FormatContentKey(key []byte) string {
	if len(key) == 16 {
		if id, err := uuid.FromBytes(key); err == nil {
			return id.String()
		}
	}
	return hex.EncodeToString(key)
}

// ParseContentKey is the inverse of FormatContentKey.
func ParseContentKey(s string) ([]byte, error) {
	if id, err := uuid.Parse(s); err == nil {
		b := id[:]
		return bytes.Clone(b), nil
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContentKey, s)
	}
	return b, nil
}
