package contentledger_test

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-ledger/pkg/contentledger"
)

func TestSequenceMarker(t *testing.T) {
	tests := []struct {
		seq  uint64
		want string
	}{
		{seq: 0, want: "0000000000000000"},
		{seq: 1, want: "0000000000000001"},
		{seq: 0x0102030405060708, want: "0102030405060708"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.seq), func(t *testing.T) {
			marker := contentledger.SequenceMarker(tt.seq)
			assert.Equal(t, tt.want, hex.EncodeToString(marker))

			item := &contentledger.ContentItem{SequenceMarker: marker}
			seq, err := item.Sequence()
			require.NoError(t, err)
			assert.Equal(t, tt.seq, seq)
		})
	}

	_, err := (&contentledger.ContentItem{SequenceMarker: []byte{1}}).Sequence()
	assert.Error(t, err)
}

func TestUint128(t *testing.T) {
	u := contentledger.Uint128{Hi: 1, Lo: 2}

	assert.Equal(t, "0200000000000000"+"0100000000000000", hex.EncodeToString(u.LittleEndian()))
	assert.Equal(t, "0000000000000001"+"0000000000000002", hex.EncodeToString(u.BigEndian()))
	assert.Equal(t, "18446744073709551618", u.String())

	back, err := contentledger.Uint128FromBigEndian(u.BigEndian())
	require.NoError(t, err)
	assert.Equal(t, u, back)

	_, err = contentledger.Uint128FromBigEndian([]byte{1, 2})
	assert.Error(t, err)

	assert.Equal(t, 0, u.Cmp(u))
	assert.Equal(t, -1, contentledger.Uint128{Lo: 9}.Cmp(u))
	assert.Equal(t, 1, u.Cmp(contentledger.Uint128{Hi: 1, Lo: 1}))

	assert.Equal(t, contentledger.Uint128{}, contentledger.Uint128FromTime(time.Unix(-5, 0)))
	assert.Equal(t, contentledger.Uint128{Lo: 1_500_000_000}, contentledger.Uint128FromTime(time.Unix(1, 500_000_000)))
}

func TestContentKeyFormat(t *testing.T) {
	key, err := contentledger.ParseContentKey("42474d87-5500-590a-ae99-872023f3b83a")
	require.NoError(t, err)
	assert.Len(t, key, 16)
	assert.Equal(t, "42474d87-5500-590a-ae99-872023f3b83a", contentledger.FormatContentKey(key))

	key, err = contentledger.ParseContentKey("abcd")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xab, 0xcd}, key)
	assert.Equal(t, "abcd", contentledger.FormatContentKey(key))

	for _, bad := range []string{"", "not-a-key", "abc"} {
		_, err := contentledger.ParseContentKey(bad)
		assert.ErrorIs(t, err, contentledger.ErrInvalidContentKey, bad)
	}
}

func TestContentItem_Clone(t *testing.T) {
	item := &contentledger.ContentItem{
		ContentKey:     []byte{1},
		Fingerprint:    []byte{2},
		SequenceMarker: []byte{3},
	}
	clone := item.Clone()
	clone.Fingerprint[0] = 9
	assert.Equal(t, byte(2), item.Fingerprint[0])

	var nilItem *contentledger.ContentItem
	assert.Nil(t, nilItem.Clone())
}

func TestLedgerError(t *testing.T) {
	err := &contentledger.LedgerError{Op: "lease_content", Identity: "alice", Err: contentledger.ErrContentNotFound}
	assert.True(t, errors.Is(err, contentledger.ErrContentNotFound))
	assert.Equal(t, `ledger operation lease_content failed for "alice": content not found`, err.Error())

	key, _ := contentledger.ParseContentKey("42474d87-5500-590a-ae99-872023f3b83a")
	err.ContentKey = key
	assert.Contains(t, err.Error(), "on content 42474d87-5500-590a-ae99-872023f3b83a")

	var target *contentledger.LedgerError
	wrapped := fmt.Errorf("handler: %w", err)
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, "lease_content", target.Op)
}

func TestClocks(t *testing.T) {
	fixed := contentledger.FixedClock(contentledger.Uint128{Lo: 7})
	assert.Equal(t, contentledger.Uint128{Lo: 7}, fixed.Now())
	assert.Equal(t, fixed.Now(), fixed.Now())

	stepping := contentledger.NewSteppingClock(10, 5)
	assert.Equal(t, contentledger.Uint128FromUint64(10), stepping.Now())
	assert.Equal(t, contentledger.Uint128FromUint64(15), stepping.Now())

	assert.NotEqual(t, contentledger.Uint128{}, contentledger.SystemClock{}.Now())
}

func TestAtomicSequence(t *testing.T) {
	seq := contentledger.NewAtomicSequence(3)
	v, err := seq.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v)

	assert.Equal(t, uint64(4), seq.Advance())
	seq.Set(100)
	v, _ = seq.Current(context.Background())
	assert.Equal(t, uint64(100), v)
}
