// Package repotest holds the behavior every contentledger.Repository
// implementation must share. Each backend runs it from its own tests.
package repotest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-ledger/pkg/contentledger"
)

// Factory returns an empty repository. Cleanup is registered on t.
type Factory func(t *testing.T) contentledger.Repository

var errAbort = errors.New("abort")

func item(key byte, ts uint64) *contentledger.ContentItem {
	return &contentledger.ContentItem{
		ContentKey:       []byte{key, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, key},
		Fingerprint:      []byte("fingerprint"),
		SequenceMarker:   contentledger.SequenceMarker(ts),
		CreatedTimestamp: contentledger.Uint128FromUint64(ts),
	}
}

// Run executes the repository contract against repositories from newRepo.
func Run(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("ContentRoundTrip", func(t *testing.T) {
		repo := newRepo(t)
		want := item(1, 42)
		want.CreatedTimestamp = contentledger.Uint128{Hi: 7, Lo: 42}

		require.NoError(t, repo.Atomic(ctx, func(tx contentledger.Tx) error {
			return tx.InsertContent(ctx, "alice", want)
		}))

		require.NoError(t, repo.View(ctx, func(tx contentledger.Tx) error {
			got, ok, err := tx.GetContent(ctx, "alice", want.ContentKey)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want.ContentKey, got.ContentKey)
			assert.Equal(t, want.Fingerprint, got.Fingerprint)
			assert.Equal(t, want.SequenceMarker, got.SequenceMarker)
			assert.Equal(t, want.CreatedTimestamp, got.CreatedTimestamp)

			_, ok, err = tx.GetContent(ctx, "bob", want.ContentKey)
			require.NoError(t, err)
			assert.False(t, ok, "content is keyed by owner")
			return nil
		}))
	})

	t.Run("GetContent_NotFound", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.View(ctx, func(tx contentledger.Tx) error {
			got, ok, err := tx.GetContent(ctx, "alice", []byte("missing"))
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, got)
			return nil
		}))
	})

	t.Run("InsertContent_DuplicateKey", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Atomic(ctx, func(tx contentledger.Tx) error {
			return tx.InsertContent(ctx, "alice", item(1, 1))
		}))

		err := repo.Atomic(ctx, func(tx contentledger.Tx) error {
			return tx.InsertContent(ctx, "alice", item(1, 2))
		})
		assert.ErrorIs(t, err, contentledger.ErrContentKeyExists)

		require.NoError(t, repo.Atomic(ctx, func(tx contentledger.Tx) error {
			return tx.InsertContent(ctx, "bob", item(1, 3))
		}), "same key under another owner is allowed")
	})

	t.Run("ListContent_Ordered", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Atomic(ctx, func(tx contentledger.Tx) error {
			for _, it := range []*contentledger.ContentItem{item(3, 20), item(2, 10), item(1, 20)} {
				if err := tx.InsertContent(ctx, "alice", it); err != nil {
					return err
				}
			}
			return tx.InsertContent(ctx, "bob", item(9, 5))
		}))

		require.NoError(t, repo.View(ctx, func(tx contentledger.Tx) error {
			items, err := tx.ListContent(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, items, 3)
			assert.Equal(t, byte(2), items[0].ContentKey[0])
			assert.Equal(t, byte(1), items[1].ContentKey[0])
			assert.Equal(t, byte(3), items[2].ContentKey[0])

			items, err = tx.ListContent(ctx, "carol")
			require.NoError(t, err)
			assert.Empty(t, items)
			return nil
		}))
	})

	t.Run("PolicyUpsert", func(t *testing.T) {
		repo := newRepo(t)
		key := item(1, 1).ContentKey

		require.NoError(t, repo.View(ctx, func(tx contentledger.Tx) error {
			p, ok, err := tx.GetPolicy(ctx, "bob", key)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, contentledger.NotAccessible, p)
			return nil
		}))

		for _, want := range []contentledger.AccessPolicy{
			contentledger.NotAccessible,
			contentledger.ContentLeaseAssigned,
			contentledger.ContentLeaseRevoked,
		} {
			require.NoError(t, repo.Atomic(ctx, func(tx contentledger.Tx) error {
				return tx.PutPolicy(ctx, "bob", key, want)
			}))
			require.NoError(t, repo.View(ctx, func(tx contentledger.Tx) error {
				p, ok, err := tx.GetPolicy(ctx, "bob", key)
				require.NoError(t, err)
				assert.True(t, ok, "stored %s must read as present", want)
				assert.Equal(t, want, p)
				return nil
			}))
		}
	})

	t.Run("Counter", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.View(ctx, func(tx contentledger.Tx) error {
			_, ok, err := tx.GetValue(ctx)
			require.NoError(t, err)
			assert.False(t, ok)
			return nil
		}))

		for _, v := range []uint32{0, 17, 4294967295} {
			require.NoError(t, repo.Atomic(ctx, func(tx contentledger.Tx) error {
				return tx.PutValue(ctx, v)
			}))
			require.NoError(t, repo.View(ctx, func(tx contentledger.Tx) error {
				got, ok, err := tx.GetValue(ctx)
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, v, got)
				return nil
			}))
		}
	})

	t.Run("Atomic_RollbackOnError", func(t *testing.T) {
		repo := newRepo(t)
		err := repo.Atomic(ctx, func(tx contentledger.Tx) error {
			require.NoError(t, tx.InsertContent(ctx, "alice", item(1, 1)))
			require.NoError(t, tx.PutPolicy(ctx, "alice", item(1, 1).ContentKey, contentledger.ContentOwner))
			require.NoError(t, tx.PutValue(ctx, 5))

			// writes are visible inside the transaction
			_, ok, err := tx.GetContent(ctx, "alice", item(1, 1).ContentKey)
			require.NoError(t, err)
			assert.True(t, ok)
			return errAbort
		})
		require.ErrorIs(t, err, errAbort)

		require.NoError(t, repo.View(ctx, func(tx contentledger.Tx) error {
			_, ok, err := tx.GetContent(ctx, "alice", item(1, 1).ContentKey)
			require.NoError(t, err)
			assert.False(t, ok)

			_, ok, err = tx.GetPolicy(ctx, "alice", item(1, 1).ContentKey)
			require.NoError(t, err)
			assert.False(t, ok)

			_, ok, err = tx.GetValue(ctx)
			require.NoError(t, err)
			assert.False(t, ok)

			items, err := tx.ListContent(ctx, "alice")
			require.NoError(t, err)
			assert.Empty(t, items)
			return nil
		}))
	})

	t.Run("Sequence", func(t *testing.T) {
		repo := newRepo(t)
		seqOf := func(run func(context.Context, func(contentledger.Tx) error) error) uint64 {
			var seq uint64
			require.NoError(t, run(ctx, func(tx contentledger.Tx) error {
				var err error
				seq, err = tx.Sequence(ctx)
				return err
			}))
			return seq
		}

		assert.Equal(t, uint64(0), seqOf(repo.View))
		assert.Equal(t, uint64(1), seqOf(repo.Atomic))
		assert.Equal(t, uint64(2), seqOf(repo.Atomic))
		assert.Equal(t, uint64(2), seqOf(repo.View))

		// a rolled back transaction does not advance the sequence
		require.ErrorIs(t, repo.Atomic(ctx, func(contentledger.Tx) error { return errAbort }), errAbort)
		assert.Equal(t, uint64(2), seqOf(repo.View))
		assert.Equal(t, uint64(3), seqOf(repo.Atomic))
	})

	t.Run("View_ReadOnly", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.View(ctx, func(tx contentledger.Tx) error {
			assert.ErrorIs(t, tx.InsertContent(ctx, "alice", item(1, 1)), contentledger.ErrReadOnly)
			assert.ErrorIs(t, tx.PutPolicy(ctx, "alice", item(1, 1).ContentKey, contentledger.ContentOwner), contentledger.ErrReadOnly)
			assert.ErrorIs(t, tx.PutValue(ctx, 1), contentledger.ErrReadOnly)
			return nil
		}))
	})
}
