package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-ledger/pkg/contentledger"
	"github.com/tendant/content-ledger/pkg/contentledger/repo/memory"
	"github.com/tendant/content-ledger/pkg/contentledger/repo/repotest"
)

func TestMemoryRepository(t *testing.T) {
	repotest.Run(t, func(t *testing.T) contentledger.Repository {
		return memory.New()
	})
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	key := []byte("0123456789abcdef")

	original := &contentledger.ContentItem{
		ContentKey:     append([]byte(nil), key...),
		Fingerprint:    []byte("abc"),
		SequenceMarker: contentledger.SequenceMarker(1),
	}
	require.NoError(t, repo.Atomic(ctx, func(tx contentledger.Tx) error {
		return tx.InsertContent(ctx, "alice", original)
	}))
	original.Fingerprint[0] = 'X'

	require.NoError(t, repo.View(ctx, func(tx contentledger.Tx) error {
		got, ok, err := tx.GetContent(ctx, "alice", key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("abc"), got.Fingerprint)
		got.Fingerprint[0] = 'Y'
		return nil
	}))

	require.NoError(t, repo.View(ctx, func(tx contentledger.Tx) error {
		got, _, err := tx.GetContent(ctx, "alice", key)
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), got.Fingerprint)
		return nil
	}))
}

func TestMemoryRepository_ConcurrentIncrements(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	require.NoError(t, repo.Atomic(ctx, func(tx contentledger.Tx) error {
		return tx.PutValue(ctx, 0)
	}))

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.Atomic(ctx, func(tx contentledger.Tx) error {
				v, _, err := tx.GetValue(ctx)
				if err != nil {
					return err
				}
				return tx.PutValue(ctx, v+1)
			})
		}()
	}
	wg.Wait()

	require.NoError(t, repo.View(ctx, func(tx contentledger.Tx) error {
		v, ok, err := tx.GetValue(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, uint32(workers), v)

		seq, err := tx.Sequence(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(workers+1), seq)
		return nil
	}))
}

func TestMemoryRepository_CanceledContext(t *testing.T) {
	repo := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := repo.Atomic(ctx, func(tx contentledger.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
