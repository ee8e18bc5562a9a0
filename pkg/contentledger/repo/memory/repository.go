package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/tendant/content-ledger/pkg/contentledger"
	"golang.org/x/exp/slices"
)

type entryKey struct {
	identity   contentledger.Identity
	contentKey string
}

func keyOf(who contentledger.Identity, contentKey []byte) entryKey {
	return entryKey{identity: who, contentKey: string(contentKey)}
}

// state is one generation of the ledger tables
type state struct {
	contents map[entryKey]*contentledger.ContentItem
	byOwner  map[contentledger.Identity][]string
	policies map[entryKey]contentledger.AccessPolicy
	value    *uint32
}

// Repository implements contentledger.Repository using in-memory storage.
// Write transactions are serialized by a mutex and stage their writes until
// commit.
type Repository struct {
	mu       sync.RWMutex
	state    state
	sequence uint64
}

// New creates a new in-memory repository
func New() contentledger.Repository {
	return &Repository{
		state: state{
			contents: make(map[entryKey]*contentledger.ContentItem),
			byOwner:  make(map[contentledger.Identity][]string),
			policies: make(map[entryKey]contentledger.AccessPolicy),
		},
	}
}

// Atomic runs fn in a write transaction
func (r *Repository) Atomic(ctx context.Context, fn func(tx contentledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &tx{
		repo:     r,
		sequence: r.sequence + 1,
		contents: make(map[entryKey]*contentledger.ContentItem),
		policies: make(map[entryKey]contentledger.AccessPolicy),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// View runs fn against the committed state
func (r *Repository) View(ctx context.Context, fn func(tx contentledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return fn(&tx{repo: r, sequence: r.sequence, readOnly: true})
}

// Close is a no-op for the in-memory repository
func (r *Repository) Close() error {
	return nil
}

// tx stages writes over the committed state
type tx struct {
	repo     *Repository
	sequence uint64
	readOnly bool

	contents map[entryKey]*contentledger.ContentItem
	order    []entryKey
	policies map[entryKey]contentledger.AccessPolicy
	value    *uint32
}

func (t *tx) commit() {
	s := &t.repo.state
	for _, k := range t.order {
		s.contents[k] = t.contents[k]
		s.byOwner[k.identity] = append(s.byOwner[k.identity], k.contentKey)
	}
	for k, p := range t.policies {
		s.policies[k] = p
	}
	if t.value != nil {
		v := *t.value
		s.value = &v
	}
	t.repo.sequence = t.sequence
}

func (t *tx) Sequence(ctx context.Context) (uint64, error) {
	return t.sequence, nil
}

// Content table operations

func (t *tx) GetContent(ctx context.Context, owner contentledger.Identity, contentKey []byte) (*contentledger.ContentItem, bool, error) {
	k := keyOf(owner, contentKey)
	if item, ok := t.contents[k]; ok {
		return item.Clone(), true, nil
	}
	if item, ok := t.repo.state.contents[k]; ok {
		return item.Clone(), true, nil
	}
	return nil, false, nil
}

func (t *tx) InsertContent(ctx context.Context, owner contentledger.Identity, item *contentledger.ContentItem) error {
	if t.readOnly {
		return contentledger.ErrReadOnly
	}
	k := keyOf(owner, item.ContentKey)
	if _, ok := t.contents[k]; ok {
		return contentledger.ErrContentKeyExists
	}
	if _, ok := t.repo.state.contents[k]; ok {
		return contentledger.ErrContentKeyExists
	}
	// Create a copy to avoid external modifications
	t.contents[k] = item.Clone()
	t.order = append(t.order, k)
	return nil
}

func (t *tx) ListContent(ctx context.Context, owner contentledger.Identity) ([]*contentledger.ContentItem, error) {
	var result []*contentledger.ContentItem
	for _, key := range t.repo.state.byOwner[owner] {
		result = append(result, t.repo.state.contents[keyOf(owner, []byte(key))].Clone())
	}
	for _, k := range t.order {
		if k.identity == owner {
			result = append(result, t.contents[k].Clone())
		}
	}

	// Sort by creation time, then key
	slices.SortFunc(result, func(a, b *contentledger.ContentItem) int {
		if c := a.CreatedTimestamp.Cmp(b.CreatedTimestamp); c != 0 {
			return c
		}
		return bytes.Compare(a.ContentKey, b.ContentKey)
	})

	return result, nil
}

// Access policy table operations

func (t *tx) GetPolicy(ctx context.Context, subject contentledger.Identity, contentKey []byte) (contentledger.AccessPolicy, bool, error) {
	k := keyOf(subject, contentKey)
	if p, ok := t.policies[k]; ok {
		return p, true, nil
	}
	if p, ok := t.repo.state.policies[k]; ok {
		return p, true, nil
	}
	return contentledger.NotAccessible, false, nil
}

func (t *tx) PutPolicy(ctx context.Context, subject contentledger.Identity, contentKey []byte, policy contentledger.AccessPolicy) error {
	if t.readOnly {
		return contentledger.ErrReadOnly
	}
	t.policies[keyOf(subject, contentKey)] = policy
	return nil
}

// Counter operations

func (t *tx) GetValue(ctx context.Context) (uint32, bool, error) {
	if t.value != nil {
		return *t.value, true, nil
	}
	if t.repo.state.value != nil {
		return *t.repo.state.value, true, nil
	}
	return 0, false, nil
}

func (t *tx) PutValue(ctx context.Context, value uint32) error {
	if t.readOnly {
		return contentledger.ErrReadOnly
	}
	t.value = &value
	return nil
}
