package contentledger

import (
	"context"
)

// Repository defines the interface for ledger persistence.
//
// Atomic runs fn inside a write transaction. Transactions are serialized
// and either commit every write made through tx or, when fn returns an
// error, none of them. View runs fn against a read-only snapshot; writes
// made through a view tx fail.
type Repository interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx is the table surface available inside a transaction.
//
// Content and policy lookups report presence separately from the value so
// callers can tell an absent entry from a stored zero value.
type Tx interface {
	// Sequence returns the sequence position of this transaction. Write
	// transactions observe the position they will commit at; views observe
	// the last committed position.
	Sequence(ctx context.Context) (uint64, error)

	// Content table operations
	GetContent(ctx context.Context, owner Identity, contentKey []byte) (*ContentItem, bool, error)
	InsertContent(ctx context.Context, owner Identity, item *ContentItem) error
	ListContent(ctx context.Context, owner Identity) ([]*ContentItem, error)

	// Access policy table operations
	GetPolicy(ctx context.Context, subject Identity, contentKey []byte) (AccessPolicy, bool, error)
	PutPolicy(ctx context.Context, subject Identity, contentKey []byte, policy AccessPolicy) error

	// Counter operations
	GetValue(ctx context.Context) (uint32, bool, error)
	PutValue(ctx context.Context, value uint32) error
}

// Clock returns the current time in nanoseconds since the Unix epoch.
type Clock interface {
	Now() Uint128
}

// Randomness returns pseudo-random bytes for an arbitrary subject. Output is
// expected to be unpredictable to callers and at least four bytes long.
type Randomness interface {
	Random(subject []byte) []byte
}

// SequenceCounter returns the host's current monotonic ordering counter.
type SequenceCounter interface {
	Current(ctx context.Context) (uint64, error)
}

// EventSink receives ledger notifications after their transaction commits.
// Delivery is fire-and-forget: the service logs a returned error and never
// fails the originating operation because of it.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}
