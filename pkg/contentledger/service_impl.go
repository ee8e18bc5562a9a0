package contentledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
)

// maxKeyDerivations bounds how many clock readings CreateContent tries
// before giving up on a colliding content key
const maxKeyDerivations = 8

// service implements the Service interface
type service struct {
	repository Repository
	randomness Randomness
	moduleID   string
	deriver    *KeyDeriver
	clock      Clock
	sequence   SequenceCounter
	eventSink  EventSink
	logger     *slog.Logger
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithRandomness sets the randomness source used for content keys
func WithRandomness(r Randomness) Option {
	return func(s *service) {
		s.randomness = r
	}
}

// WithModuleID sets the module identifier mixed into content key derivation
func WithModuleID(id string) Option {
	return func(s *service) {
		s.moduleID = id
	}
}

// WithClock sets the time source
func WithClock(clock Clock) Option {
	return func(s *service) {
		s.clock = clock
	}
}

// WithSequenceCounter makes the service read sequence markers from a host
// counter instead of the repository's transaction sequence
func WithSequenceCounter(seq SequenceCounter) Option {
	return func(s *service) {
		s.sequence = seq
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		moduleID:  DefaultModuleID,
		clock:     SystemClock{},
		eventSink: NewNoopEventSink(),
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.randomness == nil {
		beacon, err := NewRandomBeacon()
		if err != nil {
			return nil, err
		}
		s.randomness = beacon
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	deriver, err := NewKeyDeriver(s.moduleID, s.randomness)
	if err != nil {
		return nil, err
	}
	s.deriver = deriver

	return s, nil
}

// txn collects the events emitted inside one write transaction
type txn struct {
	Tx
	sequence uint64
	events   []Event
}

func (t *txn) emit(e Event) {
	t.events = append(t.events, e)
}

// execute runs fn in a write transaction and publishes its events once the
// transaction has committed
func (s *service) execute(ctx context.Context, fn func(t *txn) error) error {
	var committed *txn
	err := s.repository.Atomic(ctx, func(tx Tx) error {
		seq, err := s.currentSequence(ctx, tx)
		if err != nil {
			return err
		}
		t := &txn{Tx: tx, sequence: seq}
		if err := fn(t); err != nil {
			return err
		}
		committed = t
		return nil
	})
	if err != nil {
		return err
	}

	for i, event := range committed.events {
		event.Sequence = committed.sequence
		event.Index = i
		if err := s.eventSink.Publish(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish ledger event",
				"kind", string(event.Kind), "sequence", event.Sequence, "error", err)
		}
	}
	return nil
}

func (s *service) currentSequence(ctx context.Context, tx Tx) (uint64, error) {
	if s.sequence != nil {
		return s.sequence.Current(ctx)
	}
	return tx.Sequence(ctx)
}

func ensureSigned(who Identity) error {
	if who.IsZero() {
		return ErrUnauthenticated
	}
	return nil
}

// Content registration

func (s *service) CreateContent(ctx context.Context, req CreateContentRequest) (*ContentItem, error) {
	if err := ensureSigned(req.Caller); err != nil {
		return nil, &LedgerError{Op: "create_content", Identity: req.Caller, Err: err}
	}

	var item *ContentItem
	err := s.execute(ctx, func(t *txn) error {
		now, contentKey, err := s.freshKey(ctx, t, req.Caller)
		if err != nil {
			return err
		}

		item = &ContentItem{
			ContentKey:       contentKey,
			Fingerprint:      append([]byte(nil), req.Fingerprint...),
			SequenceMarker:   SequenceMarker(t.sequence),
			CreatedTimestamp: now,
		}

		if err := t.InsertContent(ctx, req.Caller, item); err != nil {
			return err
		}
		t.emit(CreateContentKeyEvent(contentKey, req.Caller))

		if err := t.PutPolicy(ctx, req.Caller, contentKey, ContentOwner); err != nil {
			return err
		}
		t.emit(AccessPolicyChangeEvent(req.Caller, contentKey, ContentOwner))
		return nil
	})
	if err != nil {
		return nil, &LedgerError{Op: "create_content", Identity: req.Caller, Err: err}
	}

	s.logger.InfoContext(ctx, "Content created",
		"owner", string(req.Caller), "content_key", FormatContentKey(item.ContentKey))
	return item.Clone(), nil
}

// freshKey derives a content key for owner from the current clock reading.
// A key that already names content in the owner's bucket, or on which the
// owner already holds a policy, is re-derived from the next reading, up to
// maxKeyDerivations times.
func (s *service) freshKey(ctx context.Context, t *txn, owner Identity) (Uint128, []byte, error) {
	for attempt := 0; attempt < maxKeyDerivations; attempt++ {
		now := s.clock.Now()
		contentKey := s.deriver.DeriveKey(now)

		_, exists, err := t.GetContent(ctx, owner, contentKey)
		if err != nil {
			return Uint128{}, nil, err
		}
		current, present, err := t.GetPolicy(ctx, owner, contentKey)
		if err != nil {
			return Uint128{}, nil, err
		}
		err = ValidatePolicyTransition(current, present, ContentOwner)
		if !exists && err == nil {
			return now, contentKey, nil
		}
		if err != nil && !errors.Is(err, ErrContentAlreadyAccessibleByAccount) {
			return Uint128{}, nil, err
		}

		s.logger.WarnContext(ctx, "Derived content key already in use, deriving again",
			"owner", string(owner), "content_key", FormatContentKey(contentKey), "attempt", attempt+1)
	}
	return Uint128{}, nil, ErrContentKeyExists
}

func (s *service) GetContent(ctx context.Context, req GetContentRequest) (*ContentItem, error) {
	var item *ContentItem
	err := s.repository.View(ctx, func(tx Tx) error {
		found, ok, err := tx.GetContent(ctx, req.Owner, req.ContentKey)
		if err != nil {
			return err
		}
		if !ok {
			return ErrContentNotFound
		}
		item = found
		return nil
	})
	if err != nil {
		return nil, &LedgerError{Op: "get_content", Identity: req.Owner, ContentKey: req.ContentKey, Err: err}
	}
	return item, nil
}

func (s *service) ListContent(ctx context.Context, owner Identity) ([]*ContentItem, error) {
	var items []*ContentItem
	err := s.repository.View(ctx, func(tx Tx) error {
		var err error
		items, err = tx.ListContent(ctx, owner)
		return err
	})
	if err != nil {
		return nil, &LedgerError{Op: "list_content", Identity: owner, Err: err}
	}
	return items, nil
}

// Lease operations

func (s *service) LeaseContent(ctx context.Context, req LeaseContentRequest) error {
	return s.transition(ctx, "lease_content", req.Caller, req.ContentKey, req.Subject, ContentLeaseAssigned)
}

func (s *service) RevokeLease(ctx context.Context, req RevokeLeaseRequest) error {
	return s.transition(ctx, "revoke_lease", req.Caller, req.ContentKey, req.Subject, ContentLeaseRevoked)
}

// transition moves subject's policy on contentKey to next. Every check runs
// before the single write, so a rejected transition touches nothing.
func (s *service) transition(ctx context.Context, op string, caller Identity, contentKey []byte, subject Identity, next AccessPolicy) error {
	if err := ensureSigned(caller); err != nil {
		return &LedgerError{Op: op, Identity: caller, ContentKey: contentKey, Err: err}
	}
	if subject.IsZero() {
		return &LedgerError{Op: op, Identity: caller, ContentKey: contentKey, Err: ErrInvalidSubject}
	}

	err := s.execute(ctx, func(t *txn) error {
		_, exists, err := t.GetContent(ctx, caller, contentKey)
		if err != nil {
			return err
		}
		if !exists {
			return ErrContentNotFound
		}

		current, present, err := t.GetPolicy(ctx, subject, contentKey)
		if err != nil {
			return err
		}
		if err := ValidatePolicyTransition(current, present, next); err != nil {
			return err
		}

		if err := t.PutPolicy(ctx, subject, contentKey, next); err != nil {
			return err
		}
		t.emit(AccessPolicyChangeEvent(subject, contentKey, next))
		return nil
	})
	if err != nil {
		return &LedgerError{Op: op, Identity: caller, ContentKey: contentKey, Err: err}
	}

	s.logger.InfoContext(ctx, "Access policy changed",
		"caller", string(caller), "subject", string(subject),
		"content_key", FormatContentKey(contentKey), "policy", next.String())
	return nil
}

// Access policy reads

func (s *service) GetAccessPolicy(ctx context.Context, req AccessPolicyRequest) (AccessPolicy, error) {
	var policy AccessPolicy
	err := s.repository.View(ctx, func(tx Tx) error {
		var err error
		// absent reads as NotAccessible, the zero value
		policy, _, err = tx.GetPolicy(ctx, req.Subject, req.ContentKey)
		return err
	})
	if err != nil {
		return NotAccessible, &LedgerError{Op: "get_access_policy", Identity: req.Subject, ContentKey: req.ContentKey, Err: err}
	}
	return policy, nil
}

func (s *service) HasAccess(ctx context.Context, req AccessPolicyRequest) (bool, error) {
	policy, err := s.GetAccessPolicy(ctx, req)
	if err != nil {
		return false, err
	}
	return policy.GrantsAccess(), nil
}

// Counter operations

func (s *service) StoreValue(ctx context.Context, caller Identity, value uint32) error {
	if err := ensureSigned(caller); err != nil {
		return &LedgerError{Op: "store_value", Identity: caller, Err: err}
	}
	err := s.execute(ctx, func(t *txn) error {
		if err := t.PutValue(ctx, value); err != nil {
			return err
		}
		t.emit(SomethingStoredEvent(value, caller))
		return nil
	})
	if err != nil {
		return &LedgerError{Op: "store_value", Identity: caller, Err: err}
	}
	return nil
}

func (s *service) IncrementValue(ctx context.Context, caller Identity) (uint32, error) {
	if err := ensureSigned(caller); err != nil {
		return 0, &LedgerError{Op: "increment_value", Identity: caller, Err: err}
	}
	var next uint32
	err := s.execute(ctx, func(t *txn) error {
		old, ok, err := t.GetValue(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrValueAbsent
		}
		if old == math.MaxUint32 {
			return ErrOverflow
		}
		next = old + 1
		return t.PutValue(ctx, next)
	})
	if err != nil {
		return 0, &LedgerError{Op: "increment_value", Identity: caller, Err: err}
	}
	return next, nil
}

func (s *service) GetValue(ctx context.Context) (uint32, error) {
	var value uint32
	err := s.repository.View(ctx, func(tx Tx) error {
		v, ok, err := tx.GetValue(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrValueAbsent
		}
		value = v
		return nil
	})
	if err != nil {
		return 0, &LedgerError{Op: "get_value", Err: err}
	}
	return value, nil
}
