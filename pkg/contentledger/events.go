package contentledger

import (
	"bytes"
)

// EventKind names a ledger notification.
type EventKind string

// Event kinds
const (
	EventCreateContentKey   EventKind = "create_content_key"
	EventAccessPolicyChange EventKind = "access_policy_change"
	EventSomethingStored    EventKind = "something_stored"
)

// Event is a notification emitted by a committed ledger operation.
//
// Sequence is the sequence position of the transaction that produced the
// event and Index its position among that transaction's events.
type Event struct {
	Kind       EventKind    `json:"kind"`
	Identity   Identity     `json:"identity"`
	ContentKey []byte       `json:"content_key,omitempty"`
	Policy     AccessPolicy `json:"policy"`
	Value      uint32       `json:"value,omitempty"`
	Sequence   uint64       `json:"sequence"`
	Index      int          `json:"index"`
}

// CreateContentKeyEvent reports a content key created for who.
func CreateContentKeyEvent(contentKey []byte, who Identity) Event {
	return Event{Kind: EventCreateContentKey, ContentKey: bytes.Clone(contentKey), Identity: who}
}

// AccessPolicyChangeEvent reports who's policy on contentKey changing to policy.
func AccessPolicyChangeEvent(who Identity, contentKey []byte, policy AccessPolicy) Event {
	return Event{Kind: EventAccessPolicyChange, Identity: who, ContentKey: bytes.Clone(contentKey), Policy: policy}
}

// SomethingStoredEvent reports a counter value stored by who.
func SomethingStoredEvent(value uint32, who Identity) Event {
	return Event{Kind: EventSomethingStored, Value: value, Identity: who}
}

// SameNotification reports whether e and other carry the same notification,
// ignoring the position fields assigned at commit.
func (e Event) SameNotification(other Event) bool {
	return e.Kind == other.Kind &&
		e.Identity == other.Identity &&
		bytes.Equal(e.ContentKey, other.ContentKey) &&
		e.Policy == other.Policy &&
		e.Value == other.Value
}
