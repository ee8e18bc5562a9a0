package contentledger

import (
	"fmt"
	"strings"
)

// AccessPolicy is the relationship between a subject and a content key.
// The zero value is NotAccessible.
type AccessPolicy uint8

const (
	NotAccessible AccessPolicy = iota
	ContentOwner
	ContentLeaseAssigned
	ContentLeaseRevoked
)

var accessPolicyNames = [...]string{
	NotAccessible:        "not_accessible",
	ContentOwner:         "content_owner",
	ContentLeaseAssigned: "content_lease_assigned",
	ContentLeaseRevoked:  "content_lease_revoked",
}

// String returns the snake_case name of the policy.
func (p AccessPolicy) String() string {
	if int(p) < len(accessPolicyNames) {
		return accessPolicyNames[p]
	}
	return fmt.Sprintf("access_policy(%d)", uint8(p))
}

// IsValid reports whether p is one of the declared policies.
func (p AccessPolicy) IsValid() bool {
	return int(p) < len(accessPolicyNames)
}

// GrantsAccess reports whether a subject holding p may access the content.
func (p AccessPolicy) GrantsAccess() bool {
	return p == ContentOwner || p == ContentLeaseAssigned
}

// ParseAccessPolicy parses the name produced by String.
func ParseAccessPolicy(s string) (AccessPolicy, error) {
	for i, name := range accessPolicyNames {
		if strings.EqualFold(s, name) {
			return AccessPolicy(i), nil
		}
	}
	return NotAccessible, fmt.Errorf("unknown access policy %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p AccessPolicy) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid access policy %d", uint8(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *AccessPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseAccessPolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// policyTransitions lists the allowed moves out of a stored entry.
var policyTransitions = map[AccessPolicy][]AccessPolicy{
	ContentLeaseAssigned: {ContentLeaseRevoked},
}

// ValidatePolicyTransition checks whether a subject whose current entry is
// (current, present) may move to next, and returns the error the ledger
// reports when it may not. present is false for a subject with no entry at
// all, which is distinct from an explicit NotAccessible entry.
func ValidatePolicyTransition(current AccessPolicy, present bool, next AccessPolicy) error {
	switch next {
	case ContentOwner:
		// Owners are only ever written by content creation into a fresh key.
		if present {
			return ErrContentAlreadyAccessibleByAccount
		}
		return nil
	case ContentLeaseAssigned:
		if !present {
			return nil
		}
		if current == NotAccessible {
			return ErrContentNotAccessible
		}
		return ErrContentAlreadyAccessibleByAccount
	case ContentLeaseRevoked:
		if !present || current == NotAccessible {
			return ErrContentNotAccessible
		}
	}

	if !present {
		return ErrInvalidPolicyTransition
	}
	for _, allowed := range policyTransitions[current] {
		if allowed == next {
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidPolicyTransition, current, next)
}
