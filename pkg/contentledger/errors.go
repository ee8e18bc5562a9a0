package contentledger

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrContentNotFound indicates no content exists under the (owner, content key) pair
	ErrContentNotFound = errors.New("content not found")

	// ErrContentNotAccessible indicates the subject's policy entry denies access
	ErrContentNotAccessible = errors.New("content not accessible")

	// ErrContentAlreadyAccessibleByAccount indicates the subject already holds a policy entry
	ErrContentAlreadyAccessibleByAccount = errors.New("content already accessible by account")

	// ErrInvalidPolicyTransition indicates the requested policy change is not allowed from the current state
	ErrInvalidPolicyTransition = errors.New("invalid access policy transition")

	// ErrValueAbsent indicates the counter has never been stored
	ErrValueAbsent = errors.New("value absent")

	// ErrOverflow indicates incrementing the counter would overflow
	ErrOverflow = errors.New("storage overflow")

	// ErrUnauthenticated indicates the request carries no signer identity
	ErrUnauthenticated = errors.New("caller is not authenticated")

	// ErrInvalidSubject indicates a lease names no target identity
	ErrInvalidSubject = errors.New("subject identity is required")

	// ErrInvalidContentKey indicates a content key could not be parsed
	ErrInvalidContentKey = errors.New("invalid content key")

	// ErrContentKeyExists indicates a derived key collided with content already stored for the owner
	ErrContentKeyExists = errors.New("content key already exists for owner")

	// ErrReadOnly indicates a write was attempted through a read-only view
	ErrReadOnly = errors.New("write in read-only transaction")
)

// LedgerError represents an error related to a ledger operation
type LedgerError struct {
	Op         string
	Identity   Identity
	ContentKey []byte
	Err        error
}

func (e *LedgerError) Error() string {
	if len(e.ContentKey) == 0 {
		return fmt.Sprintf("ledger operation %s failed for %q: %v", e.Op, e.Identity, e.Err)
	}
	return fmt.Sprintf("ledger operation %s failed for %q on content %s: %v",
		e.Op, e.Identity, FormatContentKey(e.ContentKey), e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}
