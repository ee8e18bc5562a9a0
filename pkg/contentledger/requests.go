package contentledger

// Request/Response DTOs for service operations

// CreateContentRequest contains parameters for registering content
type CreateContentRequest struct {
	Caller      Identity
	Fingerprint []byte
}

// LeaseContentRequest contains parameters for granting a lease. The content
// is looked up under the caller's own identity; the lease goes to Subject.
type LeaseContentRequest struct {
	Caller     Identity
	ContentKey []byte
	Subject    Identity
}

// RevokeLeaseRequest contains parameters for revoking a lease
type RevokeLeaseRequest struct {
	Caller     Identity
	ContentKey []byte
	Subject    Identity
}

// GetContentRequest identifies one content item
type GetContentRequest struct {
	Owner      Identity
	ContentKey []byte
}

// AccessPolicyRequest identifies one access policy entry
type AccessPolicyRequest struct {
	Subject    Identity
	ContentKey []byte
}
