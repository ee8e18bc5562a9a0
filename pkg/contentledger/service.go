package contentledger

import (
	"context"
)

// Service defines the main interface for the content ledger
type Service interface {
	// Content registration
	CreateContent(ctx context.Context, req CreateContentRequest) (*ContentItem, error)
	GetContent(ctx context.Context, req GetContentRequest) (*ContentItem, error)
	ListContent(ctx context.Context, owner Identity) ([]*ContentItem, error)

	// Lease operations
	LeaseContent(ctx context.Context, req LeaseContentRequest) error
	RevokeLease(ctx context.Context, req RevokeLeaseRequest) error

	// Access policy reads
	GetAccessPolicy(ctx context.Context, req AccessPolicyRequest) (AccessPolicy, error)
	HasAccess(ctx context.Context, req AccessPolicyRequest) (bool, error)

	// Counter operations
	StoreValue(ctx context.Context, caller Identity, value uint32) error
	IncrementValue(ctx context.Context, caller Identity) (uint32, error)
	GetValue(ctx context.Context) (uint32, error)
}
