// Package contentledger provides a content-registration and access-control
// ledger with a pluggable repository and event sink.
//
// It exposes a single Service interface that registers content under a
// derived content key, grants and revokes leases on that content and keeps
// a per-subject access policy for every content key. Only metadata is
// recorded (key, fingerprint, creation timestamp and sequence marker); the
// content blob itself lives elsewhere. Repository implementations (memory,
// SQLite, Postgres) and event sinks (log, S3 archive, webhook) are provided
// under subpackages.
//
// Access Policy State Machine
//
// Every (subject, content key) pair is in exactly one state:
//
//	(absent) -> ContentOwner                    (content creation)
//	(absent) -> ContentLeaseAssigned            (lease)
//	ContentLeaseAssigned -> ContentLeaseRevoked (revocation)
//
// An absent entry reads as NotAccessible, but only an absent entry can be
// leased: an explicit NotAccessible entry is a denial and is never upgraded.
// Content creation re-derives its key rather than take a key on which the
// creator already holds an entry.
//
// Transactions
//
// Every operation runs inside Repository.Atomic. Failed operations leave no
// writes behind and publish no events; committed operations publish their
// events in emission order after the commit.
package contentledger
