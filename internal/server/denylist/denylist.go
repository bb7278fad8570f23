// Package denylist implements the denial cache: token ids retired before
// their natural expiry are recorded here with a TTL equal to the token's
// remaining lifetime, and checked on every verify.
package denylist

import (
	"context"
	"time"
)

// DenyList records denied token ids and answers membership queries.
// Entries are never removed by callers; expiry is the store's job.
type DenyList interface {
	// Add marks jti as denied for ttl. A non-positive ttl means the token
	// has already expired naturally and the call is a no-op.
	Add(ctx context.Context, jti string, ttl time.Duration) error

	// Contains reports whether jti is currently denied.
	Contains(ctx context.Context, jti string) (bool, error)
}
