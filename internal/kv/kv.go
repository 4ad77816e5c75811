// Package kv defines the durable key-value contract the registries persist
// through. The store is the source of truth; in-memory registry maps are
// caches rehydrated from it at startup.
package kv

import "context"

// Keys used by the registries. The full key set is fixed; anything else in
// the store does not belong to this bot.
const (
	KeyMemberships    = "memberships"
	KeyActiveTickets  = "activeTickets"
	KeyClaimedTickets = "claimedTickets"
)

// Store is a durable map of opaque values by key.
type Store interface {
	// Get returns the stored value and true, or false when the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set overwrites the value for key in a single write.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes the key; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Pinger is implemented by stores with a liveness check, used by the ops
// readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}
