// Package ratelimit provides the storage bridge and fixed-window limiter for
// authentication endpoints. The store is a key to JSON-serialized-value map
// with a fixed one-hour entry expiry; it is not a general cache.
package ratelimit

import (
	"context"
	"time"
)

// EntryTTL is the fixed expiry applied to every stored entry.
const EntryTTL = time.Hour

// Store persists JSON-serialized rate limit state.
type Store interface {
	// Get unmarshals the entry for key into dest, reporting whether a live
	// entry existed.
	Get(ctx context.Context, key string, dest any) (bool, error)
	// Set marshals value and stores it under key with the fixed expiry.
	Set(ctx context.Context, key string, value any) error
}

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}
