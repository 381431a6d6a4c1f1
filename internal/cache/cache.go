// Package cache holds the session cache: short-lived user projections keyed
// by entity and id. It is advisory only; a miss or an unavailable backend
// never changes the outcome of a use case.
package cache

import (
	"context"
	"time"
)

// SessionCache stores JSON-encodable values under string keys with a TTL.
type SessionCache interface {
	// Get decodes the value at key into dest and reports whether it was found.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
}

// UserKey is the key of a user's cached projection.
func UserKey(userID string) string { return "user:" + userID }

// Nop never stores anything. It backs SESSION_CACHE_ENABLED=false.
type Nop struct{}

func (Nop) Get(context.Context, string, any) (bool, error)        { return false, nil }
func (Nop) Set(context.Context, string, any, time.Duration) error { return nil }
func (Nop) Remove(context.Context, string) error                  { return nil }

var (
	_ SessionCache = Nop{}
	_ SessionCache = (*Redis)(nil)
	_ SessionCache = (*Memory)(nil)
)
