// Package cache is the key/value store with per-entry TTL that backs both the
// query-result cache and the session state. Namespaces are key prefixes on a
// single backing store.
package cache

import (
	"context"
	"encoding/base64"
	"strings"
	"time"
)

// Store is the backing key/value contract. Every operation is individually
// atomic; no multi-key transactions are offered. Failures to reach the
// backing engine wrap models.ErrStoreUnavailable.
type Store interface {
	// Set stores value under key. ttl <= 0 means the entry does not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the live value for key, or ok=false when absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Delete(ctx context.Context, key string) error
	// ListKeys enumerates live keys with the given prefix. Administrative
	// only; implementations may scan the whole key space.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Namespace partitions the key space of a Store.
type Namespace string

const (
	SessionNamespace Namespace = "session:"
	QueryNamespace   Namespace = "cache:"
)

// Key prefixes id with the namespace.
func (n Namespace) Key(id string) string { return string(n) + id }

// ID strips the namespace prefix from key.
func (n Namespace) ID(key string) string { return strings.TrimPrefix(key, string(n)) }

// QueryKey derives the query-result cache key from the raw query text. The
// text is not normalised, so "What?" and "what?" are distinct entries.
func QueryKey(rawQuery string) string {
	return QueryNamespace.Key(base64.StdEncoding.EncodeToString([]byte(rawQuery)))
}
