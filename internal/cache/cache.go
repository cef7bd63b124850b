// Package cache stores generation responses keyed by the request that
// produced them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// Entry is a cached response body.
type Entry struct {
	Key       string
	Value     []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Cache is a TTL key/value store. Get returns (nil, nil) on a miss or an
// expired entry.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Key returns the hex SHA-256 of v's JSON encoding. Map keys are sorted by
// encoding/json, so equal requests always hash the same.
func Key(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "cache: marshal key")
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
