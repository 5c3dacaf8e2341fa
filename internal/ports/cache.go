package ports

import (
	"context"
	"time"
)

// Cache is a generic key-value capability used for best-effort shortcuts
// (app↔room lookups, source cursors). Adapters may be backed by SQLite,
// Redis or other stores. A zero ttl means "no expiry" where the backend
// supports it.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
