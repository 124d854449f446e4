package store

import (
	"context"
)

// KV is the persistent key-value collaborator the engine keeps its queue,
// mirror and bookkeeping in. Values are opaque strings (JSON documents).
type KV interface {
	// Get returns found=false, and no error, for a key that was never set
	// or has been removed.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error

	// General
	Close() error
}
