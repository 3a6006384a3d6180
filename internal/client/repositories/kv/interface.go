package kv

import (
	"context"
)

type Store interface {
	// Put inserts or replaces the value stored under (namespace, key).
	Put(ctx context.Context, namespace, key string, value []byte) error

	// Get returns (nil, nil) when nothing is stored under (namespace, key).
	Get(ctx context.Context, namespace, key string) ([]byte, error)

	// Delete is idempotent.
	Delete(ctx context.Context, namespace, key string) error

	// Clear removes every key of the namespace.
	Clear(ctx context.Context, namespace string) error

	// ClearAll wipes several namespaces atomically.
	ClearAll(ctx context.Context, namespaces ...string) error

	Close() error
}
