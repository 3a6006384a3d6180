// Package kv provides the persistent key-value layer the vault engine is
// built on.
//
// # Overview
//
// Values are opaque byte slices addressed by (namespace, key). The engine
// uses a fixed set of namespaces (see common.Namespaces): the primary blob,
// the decoy blob, the security configuration, the salt, local settings and
// rate-limiter state.
//
// Two implementations are provided:
//
//   - SQLiteStore: a single table migrated with goose, opened through
//     modernc.org/sqlite with WAL and a busy timeout.
//   - BoltStore: one bbolt bucket per namespace.
//
// Both return (nil, nil) from Get when the key does not exist.
//
// Typical Usage
//
//	store, err := kv.Open(ctx, kv.DriverSQLite, dir)
//	_ = store.Put(ctx, common.NamespaceSalt, "canonical", salt)
//	v, _ := store.Get(ctx, common.NamespaceSalt, "canonical")
package kv
