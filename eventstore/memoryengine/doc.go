// Package memoryengine provides an in-memory eventstore.Store.
//
// Events live in a map keyed by id, guarded by a sync.RWMutex. Replacement of replaceable and
// addressable events happens under the write lock, so two concurrent publishes for the same
// (pubkey, kind[, d]) slot can never leave two stored events.
//
// Nothing is persisted across restarts.
package memoryengine
