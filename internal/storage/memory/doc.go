// Package memory provides the in-memory key-value store for Cardinal.
//
// The store holds sixteen numbered databases of string keys and
// values with optional expiry.
//
// Expiry:
//
// Expired entries are removed lazily: a read that finds an expired
// entry deletes it and reports a miss. There is no background
// sweeper, so an entry that is never read again stays in memory
// until the next snapshot load replaces the store.
//
// Thread Safety:
//
// All operations are thread-safe through a single reader-writer
// lock covering every database. Read operations use RLock, write
// operations use Lock.
package memory
