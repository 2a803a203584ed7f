// Package store is the storage boundary for the messaging engine. The
// domain packages talk to the Store interface only; Pebble backs it in
// production and Memory backs it in tests.
package store

import "errors"

var (
	// ErrNotFound is returned by Get and Update for a missing key.
	ErrNotFound = errors.New("store: key not found")
	// ErrConflict is returned by Insert when the key already exists. It
	// is the primitive behind the direct-conversation dedup invariant.
	ErrConflict = errors.New("store: key exists")
)

// Store is a key/value document store with the two atomic primitives the
// engine needs: conditional insert and per-document read-modify-write.
// Scan visits keys in ascending byte order.
type Store interface {
	Get(key string) ([]byte, error)
	// Insert writes the value only if the key is absent; ErrConflict
	// otherwise. Concurrent inserts of the same key admit exactly one.
	Insert(key string, value []byte) error
	Put(key string, value []byte) error
	// Update applies mutate to the current value and writes the result
	// atomically with respect to other Insert/Update/Put calls.
	// ErrNotFound when the key is absent; mutate errors pass through and
	// leave the value untouched. mutate must not call back into the
	// store: the implementation holds its write lock for the duration.
	Update(key string, mutate func(cur []byte) ([]byte, error)) error
	Delete(key string) error
	// Scan visits every key with the prefix in ascending order. A
	// non-nil error from fn stops the scan and is returned.
	Scan(prefix string, fn func(key string, value []byte) error) error
	Close() error
}
