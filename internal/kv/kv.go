// Package kv provides the key-value engines behind the memory and badger
// datastores. Keys are hierarchical paths (e.g. ["file", "stash", "a.pdf"])
// encoded with ':' between segments, the same separator used for file keys.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned by Get when a key does not exist.
var ErrNotFound = errors.New("kv: not found")

// Separator joins key segments in the encoded form.
const Separator = ':'

// Key is a hierarchical path. Segments must not contain Separator.
type Key []string

// String returns the encoded form of the key.
func (k Key) String() string {
	return strings.Join(k, string(Separator))
}

// Entry is a key-value pair yielded by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with path-based keys.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair, overwriting any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. No error if the key does not exist.
	Delete(ctx context.Context, key Key) error

	// List iterates over entries whose key starts with prefix, in
	// lexicographic order of the encoded key. An empty prefix lists everything.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// Close releases any resources held by the store.
	Close() error
}

// encode converts a key to bytes.
func encode(k Key) []byte {
	return []byte(k.String())
}

// decode converts bytes back to a key.
func decode(b []byte) Key {
	return Key(strings.Split(string(b), string(Separator)))
}

// prefixBytes returns the scan prefix for prefix. A trailing separator keeps
// "a:b" from matching "a:bc".
func prefixBytes(prefix Key) []byte {
	if len(prefix) == 0 {
		return nil
	}
	return append(encode(prefix), Separator)
}
