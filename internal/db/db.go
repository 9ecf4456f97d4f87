// Package db declares the storage primitives the repositories are built on.
// The Redis implementation lives in db/redis; repositories depend on narrow
// local interfaces that are subsets of Store.
package db

import (
	"context"
	"time"
)

// Store is everything db/redis.Store provides.
//
//nolint:interfacebloat // only asserted against; consumers declare their own subsets
type Store interface {
	Ping(ctx context.Context) error
	WaitForReady(ctx context.Context, timeout time.Duration) error
	Close()

	Hashes
	Values
	Indexes
	Searcher
}

// HashSetItem is one key and its fields, for pipelined HSET.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// Hashes stores documents and chunks as Redis hashes.
type Hashes interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []HashSetItem) error
	// HSetIfExists never recreates a missing hash; it reports false instead.
	HSetIfExists(ctx context.Context, key string, fields map[string]string) (bool, error)
	// HGetAll returns ErrKeyNotFound for a missing or empty hash.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	DelMulti(ctx context.Context, keys []string) (int, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Values backs the embedding cache, the token budget counters and the ingestion lock.
type Values interface {
	// Get returns ErrKeyNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX reports false when the key already exists.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// DelIfEqual deletes key only while it still holds value.
	DelIfEqual(ctx context.Context, key string, value []byte) (bool, error)
	IncrBy(ctx context.Context, key string, val int64) error
	// Expire with nx leaves an existing TTL untouched.
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Indexes manages FT indexes. CreateIndex returns ErrIndexExists for a duplicate name.
type Indexes interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	// SupportsTextSearch is false on Valkey, which has no TEXT fields.
	SupportsTextSearch(ctx context.Context) bool
}

// Searcher runs FT.SEARCH queries.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
	SearchBM25(ctx context.Context, q *TextQuery) (*SearchResult, error)
	SearchList(ctx context.Context, q *ListQuery) (*SearchResult, error)
	SearchCount(ctx context.Context, q *ListQuery) (int, error)
}
