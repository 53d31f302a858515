// SPDX-License-Identifier: MIT

package match

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/teamcast/teamcast/internal/log"
	"github.com/teamcast/teamcast/internal/provider"
)

// streamCacheTTL bounds entry lifetime regardless of generation churn.
const streamCacheTTL = 48 * time.Hour

// maxGenerationLag is how many generations an entry may trail the current one
// before it stops being trusted.
const maxGenerationLag = 2

// StreamCache remembers stream-to-event resolutions across generation runs,
// keyed by a fingerprint of the normalized name plus extracted date. Entries
// expire by TTL and by generation distance so a stale mapping cannot outlive
// the event it points at.
type StreamCache struct {
	db         *badger.DB
	generation atomic.Uint64
}

type streamCacheEntry struct {
	Event      provider.Event `json:"event"`
	League     string         `json:"league"`
	Tier       string         `json:"tier"`
	Generation uint64         `json:"generation"`
	LastSeen   time.Time      `json:"last_seen"`
}

// OpenStreamCache opens (or creates) the badger store at dir. An empty dir
// opens an in-memory store, used by tests.
func OpenStreamCache(dir string) (*StreamCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &StreamCache{db: db}, nil
}

// Close releases the underlying store.
func (c *StreamCache) Close() error {
	return c.db.Close()
}

// BumpGeneration marks the start of a new matching run. Entries written more
// than maxGenerationLag runs ago stop resolving.
func (c *StreamCache) BumpGeneration() uint64 {
	return c.generation.Add(1)
}

// Get returns the cached resolution for a normalized stream name, if still
// current.
func (c *StreamCache) Get(ctx context.Context, normalized string, date *time.Time) (provider.Event, string, string, bool) {
	key := fingerprint(normalized, date)
	var entry streamCacheEntry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return provider.Event{}, "", "", false
	}

	gen := c.generation.Load()
	if gen > entry.Generation && gen-entry.Generation > maxGenerationLag {
		c.delete(ctx, key)
		return provider.Event{}, "", "", false
	}
	return entry.Event, entry.League, entry.Tier, true
}

// Put records a resolution under the current generation.
func (c *StreamCache) Put(ctx context.Context, normalized string, date *time.Time, ev provider.Event, league, tier string) {
	entry := streamCacheEntry{
		Event:      ev,
		League:     league,
		Tier:       tier,
		Generation: c.generation.Load(),
		LastSeen:   time.Now().UTC(),
	}
	val, err := json.Marshal(entry)
	if err != nil {
		return
	}
	key := fingerprint(normalized, date)
	err = c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, val).WithTTL(streamCacheTTL)
		return txn.SetEntry(e)
	})
	if err != nil {
		logger := log.WithComponentFromContext(ctx, "streamcache")
		logger.Warn().Err(err).
			Str("event", "put.failed").
			Msg("stream cache write failed")
	}
}

func (c *StreamCache) delete(ctx context.Context, key []byte) {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		logger := log.WithComponentFromContext(ctx, "streamcache")
		logger.Debug().Err(err).
			Str("event", "delete.failed").
			Msg("stale entry delete failed")
	}
}

// fingerprint hashes the normalized name and date into a stable key. The date
// is part of the key so "A vs B 03/14" and "A vs B 03/15" never collide.
func fingerprint(normalized string, date *time.Time) []byte {
	h := sha256.New()
	h.Write([]byte(normalized))
	if date != nil {
		h.Write([]byte(date.Format("2006-01-02")))
	}
	sum := h.Sum(nil)
	key := make([]byte, 0, 3+hex.EncodedLen(len(sum)))
	key = append(key, "sm:"...)
	key = hex.AppendEncode(key, sum)
	return key
}
