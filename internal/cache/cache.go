// Package cache implements the two-level embedding cache described in
// spec.md §4.1: an in-memory bounded LRU (L1) in front of a persistent
// key-value store (L2), keyed by content hash.
package cache

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/amanmcp-labs/memoryd/internal/errs"
)

// DefaultL1Capacity is the default number of vectors kept in the in-memory tier.
const DefaultL1Capacity = 10_000

var vectorsBucket = []byte("vectors")

// Stats holds atomically-updated hit/miss counters.
type Stats struct {
	L1Hits   int64
	L1Misses int64
	L2Hits   int64
	L2Misses int64
}

// Cache is the two-level embedding cache. L1 is an in-process LRU; L2 is a
// bbolt-backed table on disk keyed by content hash. The zero value is not
// usable; construct with Open.
type Cache struct {
	l1    *lru.Cache[string, []float32]
	db    *bolt.DB
	stats Stats
}

// Open opens (creating if absent) the persistent cache file at path and
// wraps it with an L1 LRU of the given capacity (DefaultL1Capacity if ≤ 0).
func Open(path string, l1Capacity int) (*Cache, error) {
	if l1Capacity <= 0 {
		l1Capacity = DefaultL1Capacity
	}
	l1, err := lru.New[string, []float32](l1Capacity)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err)
	}

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errs.New(errs.IO, "open embedding cache file", err).WithDetail("path", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(vectorsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.Database, err)
	}

	return &Cache{l1: l1, db: db}, nil
}

// Close releases the underlying L2 handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Stats returns a snapshot of the hit/miss counters.
func (c *Cache) Stats() Stats {
	return Stats{
		L1Hits:   atomic.LoadInt64(&c.stats.L1Hits),
		L1Misses: atomic.LoadInt64(&c.stats.L1Misses),
		L2Hits:   atomic.LoadInt64(&c.stats.L2Hits),
		L2Misses: atomic.LoadInt64(&c.stats.L2Misses),
	}
}

// Get looks up hash in L1, then L2 (promoting to L1 on an L2 hit). Returns
// ok=false if absent from both tiers. L2 I/O errors are treated as a miss —
// per spec.md §4.1, L2 failures surface only when every read path failed,
// and a miss here simply causes the caller to recompute and re-Put.
func (c *Cache) Get(hash string) (vec []float32, ok bool) {
	if v, found := c.l1.Get(hash); found {
		atomic.AddInt64(&c.stats.L1Hits, 1)
		return v, true
	}
	atomic.AddInt64(&c.stats.L1Misses, 1)

	var raw []byte
	_ = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(vectorsBucket)
		v := b.Get([]byte(hash))
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if raw == nil {
		atomic.AddInt64(&c.stats.L2Misses, 1)
		return nil, false
	}
	atomic.AddInt64(&c.stats.L2Hits, 1)
	vec = decodeVector(raw)
	c.l1.Add(hash, vec)
	return vec, true
}

// Put writes vec to both tiers under hash. The L2 write is a single bbolt
// transaction, which fsyncs by default, satisfying the "must survive a
// crash" requirement; L1 is updated unconditionally even if the L2 write
// fails, since L1 alone must remain correct per spec.md §4.1.
func (c *Cache) Put(hash string, vec []float32) error {
	c.l1.Add(hash, vec)
	raw := encodeVector(vec)
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(vectorsBucket)
		return b.Put([]byte(hash), raw)
	})
	if err != nil {
		return errs.Wrap(errs.Database, err)
	}
	return nil
}

func encodeVector(vec []float32) []byte {
	out := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func decodeVector(raw []byte) []float32 {
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec
}
