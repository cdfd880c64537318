package cache

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/dthille/corpusqa/pkg/types"
)

// Entry is a cached answer with its bookkeeping fields. CreatedAt is reset on
// overwrite; LastAccess and Hits are updated on every hit.
type Entry struct {
	Answer     string
	Citations  []types.Citation
	CreatedAt  time.Time
	LastAccess time.Time
	Hits       int64
}

func (e *Entry) clone() Entry {
	out := *e
	out.Citations = make([]types.Citation, len(e.Citations))
	copy(out.Citations, e.Citations)
	return out
}

// defaultShardCount balances lock granularity against per-shard capacity.
const defaultShardCount = 16

type shard struct {
	mu      sync.Mutex
	entries *lru.Cache[types.Fingerprint, *Entry]
}

// Exact is the fingerprint-keyed answer cache. Safe for concurrent use; the
// key space is sharded so unrelated fingerprints never share a lock.
type Exact struct {
	shards  []*shard
	ttl     time.Duration
	sliding bool
	now     func() time.Time
	store   *SQLStore
	logger  *zap.Logger

	degraded atomic.Bool
}

// ExactOption configures an Exact cache.
type ExactOption func(*Exact)

// WithShardCount overrides the shard count. Mainly for tests that need
// deterministic whole-cache LRU ordering.
func WithShardCount(n int) ExactOption {
	return func(e *Exact) {
		if n > 0 {
			e.shards = make([]*shard, n)
		}
	}
}

// WithSlidingTTL expires entries relative to last access instead of creation.
func WithSlidingTTL() ExactOption {
	return func(e *Exact) { e.sliding = true }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) ExactOption {
	return func(e *Exact) { e.now = now }
}

// WithStore attaches a durable backing store. Store failures degrade the
// cache to memory-only operation; they are never surfaced to callers.
func WithStore(store *SQLStore) ExactOption {
	return func(e *Exact) { e.store = store }
}

// NewExact creates an exact cache bounded to capacity entries with the given
// TTL. Total entry count across all shards never exceeds capacity.
func NewExact(capacity int, ttl time.Duration, logger *zap.Logger, opts ...ExactOption) *Exact {
	if capacity <= 0 {
		capacity = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Exact{
		shards: make([]*shard, defaultShardCount),
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}

	n := len(e.shards)
	if n > capacity {
		n = capacity
		e.shards = make([]*shard, n)
	}

	// Distribute capacity so the shard capacities sum to exactly the
	// configured bound.
	base, extra := capacity/n, capacity%n
	for i := range e.shards {
		size := base
		if i < extra {
			size++
		}
		c, err := lru.New[types.Fingerprint, *Entry](size)
		if err != nil {
			// Only possible with a non-positive size, which the split above
			// cannot produce.
			panic(err)
		}
		e.shards[i] = &shard{entries: c}
	}
	return e
}

func (e *Exact) shardFor(fp types.Fingerprint) *shard {
	return e.shards[int(fp[0])%len(e.shards)]
}

func (e *Exact) expired(ent *Entry, now time.Time) bool {
	if e.ttl <= 0 {
		return false
	}
	anchor := ent.CreatedAt
	if e.sliding {
		anchor = ent.LastAccess
	}
	return now.Sub(anchor) > e.ttl
}

// Lookup returns the cached entry for a fingerprint, recording the access.
// Expired entries are removed lazily and reported as misses.
func (e *Exact) Lookup(fp types.Fingerprint) (Entry, bool) {
	now := e.now()
	s := e.shardFor(fp)

	s.mu.Lock()
	ent, ok := s.entries.Get(fp)
	if ok {
		if e.expired(ent, now) {
			s.entries.Remove(fp)
			s.mu.Unlock()
			return Entry{}, false
		}
		ent.LastAccess = now
		ent.Hits++
		out := ent.clone()
		s.mu.Unlock()
		return out, true
	}
	s.mu.Unlock()

	// Read through the durable store on a memory miss.
	if e.store == nil {
		return Entry{}, false
	}
	ent, found, err := e.store.LoadExact(fp)
	if err != nil {
		e.degrade("exact lookup", err)
		return Entry{}, false
	}
	if !found || e.expired(ent, now) {
		return Entry{}, false
	}

	ent.LastAccess = now
	ent.Hits++
	s.mu.Lock()
	s.entries.Add(fp, ent)
	out := ent.clone()
	s.mu.Unlock()
	return out, true
}

// Store inserts or overwrites the entry for a fingerprint, resetting its
// creation time. The least-recently-accessed entry in the shard is evicted
// when capacity is exceeded.
func (e *Exact) Store(fp types.Fingerprint, answer string, citations []types.Citation) {
	now := e.now()
	ent := &Entry{
		Answer:     answer,
		Citations:  citations,
		CreatedAt:  now,
		LastAccess: now,
	}

	s := e.shardFor(fp)
	s.mu.Lock()
	s.entries.Add(fp, ent)
	s.mu.Unlock()

	if e.store != nil {
		if err := e.store.SaveExact(fp, ent, e.ttl); err != nil {
			e.degrade("exact store", err)
		}
	}
}

// EvictExpired removes all expired entries and returns how many were removed.
func (e *Exact) EvictExpired() int {
	now := e.now()
	removed := 0
	for _, s := range e.shards {
		s.mu.Lock()
		for _, fp := range s.entries.Keys() {
			if ent, ok := s.entries.Peek(fp); ok && e.expired(ent, now) {
				s.entries.Remove(fp)
				removed++
			}
		}
		s.mu.Unlock()
	}

	if e.store != nil {
		if err := e.store.EvictExpired(now); err != nil {
			e.degrade("exact evict", err)
		}
	}
	return removed
}

// Len returns the current entry count across all shards.
func (e *Exact) Len() int {
	total := 0
	for _, s := range e.shards {
		s.mu.Lock()
		total += s.entries.Len()
		s.mu.Unlock()
	}
	return total
}

// Purge drops every entry.
func (e *Exact) Purge() {
	for _, s := range e.shards {
		s.mu.Lock()
		s.entries.Purge()
		s.mu.Unlock()
	}
}

func (e *Exact) degrade(op string, err error) {
	if e.degraded.CompareAndSwap(false, true) {
		e.logger.Warn("durable cache store failed, continuing in-memory only",
			zap.String("op", op), zap.Error(err))
		return
	}
	e.logger.Debug("durable cache store error", zap.String("op", op), zap.Error(err))
}

// Degraded reports whether the durable store has failed at least once.
func (e *Exact) Degraded() bool { return e.degraded.Load() }
