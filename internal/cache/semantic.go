package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dthille/corpusqa/pkg/types"
)

type semanticEntry struct {
	vec   types.EmbeddingVector
	entry *Entry
}

// Semantic is the embedding-keyed answer cache. Lookup is nearest-neighbor
// under cosine similarity: a stored answer is reused only when its query
// embedding is at least threshold-similar to the incoming one.
type Semantic struct {
	mu        sync.Mutex
	entries   []semanticEntry
	capacity  int
	threshold float64
	ttl       time.Duration
	now       func() time.Time
	store     *SQLStore
	logger    *zap.Logger

	degraded atomic.Bool
}

// SemanticOption configures a Semantic cache.
type SemanticOption func(*Semantic)

// WithSemanticClock overrides the time source for tests.
func WithSemanticClock(now func() time.Time) SemanticOption {
	return func(s *Semantic) { s.now = now }
}

// WithSemanticStore attaches a durable backing store and warm-loads any
// persisted entries. Store failures degrade to memory-only operation.
func WithSemanticStore(store *SQLStore) SemanticOption {
	return func(s *Semantic) { s.store = store }
}

// NewSemantic creates a semantic cache bounded to capacity entries. threshold
// is the minimum cosine similarity for a hit.
func NewSemantic(capacity int, threshold float64, ttl time.Duration, logger *zap.Logger, opts ...SemanticOption) *Semantic {
	if capacity <= 0 {
		capacity = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Semantic{
		entries:   make([]semanticEntry, 0, capacity),
		capacity:  capacity,
		threshold: threshold,
		ttl:       ttl,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store != nil {
		s.warmLoad()
	}
	return s
}

func (s *Semantic) warmLoad() {
	records, err := s.store.LoadSemantic()
	if err != nil {
		s.degrade("semantic warm load", err)
		return
	}
	now := s.now()
	for _, rec := range records {
		if s.ttl > 0 && now.Sub(rec.entry.CreatedAt) > s.ttl {
			continue
		}
		if len(s.entries) >= s.capacity {
			break
		}
		s.entries = append(s.entries, rec)
	}
}

// Lookup returns the best stored entry whose embedding is at least
// threshold-similar to vec, along with its similarity. Ties break by highest
// similarity, then by most recent creation. Expired entries are dropped
// lazily. Never returns a match below the threshold.
func (s *Semantic) Lookup(vec types.EmbeddingVector) (Entry, float64, bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropExpiredLocked(now)

	bestIdx := -1
	bestSim := 0.0
	for i := range s.entries {
		sim := vec.Cosine(s.entries[i].vec)
		if sim < s.threshold {
			continue
		}
		better := sim > bestSim
		if sim == bestSim && bestIdx >= 0 {
			better = s.entries[i].entry.CreatedAt.After(s.entries[bestIdx].entry.CreatedAt)
		}
		if bestIdx < 0 || better {
			bestIdx = i
			bestSim = sim
		}
	}

	if bestIdx < 0 {
		return Entry{}, 0, false
	}

	ent := s.entries[bestIdx].entry
	ent.LastAccess = now
	ent.Hits++
	return ent.clone(), bestSim, true
}

// Store inserts an entry keyed by the query embedding, overwriting any entry
// with an identical embedding and resetting its creation time. When capacity
// is exceeded the least-recently-accessed entry is evicted.
func (s *Semantic) Store(vec types.EmbeddingVector, answer string, citations []types.Citation) {
	now := s.now()
	ent := &Entry{
		Answer:     answer,
		Citations:  citations,
		CreatedAt:  now,
		LastAccess: now,
	}

	s.mu.Lock()
	replaced := false
	for i := range s.entries {
		if vectorsEqual(s.entries[i].vec, vec) {
			s.entries[i].entry = ent
			replaced = true
			break
		}
	}
	if !replaced {
		s.entries = append(s.entries, semanticEntry{vec: vec.Clone(), entry: ent})
		s.evictOverCapacityLocked()
	}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveSemantic(vec, ent, s.ttl); err != nil {
			s.degrade("semantic store", err)
		}
	}
}

// EvictExpired removes all expired entries and returns how many were removed.
func (s *Semantic) EvictExpired() int {
	now := s.now()

	s.mu.Lock()
	before := len(s.entries)
	s.dropExpiredLocked(now)
	removed := before - len(s.entries)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.EvictExpired(now); err != nil {
			s.degrade("semantic evict", err)
		}
	}
	return removed
}

// Len returns the current entry count.
func (s *Semantic) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Purge drops every entry.
func (s *Semantic) Purge() {
	s.mu.Lock()
	s.entries = s.entries[:0]
	s.mu.Unlock()
}

// Degraded reports whether the durable store has failed at least once.
func (s *Semantic) Degraded() bool { return s.degraded.Load() }

func (s *Semantic) dropExpiredLocked(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	kept := s.entries[:0]
	for _, se := range s.entries {
		if now.Sub(se.entry.CreatedAt) <= s.ttl {
			kept = append(kept, se)
		}
	}
	s.entries = kept
}

func (s *Semantic) evictOverCapacityLocked() {
	for len(s.entries) > s.capacity {
		victim := 0
		for i := 1; i < len(s.entries); i++ {
			if s.entries[i].entry.LastAccess.Before(s.entries[victim].entry.LastAccess) {
				victim = i
			}
		}
		s.entries = append(s.entries[:victim], s.entries[victim+1:]...)
	}
}

func (s *Semantic) degrade(op string, err error) {
	if s.degraded.CompareAndSwap(false, true) {
		s.logger.Warn("durable cache store failed, continuing in-memory only",
			zap.String("op", op), zap.Error(err))
		return
	}
	s.logger.Debug("durable cache store error", zap.String("op", op), zap.Error(err))
}

func vectorsEqual(a, b types.EmbeddingVector) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
