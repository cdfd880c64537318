// Package observability provides the engine's structured logger and the
// injected counter set shared by the cache, retrieval, and generation layers.
package observability

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a production zap logger at the given level. Output goes to
// stderr so stdout stays free for protocol traffic.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// Metrics counts engine events. Passed into components explicitly instead of
// read from ambient state. All methods are safe for concurrent use; a nil
// *Metrics is a valid no-op receiver.
type Metrics struct {
	exactHits      atomic.Int64
	exactMisses    atomic.Int64
	semanticHits   atomic.Int64
	semanticMisses atomic.Int64
	retrievals     atomic.Int64
	generations    atomic.Int64
	fallbacks      atomic.Int64
	coalesced      atomic.Int64
}

// NewMetrics returns an empty counter set.
func NewMetrics() *Metrics { return &Metrics{} }

func (m *Metrics) ExactHit() {
	if m != nil {
		m.exactHits.Add(1)
	}
}

func (m *Metrics) ExactMiss() {
	if m != nil {
		m.exactMisses.Add(1)
	}
}

func (m *Metrics) SemanticHit() {
	if m != nil {
		m.semanticHits.Add(1)
	}
}

func (m *Metrics) SemanticMiss() {
	if m != nil {
		m.semanticMisses.Add(1)
	}
}

func (m *Metrics) Retrieval() {
	if m != nil {
		m.retrievals.Add(1)
	}
}

func (m *Metrics) Generation() {
	if m != nil {
		m.generations.Add(1)
	}
}

func (m *Metrics) Fallback() {
	if m != nil {
		m.fallbacks.Add(1)
	}
}

func (m *Metrics) Coalesced() {
	if m != nil {
		m.coalesced.Add(1)
	}
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	ExactHits      int64 `json:"exact_hits"`
	ExactMisses    int64 `json:"exact_misses"`
	SemanticHits   int64 `json:"semantic_hits"`
	SemanticMisses int64 `json:"semantic_misses"`
	Retrievals     int64 `json:"retrievals"`
	Generations    int64 `json:"generations"`
	Fallbacks      int64 `json:"fallbacks"`
	Coalesced      int64 `json:"coalesced"`
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		ExactHits:      m.exactHits.Load(),
		ExactMisses:    m.exactMisses.Load(),
		SemanticHits:   m.semanticHits.Load(),
		SemanticMisses: m.semanticMisses.Load(),
		Retrievals:     m.retrievals.Load(),
		Generations:    m.generations.Load(),
		Fallbacks:      m.fallbacks.Load(),
		Coalesced:      m.coalesced.Load(),
	}
}
