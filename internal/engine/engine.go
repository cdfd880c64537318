// Package engine wires the query pipeline together: normalize, consult both
// cache tiers, retrieve, generate, score, and write back. The engine is the
// only component that sees the whole lifecycle; everything below it is a
// single-purpose stage.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dthille/corpusqa/internal/cache"
	"github.com/dthille/corpusqa/internal/config"
	"github.com/dthille/corpusqa/internal/confidence"
	"github.com/dthille/corpusqa/internal/embedder"
	"github.com/dthille/corpusqa/internal/generator"
	"github.com/dthille/corpusqa/internal/index"
	"github.com/dthille/corpusqa/internal/normalizer"
	"github.com/dthille/corpusqa/internal/observability"
	"github.com/dthille/corpusqa/internal/retriever"
	"github.com/dthille/corpusqa/pkg/types"
)

// ErrEmptyQuery is returned when a query normalizes to nothing.
var ErrEmptyQuery = errors.New("query is empty after normalization")

// Cache tier labels attached to answers.
const (
	TierExact    = "exact"
	TierSemantic = "semantic"
)

// Engine orchestrates the answer pipeline.
type Engine struct {
	cfg       *config.Config
	corpus    *index.Corpus
	exact     *cache.Exact
	semantic  *cache.Semantic
	retriever *retriever.Hybrid
	embedder  embedder.Client
	generator generator.Client
	scorer    *confidence.Scorer
	metrics   *observability.Metrics
	logger    *zap.Logger

	// group coalesces concurrent requests that share a fingerprint so the
	// backend does the work once.
	group singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics attaches a counter set.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithStore attaches a durable cache store shared by both tiers.
func WithStore(store *cache.SQLStore) Option {
	return func(e *Engine) {
		e.exact = cache.NewExact(e.cfg.Cache.ExactCapacity, e.cfg.Cache.ExactTTL, e.logger,
			exactOptions(e.cfg, cache.WithStore(store))...)
		e.semantic = cache.NewSemantic(e.cfg.Cache.SemanticCapacity, e.cfg.Cache.SimilarityThreshold,
			e.cfg.Cache.SemanticTTL, e.logger, cache.WithSemanticStore(store))
	}
}

func exactOptions(cfg *config.Config, extra ...cache.ExactOption) []cache.ExactOption {
	var opts []cache.ExactOption
	if cfg.Cache.SlidingTTL {
		opts = append(opts, cache.WithSlidingTTL())
	}
	return append(opts, extra...)
}

// New assembles an engine from its external dependencies. Caches, retriever,
// and scorer are built from configuration.
func New(cfg *config.Config, corpus *index.Corpus, emb embedder.Client, gen generator.Client, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:       cfg,
		corpus:    corpus,
		retriever: retriever.NewHybrid(corpus, cfg.Retrieval, logger),
		embedder:  emb,
		generator: gen,
		scorer:    confidence.NewScorer(cfg.Confidence),
		logger:    logger,
	}
	e.exact = cache.NewExact(cfg.Cache.ExactCapacity, cfg.Cache.ExactTTL, logger, exactOptions(cfg)...)
	e.semantic = cache.NewSemantic(cfg.Cache.SemanticCapacity, cfg.Cache.SimilarityThreshold,
		cfg.Cache.SemanticTTL, logger)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ask answers a query. Concurrent calls with the same normalized form share a
// single pipeline execution. Duration is measured per caller even when the
// underlying work was shared.
func (e *Engine) Ask(ctx context.Context, queryText string) (*types.Answer, error) {
	start := time.Now()
	query := types.Query{Text: queryText, ReceivedAt: start}

	nq := normalizer.Normalize(query.Text)
	if nq.Text == "" {
		return nil, ErrEmptyQuery
	}
	fp := types.FingerprintOf(nq)

	v, err, shared := e.group.Do(string(fp[:]), func() (any, error) {
		return e.answer(ctx, query, nq, fp)
	})
	if shared {
		e.metrics.Coalesced()
	}
	if err != nil {
		return nil, err
	}

	// Copy before setting per-caller fields; coalesced callers share v.
	out := *v.(*types.Answer)
	out.Duration = time.Since(start)
	return &out, nil
}

func (e *Engine) answer(ctx context.Context, query types.Query, nq types.NormalizedQuery, fp types.Fingerprint) (*types.Answer, error) {
	if ent, ok := e.exact.Lookup(fp); ok {
		e.metrics.ExactHit()
		e.logger.Debug("exact cache hit", zap.String("query", nq.Text))
		return e.cachedAnswer(ent, TierExact, query.Text), nil
	}
	e.metrics.ExactMiss()

	queryVec, err := e.encode(ctx, nq)
	if err != nil {
		return nil, err
	}

	if len(queryVec) > 0 {
		if ent, sim, ok := e.semantic.Lookup(queryVec); ok {
			e.metrics.SemanticHit()
			e.logger.Debug("semantic cache hit",
				zap.String("query", nq.Text), zap.Float64("similarity", sim))
			return e.cachedAnswer(ent, TierSemantic, query.Text), nil
		}
		e.metrics.SemanticMiss()
	}

	results, err := e.retriever.Retrieve(ctx, nq, queryVec, e.cfg.Retrieval.TopK)
	if err != nil {
		return nil, wrapTimeout(err)
	}
	e.metrics.Retrieval()

	text, fallback, err := e.generate(ctx, query.Text, results)
	if err != nil {
		return nil, err
	}

	citations := citationsOf(results)

	// Fallback answers are never cached; a transient outage must not pin a
	// canned answer for the TTL. A cancelled request is not cached either.
	if !fallback && ctx.Err() == nil {
		e.exact.Store(fp, text, citations)
		if len(queryVec) > 0 {
			e.semantic.Store(queryVec, text, citations)
		}
	}

	return &types.Answer{
		Text:       text,
		Citations:  citations,
		Confidence: e.scorer.Score(text, results, query.Text),
	}, nil
}

// encode embeds the normalized query. An unreachable embedding service is a
// degradation, not a failure: retrieval continues lexical-only.
func (e *Engine) encode(ctx context.Context, nq types.NormalizedQuery) (types.EmbeddingVector, error) {
	if e.embedder == nil {
		return nil, nil
	}
	vec, err := e.embedder.Encode(ctx, nq.Text)
	if err == nil {
		return vec, nil
	}
	if errors.Is(err, types.ErrEncodingUnavailable) {
		e.logger.Warn("embedding unavailable, degrading to lexical-only retrieval", zap.Error(err))
		return nil, nil
	}
	return nil, wrapTimeout(err)
}

func (e *Engine) generate(ctx context.Context, queryText string, results []types.SearchResult) (text string, fallback bool, err error) {
	text, err = e.generator.Complete(ctx, buildPrompt(queryText, results))
	e.metrics.Generation()
	if err == nil {
		return text, false, nil
	}
	if errors.Is(err, types.ErrGenerationUnavailable) {
		e.metrics.Fallback()
		e.logger.Warn("generation unavailable, serving fallback answer", zap.Error(err))
		return generator.FallbackText, true, nil
	}
	return "", false, wrapTimeout(err)
}

func (e *Engine) cachedAnswer(ent cache.Entry, tier, queryText string) *types.Answer {
	return &types.Answer{
		Text:       ent.Answer,
		Citations:  ent.Citations,
		Confidence: e.scorer.Score(ent.Answer, resultsFromCitations(ent.Citations), queryText),
		CacheTier:  tier,
	}
}

// Search runs retrieval only: normalize, encode, and rank passages without
// touching the answer caches or the generator.
func (e *Engine) Search(ctx context.Context, queryText string, k int) ([]types.SearchResult, error) {
	nq := normalizer.Normalize(queryText)
	if nq.Text == "" {
		return nil, ErrEmptyQuery
	}

	queryVec, err := e.encode(ctx, nq)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = e.cfg.Retrieval.TopK
	}

	results, err := e.retriever.Retrieve(ctx, nq, queryVec, k)
	if err != nil {
		return nil, wrapTimeout(err)
	}
	e.metrics.Retrieval()
	return results, nil
}

// Metrics returns the current counter snapshot.
func (e *Engine) Metrics() observability.Snapshot { return e.metrics.Snapshot() }

// CacheSizes reports the live entry counts of both tiers.
func (e *Engine) CacheSizes() (exact, semantic int) {
	return e.exact.Len(), e.semantic.Len()
}

// PurgeCaches drops every cached answer from both tiers.
func (e *Engine) PurgeCaches() {
	e.exact.Purge()
	e.semantic.Purge()
}

// RunMaintenance sweeps expired entries from both tiers every interval until
// ctx is cancelled.
func (e *Engine) RunMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := e.exact.EvictExpired() + e.semantic.EvictExpired()
				if removed > 0 {
					e.logger.Debug("evicted expired cache entries", zap.Int("removed", removed))
				}
			}
		}
	}()
}

// Close releases the engine's external clients.
func (e *Engine) Close() error {
	var errs []error
	if e.embedder != nil {
		errs = append(errs, e.embedder.Close())
	}
	if e.generator != nil {
		errs = append(errs, e.generator.Close())
	}
	return errors.Join(errs...)
}

func buildPrompt(queryText string, results []types.SearchResult) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below. If the context does not contain the answer, say so.\n\nContext:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "[%d] %s\n", r.Rank, r.Passage.Text)
	}
	if len(results) == 0 {
		b.WriteString("(no relevant passages found)\n")
	}
	fmt.Fprintf(&b, "\nQuestion: %s\nAnswer:", queryText)
	return b.String()
}

func citationsOf(results []types.SearchResult) []types.Citation {
	if len(results) == 0 {
		return nil
	}
	citations := make([]types.Citation, len(results))
	for i, r := range results {
		citations[i] = types.Citation{
			PassageID: r.Passage.ID,
			SourceURL: r.Passage.SourceURL,
			Score:     r.FusedScore,
		}
	}
	return citations
}

// resultsFromCitations rebuilds enough retrieval shape from stored citations
// for the confidence scorer, which only looks at source count.
func resultsFromCitations(citations []types.Citation) []types.SearchResult {
	if len(citations) == 0 {
		return nil
	}
	results := make([]types.SearchResult, len(citations))
	for i, c := range citations {
		results[i] = types.SearchResult{
			Passage:    &types.PassageRecord{ID: c.PassageID, SourceURL: c.SourceURL},
			FusedScore: c.Score,
			Rank:       i + 1,
		}
	}
	return results
}

func wrapTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", types.ErrRetrievalTimeout, err)
	}
	return err
}
