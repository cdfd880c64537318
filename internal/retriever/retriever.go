// Package retriever implements hybrid passage retrieval: lexical and vector
// search run concurrently, their scores are normalized and fused with a
// weighted sum, and a reranker adjusts the shortlist before truncation.
package retriever

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dthille/corpusqa/internal/config"
	"github.com/dthille/corpusqa/internal/index"
	"github.com/dthille/corpusqa/pkg/types"
)

// overFetchFactor widens both candidate pools so fusion has passages to
// promote that either index alone would have cut.
const overFetchFactor = 2

// Reranker adjusts fused scores on the candidate shortlist. Implementations
// must not mutate the passages themselves.
type Reranker interface {
	Rerank(query types.NormalizedQuery, results []types.SearchResult) []types.SearchResult
}

// Hybrid fuses lexical and vector search over a shared corpus.
type Hybrid struct {
	corpus   *index.Corpus
	cfg      config.RetrievalConfig
	reranker Reranker
	logger   *zap.Logger
}

// Option customizes a Hybrid retriever.
type Option func(*Hybrid)

// WithReranker replaces the default boost reranker.
func WithReranker(r Reranker) Option {
	return func(h *Hybrid) { h.reranker = r }
}

// NewHybrid creates a retriever over the given corpus.
func NewHybrid(corpus *index.Corpus, cfg config.RetrievalConfig, logger *zap.Logger, opts ...Option) *Hybrid {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hybrid{
		corpus:   corpus,
		cfg:      cfg,
		reranker: NewBoostReranker(cfg),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Retrieve returns up to k passages for the query, ordered by fused score
// descending with ties broken by passage id. A nil query embedding degrades
// to lexical-only retrieval. An empty result set is a valid outcome, not an
// error.
func (h *Hybrid) Retrieve(ctx context.Context, query types.NormalizedQuery, queryVec types.EmbeddingVector, k int) ([]types.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	fetch := k * overFetchFactor

	var lexHits, vecHits []index.Hit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lexHits, err = h.corpus.Lexical().Search(gctx, query.Text, fetch)
		return err
	})
	if len(queryVec) > 0 {
		g.Go(func() error {
			var err error
			vecHits, err = h.corpus.Vector().Search(gctx, queryVec, fetch)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := h.fuse(lexHits, vecHits)
	if len(results) == 0 {
		return nil, nil
	}

	if h.reranker != nil {
		results = h.reranker.Rerank(query, results)
	}

	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	for i := range results {
		results[i].Rank = i + 1
	}

	h.logger.Debug("retrieval complete",
		zap.Int("lexical_hits", len(lexHits)),
		zap.Int("vector_hits", len(vecHits)),
		zap.Int("returned", len(results)))
	return results, nil
}

// fuse merges both hit lists by passage id. Scores are normalized to the best
// hit in their own list before the weighted sum, so neither index dominates
// just because its raw scale runs higher.
func (h *Hybrid) fuse(lexHits, vecHits []index.Hit) []types.SearchResult {
	lw, vw := h.cfg.LexicalWeight, h.cfg.VectorWeight
	if sum := lw + vw; sum > 0 {
		lw /= sum
		vw /= sum
	}

	lexMax := maxScore(lexHits)
	vecMax := maxScore(vecHits)

	merged := make(map[string]*types.SearchResult, len(lexHits)+len(vecHits))
	for _, hit := range lexHits {
		merged[hit.Passage.ID] = &types.SearchResult{
			Passage:      hit.Passage,
			LexicalScore: hit.Score / lexMax,
		}
	}
	for _, hit := range vecHits {
		sr, seen := merged[hit.Passage.ID]
		if !seen {
			sr = &types.SearchResult{Passage: hit.Passage}
			merged[hit.Passage.ID] = sr
		}
		sr.VectorScore = hit.Score / vecMax
	}

	results := make([]types.SearchResult, 0, len(merged))
	for _, sr := range merged {
		sr.FusedScore = lw*sr.LexicalScore + vw*sr.VectorScore
		results = append(results, *sr)
	}
	return results
}

func maxScore(hits []index.Hit) float64 {
	var best float64
	for _, h := range hits {
		if h.Score > best {
			best = h.Score
		}
	}
	if best <= 0 {
		return 1
	}
	return best
}

func sortResults(results []types.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		return results[i].Passage.ID < results[j].Passage.ID
	})
}
