package retriever

import (
	"strings"

	"github.com/dthille/corpusqa/internal/config"
	"github.com/dthille/corpusqa/pkg/types"
)

// minKeywordLen filters short query terms out of the keyword boost; "is" and
// "to" matching everywhere would wash the boost out.
const minKeywordLen = 3

// BoostReranker nudges fused scores with two signals: passages containing
// query keywords, and passages sharing a domain term with the query. Boosts
// are additive per matching term, so a passage hitting several keywords ranks
// ahead of one hitting a single keyword.
type BoostReranker struct {
	keywordBoost float64
	entityBoost  float64
	domainTerms  []string
}

// NewBoostReranker builds the default reranker from retrieval configuration.
func NewBoostReranker(cfg config.RetrievalConfig) *BoostReranker {
	terms := make([]string, 0, len(cfg.DomainTerms))
	for _, t := range cfg.DomainTerms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	return &BoostReranker{
		keywordBoost: cfg.KeywordBoost,
		entityBoost:  cfg.EntityBoost,
		domainTerms:  terms,
	}
}

// Rerank returns the results with adjusted fused scores. Order is left to the
// caller; only scores change here.
func (r *BoostReranker) Rerank(query types.NormalizedQuery, results []types.SearchResult) []types.SearchResult {
	keywords := queryKeywords(query.Text)
	queryText := strings.ToLower(query.Text)

	for i := range results {
		text := strings.ToLower(results[i].Passage.Text)

		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				results[i].FusedScore += r.keywordBoost
			}
		}
		for _, term := range r.domainTerms {
			if strings.Contains(queryText, term) && strings.Contains(text, term) {
				results[i].FusedScore += r.entityBoost
			}
		}
	}
	return results
}

func queryKeywords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	keywords := fields[:0]
	for _, f := range fields {
		if len(f) >= minKeywordLen {
			keywords = append(keywords, f)
		}
	}
	return keywords
}
