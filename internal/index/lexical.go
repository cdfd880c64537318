package index

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/dthille/corpusqa/pkg/types"
)

// Term length bounds for tokenization. Single characters and pathological
// strings carry no retrieval signal.
const (
	minTermLen = 2
	maxTermLen = 50
)

var nonTermRe = regexp.MustCompile(`[^\p{L}\p{N}\s-]`)

// Hit is a scored passage reference returned by an index.
type Hit struct {
	Passage *types.PassageRecord
	Score   float64
}

// Lexical is a TF-IDF inverted index over passage text. Immutable once built.
type Lexical struct {
	passages []*types.PassageRecord
	vectors  []map[string]float64 // tf-idf vector per passage
	idf      map[string]float64
}

// NewLexical builds the index over the given passages.
func NewLexical(passages []*types.PassageRecord) *Lexical {
	idx := &Lexical{
		passages: passages,
		vectors:  make([]map[string]float64, len(passages)),
		idf:      make(map[string]float64),
	}

	docFreq := make(map[string]int)
	terms := make([][]string, len(passages))
	for i, p := range passages {
		terms[i] = tokenize(p.Text)
		seen := make(map[string]struct{}, len(terms[i]))
		for _, t := range terms[i] {
			if _, dup := seen[t]; !dup {
				seen[t] = struct{}{}
				docFreq[t]++
			}
		}
	}

	total := float64(len(passages))
	for term, df := range docFreq {
		idx.idf[term] = math.Log(total / float64(df+1))
	}
	for i := range passages {
		idx.vectors[i] = idx.tfidf(terms[i])
	}
	return idx
}

// Search scores every passage against the query terms and returns up to limit
// hits ordered by score descending, ties by passage id ascending. An empty or
// all-stop-word query returns no hits, never an error.
func (l *Lexical) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	queryVec := l.tfidf(tokenize(query))
	if len(queryVec) == 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, limit)
	for i, docVec := range l.vectors {
		if score := sparseCosine(queryVec, docVec); score > 0 {
			hits = append(hits, Hit{Passage: l.passages[i], Score: score})
		}
	}

	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Len returns the number of indexed passages.
func (l *Lexical) Len() int { return len(l.passages) }

func (l *Lexical) tfidf(terms []string) map[string]float64 {
	if len(terms) == 0 {
		return nil
	}
	freq := make(map[string]int, len(terms))
	for _, t := range terms {
		freq[t]++
	}

	vec := make(map[string]float64, len(freq))
	total := float64(len(terms))
	for term, f := range freq {
		if idf, known := l.idf[term]; known && idf > 0 {
			vec[term] = float64(f) / total * idf
		}
	}
	return vec
}

func tokenize(text string) []string {
	cleaned := nonTermRe.ReplaceAllString(strings.ToLower(text), " ")
	fields := strings.Fields(cleaned)
	terms := fields[:0]
	for _, f := range fields {
		if len(f) >= minTermLen && len(f) <= maxTermLen {
			terms = append(terms, f)
		}
	}
	return terms
}

func sparseCosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var dot float64
	for term, av := range a {
		if bv, shared := b[term]; shared {
			dot += av * bv
		}
	}
	if dot == 0 {
		return 0
	}

	var normA, normB float64
	for _, v := range a {
		normA += v * v
	}
	for _, v := range b {
		normB += v * v
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortHits orders by score descending, ties by passage id ascending for
// deterministic output.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Passage.ID < hits[j].Passage.ID
	})
}
