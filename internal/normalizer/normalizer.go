package normalizer

import (
	"regexp"
	"strings"

	"github.com/dthille/corpusqa/pkg/types"
)

// Stop phrases are removed before single stop words so that "can you" does
// not leave a dangling "you".
var (
	stopPhraseRe = regexp.MustCompile(`\b(tell me|can you|could you|would you)\b`)

	stopWords = map[string]struct{}{
		"what": {}, "how": {}, "why": {}, "please": {},
		"explain": {}, "describe": {}, "is": {}, "are": {},
		"the": {}, "a": {}, "an": {},
	}

	whitespaceRe = regexp.MustCompile(`\s+`)
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
)

// Normalize canonicalizes raw query text for cache-key derivation: lowercase,
// strip punctuation, drop interrogative and politeness words, collapse
// whitespace. Total and deterministic for any input, including the empty
// string, and idempotent: Normalize(Normalize(x).Text) == Normalize(x).
func Normalize(text string) types.NormalizedQuery {
	s := strings.ToLower(strings.TrimSpace(text))
	s = punctRe.ReplaceAllString(s, " ")
	s = stopPhraseRe.ReplaceAllString(s, " ")

	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		if _, skip := stopWords[w]; !skip {
			kept = append(kept, w)
		}
	}

	s = whitespaceRe.ReplaceAllString(strings.Join(kept, " "), " ")
	return types.NormalizedQuery{Text: strings.TrimSpace(s)}
}
