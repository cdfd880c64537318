package index

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dthille/corpusqa/pkg/types"
)

func testPassages() []*types.PassageRecord {
	return []*types.PassageRecord{
		{ID: "p1", Text: "GitLab is an all-remote company with no offices"},
		{ID: "p2", Text: "Merge requests are the primary unit of code review at GitLab"},
		{ID: "p3", Text: "CI pipelines run automated tests on every merge request"},
		{ID: "p4", Text: "The handbook documents company values and working practices"},
	}
}

func TestLexicalSearchRanksTermOverlap(t *testing.T) {
	idx := NewLexical(testPassages())

	hits, err := idx.Search(context.Background(), "code review", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	// Only p2 mentions code review at all.
	assert.Equal(t, "p2", hits[0].Passage.ID)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i].Score, hits[i-1].Score)
	}
}

func TestLexicalSearchLimit(t *testing.T) {
	idx := NewLexical(testPassages())

	hits, err := idx.Search(context.Background(), "gitlab merge company", 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(hits), 2)
}

func TestLexicalSearchNoMatches(t *testing.T) {
	idx := NewLexical(testPassages())

	hits, err := idx.Search(context.Background(), "zebra quantum xylophone", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLexicalSearchEmptyQuery(t *testing.T) {
	idx := NewLexical(testPassages())

	hits, err := idx.Search(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLexicalSearchDeterministic(t *testing.T) {
	idx := NewLexical(testPassages())

	first, err := idx.Search(context.Background(), "gitlab merge request", 10)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := idx.Search(context.Background(), "gitlab merge request", 10)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestLexicalSearchCancelledContext(t *testing.T) {
	idx := NewLexical(testPassages())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.Search(ctx, "gitlab", 10)
	assert.Error(t, err)
}

func TestTokenizeBounds(t *testing.T) {
	terms := tokenize("a ab abc " + strings.Repeat("x", 60))
	assert.NotContains(t, terms, "a")
	assert.NotContains(t, terms, strings.Repeat("x", 60))
	assert.Contains(t, terms, "ab")
	assert.Contains(t, terms, "abc")
}
