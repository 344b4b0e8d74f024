package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/mnemosyne/store"
)

func TestRecencyScore(t *testing.T) {
	now := time.Now()

	assert.InDelta(t, 1.0, recencyScore(now.Unix(), now), 0.01)
	assert.InDelta(t, 0.5, recencyScore(now.AddDate(0, 0, -15).Unix(), now), 0.01)
	assert.Equal(t, 0.0, recencyScore(now.AddDate(0, 0, -60).Unix(), now))
	assert.Equal(t, 0.0, recencyScore(0, now))
}

func TestCompositeScoreWeights(t *testing.T) {
	now := time.Now()
	r := &store.SearchResult{
		SearchScore:     1.0,
		ImportanceScore: 1.0,
		CreatedTs:       now.Unix(),
	}
	assert.InDelta(t, 1.0, CompositeScore(r, now), 0.01)

	r = &store.SearchResult{SearchScore: 1.0}
	assert.InDelta(t, 0.5, CompositeScore(r, now), 0.01)
}

func TestRankOrdersAndClips(t *testing.T) {
	now := time.Now().Unix()
	results := []*store.SearchResult{
		{MemoryID: "low", SearchScore: 0.1, CreatedTs: now},
		{MemoryID: "high", SearchScore: 0.9, ImportanceScore: 0.9, CreatedTs: now},
		{MemoryID: "mid", SearchScore: 0.5, CreatedTs: now},
	}

	ranked := Rank(results, 2)
	assert.Len(t, ranked, 2)
	assert.Equal(t, "high", ranked[0].MemoryID)
	assert.Equal(t, "mid", ranked[1].MemoryID)
}

func TestRankPrefersRecent(t *testing.T) {
	now := time.Now()
	results := []*store.SearchResult{
		{MemoryID: "old", SearchScore: 0.4, CreatedTs: now.AddDate(0, 0, -29).Unix()},
		{MemoryID: "fresh", SearchScore: 0.4, CreatedTs: now.Unix()},
	}

	ranked := Rank(results, 0)
	assert.Equal(t, "fresh", ranked[0].MemoryID)
}
