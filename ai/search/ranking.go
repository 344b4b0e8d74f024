package search

import (
	"sort"
	"time"

	"github.com/hrygo/mnemosyne/store"
)

// Composite ranking weights: backend relevance dominates, importance and
// recency break ties.
const (
	weightSearch     = 0.5
	weightImportance = 0.3
	weightRecency    = 0.2

	recencyHorizonDays = 30
)

// CompositeScore blends backend relevance, classified importance, and age.
func CompositeScore(result *store.SearchResult, now time.Time) float64 {
	return weightSearch*result.SearchScore +
		weightImportance*result.ImportanceScore +
		weightRecency*recencyScore(result.CreatedTs, now)
}

// recencyScore decays linearly to zero over the horizon.
func recencyScore(createdTs int64, now time.Time) float64 {
	if createdTs <= 0 {
		return 0
	}
	daysOld := now.Sub(time.Unix(createdTs, 0)).Hours() / 24
	score := 1 - daysOld/recencyHorizonDays
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Rank sorts results by composite score descending and returns the first
// limit entries.
func Rank(results []*store.SearchResult, limit int) []*store.SearchResult {
	now := time.Now()
	sort.SliceStable(results, func(i, j int) bool {
		return CompositeScore(results[i], now) > CompositeScore(results[j], now)
	})
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
