package store

import (
	"encoding/json"
	"strings"
)

// Memory tiers addressable by search and listing operations.
const (
	TierShortTerm = "short_term"
	TierLongTerm  = "long_term"
)

// Search strategy labels attached to results.
const (
	StrategyFullText       = "fulltext"
	StrategyEntity         = "entity_search"
	StrategyCategory       = "category_filter"
	StrategyImportance     = "importance_filter"
	StrategyLikeFallback   = "like_fallback"
	StrategyRecentFallback = "recent_fallback"
)

// LikeFallbackScore is the fixed relevance assigned to LIKE fallback matches.
const LikeFallbackScore = 0.4

// SearchQuery describes one backend search request. The user filter is
// mandatory; drivers embed it into every query path. SessionID applies to
// short-term rows only, long-term memory is cross-session within a user.
type SearchQuery struct {
	Query          string
	UserID         string
	AssistantID    *string
	SessionID      *string
	Tiers          []string // defaults to both tiers when empty
	CategoryFilter []string
	MinImportance  float64
	Limit          int
}

// EntityQuery describes a LIKE-pattern search over a set of entity tokens.
type EntityQuery struct {
	Entities    []string
	UserID      string
	AssistantID *string
	SessionID   *string
	Tiers       []string
	Limit       int
}

// NormalizeQuery prepares raw query text for the backend text indexes.
// A leading "User query:" prefix (added by some prompt templates) is
// stripped so it does not interfere with matching.
func NormalizeQuery(query string) string {
	query = strings.TrimSpace(query)
	lower := strings.ToLower(query)
	if strings.HasPrefix(lower, "user query:") {
		query = strings.TrimSpace(query[len("user query:"):])
	}
	return strings.Join(strings.Fields(query), " ")
}

// TokenizeQuery splits a query into lowercase word tokens longer than two
// characters, the shared fallback tokenization for LIKE and entity search.
func TokenizeQuery(query string) []string {
	tokens := []string{}
	for _, word := range strings.Fields(strings.ToLower(NormalizeQuery(query))) {
		word = strings.Trim(word, `.,;:!?"'()[]{}`)
		if len(word) > 2 {
			tokens = append(tokens, word)
		}
	}
	return tokens
}

// SearchResult is one ranked hit from either memory tier.
type SearchResult struct {
	MemoryID          string
	Tier              string
	UserID            string
	AssistantID       string
	SessionID         string
	SearchableContent string
	Summary           string
	CategoryPrimary   string
	ProcessedData     json.RawMessage
	ImportanceScore   float64
	SearchScore       float64
	SearchStrategy    string
	CreatedTs         int64
}
