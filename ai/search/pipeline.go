package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/hrygo/mnemosyne/ai/core/llm"
	"github.com/hrygo/mnemosyne/store"
)

// Request describes one search across the memory tiers.
type Request struct {
	Query          string
	UserID         string
	AssistantID    *string
	SessionID      *string
	CategoryFilter []string
	Limit          int

	// RecentOnEmpty returns recent memories for an empty query instead of
	// an empty result set. Context retrieval wants this; explicit search
	// must stay symmetric across backends and return [].
	RecentOnEmpty bool
}

// Engine orchestrates planning, staged execution, and ranking.
type Engine struct {
	store    *store.Store
	planner  *Planner
	embedder llm.Embedder
}

// NewEngine creates a search engine over the store.
func NewEngine(s *store.Store, planner *Planner) *Engine {
	return &Engine{store: s, planner: planner}
}

// UseEmbedder enables the semantic stage on vector-capable backends.
func (e *Engine) UseEmbedder(embedder llm.Embedder) {
	e.embedder = embedder
}

// Search runs the staged pipeline: full-text first, then semantic (when an
// embedder and a vector-capable backend are present), entity, category, and
// importance stages as the plan requests, deduplicated by memory id and
// short-circuited once limit results are collected. Results come back ranked.
func (e *Engine) Search(ctx context.Context, req *Request) ([]*store.SearchResult, error) {
	if req.Limit <= 0 {
		req.Limit = 10
	}

	cleaned := store.NormalizeQuery(req.Query)
	if cleaned == "" {
		if !req.RecentOnEmpty {
			return []*store.SearchResult{}, nil
		}
		return e.recentFallback(ctx, req)
	}

	plan := e.planner.Plan(ctx, cleaned)
	collected := []*store.SearchResult{}
	seen := map[string]bool{}

	add := func(results []*store.SearchResult) {
		for _, r := range results {
			if seen[r.MemoryID] {
				continue
			}
			seen[r.MemoryID] = true
			collected = append(collected, r)
		}
	}

	// Stage 1: backend full-text, LIKE fallback on failure.
	primary, err := e.store.FullTextSearch(ctx, e.searchQuery(req, cleaned, plan.MinImportance))
	if err != nil {
		slog.Warn("full-text search failed, running like fallback", "error", err)
		primary, err = e.store.LikeSearch(ctx, e.searchQuery(req, cleaned, plan.MinImportance))
		if err != nil {
			return nil, err
		}
	}
	add(primary)

	// Stage 2: semantic search where the backend has a vector column.
	if len(collected) < req.Limit && e.embedder != nil && e.store.SupportsSemanticSearch() {
		vector, err := e.embedder.Embed(ctx, cleaned)
		if err != nil {
			slog.Warn("query embedding failed, skipping semantic stage", "error", err)
		} else {
			semanticResults, err := e.store.SemanticSearch(ctx, e.searchQuery(req, cleaned, plan.MinImportance), vector)
			if err != nil {
				slog.Warn("semantic search failed", "error", err)
			} else {
				add(semanticResults)
			}
		}
	}

	// Stage 3: entity search.
	if len(collected) < req.Limit && len(plan.EntityFilters) > 0 {
		entityResults, err := e.store.ListEntityMatches(ctx, &store.EntityQuery{
			Entities:    plan.EntityFilters,
			UserID:      req.UserID,
			AssistantID: req.AssistantID,
			SessionID:   req.SessionID,
			Limit:       req.Limit,
		})
		if err != nil {
			slog.Warn("entity search failed", "error", err)
		} else {
			add(entityResults)
		}
	}

	// Stage 4: category filter.
	categories := req.CategoryFilter
	if len(categories) == 0 {
		categories = plan.CategoryFilters
	}
	if len(collected) < req.Limit && len(categories) > 0 {
		categoryResults, err := e.categoryStage(ctx, req, categories)
		if err != nil {
			slog.Warn("category search failed", "error", err)
		} else {
			add(categoryResults)
		}
	}

	// Stage 5: importance filter.
	if len(collected) < req.Limit && (plan.MinImportance > 0 || plan.HasStrategy(StrategyImportanceFilter)) {
		importanceResults, err := e.importanceStage(ctx, req, plan.MinImportance)
		if err != nil {
			slog.Warn("importance search failed", "error", err)
		} else {
			add(importanceResults)
		}
	}

	return Rank(collected, req.Limit), nil
}

func (e *Engine) searchQuery(req *Request, cleaned string, minImportance float64) *store.SearchQuery {
	return &store.SearchQuery{
		Query:         cleaned,
		UserID:        req.UserID,
		AssistantID:   req.AssistantID,
		SessionID:     req.SessionID,
		MinImportance: minImportance,
		Limit:         req.Limit,
	}
}

// categoryStage loads a superset of both tiers and filters in memory. The
// category lives at several possible paths inside processed_data depending on
// classifier version, with the column as last resort.
func (e *Engine) categoryStage(ctx context.Context, req *Request, categories []string) ([]*store.SearchResult, error) {
	wanted := map[string]bool{}
	for _, c := range categories {
		wanted[strings.ToLower(c)] = true
	}

	listing, err := e.store.ListMemories(ctx, req.UserID, true, 500)
	if err != nil {
		return nil, err
	}

	results := []*store.SearchResult{}
	for _, row := range listing.Rows {
		if !wanted[strings.ToLower(categoryOf(row))] {
			continue
		}
		row.SearchScore = store.LikeFallbackScore
		row.SearchStrategy = store.StrategyCategory
		results = append(results, row)
		if len(results) >= req.Limit {
			break
		}
	}
	return results, nil
}

// importanceStage lists high-importance long-term rows. The floor never drops
// below 0.7 so the stage stays selective even for permissive plans.
func (e *Engine) importanceStage(ctx context.Context, req *Request, minImportance float64) ([]*store.SearchResult, error) {
	threshold := minImportance
	if threshold < 0.7 {
		threshold = 0.7
	}

	rows, err := e.store.ListLongTerm(ctx, &store.FindLongTermMemory{
		UserID:            req.UserID,
		AssistantID:       req.AssistantID,
		MinImportance:     &threshold,
		OrderByImportance: true,
		Limit:             req.Limit,
	})
	if err != nil {
		return nil, err
	}

	results := make([]*store.SearchResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, &store.SearchResult{
			MemoryID:          row.MemoryID,
			Tier:              store.TierLongTerm,
			UserID:            row.UserID,
			AssistantID:       row.AssistantID,
			SessionID:         row.SessionID,
			SearchableContent: row.SearchableContent,
			Summary:           row.Summary,
			CategoryPrimary:   row.Classification,
			ImportanceScore:   row.ImportanceScore,
			SearchScore:       row.ImportanceScore,
			SearchStrategy:    store.StrategyImportance,
			CreatedTs:         row.CreatedTs,
		})
	}
	return results, nil
}

// recentFallback serves empty queries on the context-retrieval path.
func (e *Engine) recentFallback(ctx context.Context, req *Request) ([]*store.SearchResult, error) {
	listing, err := e.store.ListMemories(ctx, req.UserID, true, req.Limit)
	if err != nil {
		return nil, err
	}
	for _, row := range listing.Rows {
		row.SearchStrategy = store.StrategyRecentFallback
	}
	return listing.Rows, nil
}

// categoryOf walks the known processed_data layouts before falling back to
// the category column.
func categoryOf(row *store.SearchResult) string {
	if len(row.ProcessedData) > 0 {
		var data map[string]any
		if err := json.Unmarshal(row.ProcessedData, &data); err == nil {
			paths := [][]string{
				{"category", "primary_category"},
				{"category"},
				{"primary_category"},
				{"metadata", "category"},
				{"classification", "category"},
			}
			for _, path := range paths {
				if v, ok := lookupPath(data, path); ok && v != "" {
					return v
				}
			}
		}
	}
	return row.CategoryPrimary
}

func lookupPath(data map[string]any, path []string) (string, bool) {
	current := any(data)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = m[key]
		if !ok {
			return "", false
		}
	}
	s, ok := current.(string)
	return s, ok
}
