package sqlite

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemosyne/store"
)

// FullTextSearch queries the FTS5 virtual table per tier. The query is
// phrase-wrapped and restricted to the content columns so UNINDEXED metadata
// cannot match. Errors propagate so the caller can run the LIKE fallback.
func (d *DB) FullTextSearch(ctx context.Context, query *store.SearchQuery) ([]*store.SearchResult, error) {
	cleaned := store.NormalizeQuery(query.Query)
	if cleaned == "" {
		return []*store.SearchResult{}, nil
	}
	match := `{searchable_content summary} : "` + strings.ReplaceAll(cleaned, `"`, `""`) + `"`

	results := []*store.SearchResult{}
	for _, tier := range tiersOf(query.Tiers) {
		tierResults, err := d.fullTextSearchTier(ctx, query, tier, match)
		if err != nil {
			return nil, err
		}
		results = append(results, tierResults...)
		if query.Limit > 0 && len(results) >= query.Limit {
			break
		}
	}
	return clip(results, query.Limit), nil
}

func (d *DB) fullTextSearchTier(ctx context.Context, query *store.SearchQuery, tier, match string) ([]*store.SearchResult, error) {
	var stmt string
	args := []any{match, tier, query.UserID}

	switch tier {
	case store.TierShortTerm:
		stmt = `
			SELECT st.memory_id, st.user_id, st.assistant_id, st.session_id, st.searchable_content, st.summary,
				st.category_primary, st.processed_data, st.importance_score, st.created_ts, bm25(memory_search_fts) AS rank
			FROM memory_search_fts
			JOIN short_term_memory st ON st.memory_id = memory_search_fts.memory_id
			WHERE memory_search_fts MATCH ? AND memory_search_fts.tier = ? AND st.user_id = ?
				AND (st.expires_ts IS NULL OR st.expires_ts > ? OR st.is_permanent_context = 1)
		`
		args = append(args, time.Now().Unix())
		if query.SessionID != nil {
			stmt += " AND st.session_id = ?"
			args = append(args, *query.SessionID)
		}
	case store.TierLongTerm:
		stmt = `
			SELECT lt.memory_id, lt.user_id, lt.assistant_id, lt.session_id, lt.searchable_content, lt.summary,
				lt.classification, '{}', lt.importance_score, lt.created_ts, bm25(memory_search_fts) AS rank
			FROM memory_search_fts
			JOIN long_term_memory lt ON lt.memory_id = memory_search_fts.memory_id
			WHERE memory_search_fts MATCH ? AND memory_search_fts.tier = ? AND lt.user_id = ?
		`
		if query.AssistantID != nil {
			stmt += " AND (lt.assistant_id = '' OR lt.assistant_id = ?)"
			args = append(args, *query.AssistantID)
		}
	default:
		return nil, errors.Errorf("unknown tier: %s", tier)
	}

	if query.MinImportance > 0 {
		stmt += " AND importance_score >= ?"
		args = append(args, query.MinImportance)
	}
	stmt += " ORDER BY rank"
	if query.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := d.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "fts5 search failed")
	}
	defer rows.Close()

	results := []*store.SearchResult{}
	for rows.Next() {
		var r store.SearchResult
		var processed string
		var rank float64
		if err := rows.Scan(
			&r.MemoryID,
			&r.UserID,
			&r.AssistantID,
			&r.SessionID,
			&r.SearchableContent,
			&r.Summary,
			&r.CategoryPrimary,
			&processed,
			&r.ImportanceScore,
			&r.CreatedTs,
			&rank,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan fts5 result")
		}
		r.Tier = tier
		r.ProcessedData = []byte(processed)
		// bm25() returns lower-is-better (negative for good matches);
		// squash into (0, 1) so ranking can blend it with importance.
		r.SearchScore = 1.0 / (1.0 + math.Exp(rank))
		r.SearchStrategy = store.StrategyFullText
		results = append(results, &r)
	}
	return results, rows.Err()
}

// LikeSearch is the fallback path: OR patterns for the whole query plus each
// word longer than two characters, over searchable_content and summary.
func (d *DB) LikeSearch(ctx context.Context, query *store.SearchQuery) ([]*store.SearchResult, error) {
	cleaned := store.NormalizeQuery(query.Query)
	if cleaned == "" {
		return []*store.SearchResult{}, nil
	}
	patterns := likePatterns(cleaned)

	results := []*store.SearchResult{}
	for _, tier := range tiersOf(query.Tiers) {
		tierResults, err := d.likeSearchTier(ctx, query, tier, patterns)
		if err != nil {
			return nil, err
		}
		results = append(results, tierResults...)
	}
	return clip(results, query.Limit), nil
}

func (d *DB) likeSearchTier(ctx context.Context, query *store.SearchQuery, tier string, patterns []string) ([]*store.SearchResult, error) {
	matchers := make([]string, 0, len(patterns)*2)
	args := []any{}
	for _, p := range patterns {
		matchers = append(matchers, "searchable_content LIKE ?", "summary LIKE ?")
		args = append(args, p, p)
	}
	matchClause := "(" + strings.Join(matchers, " OR ") + ")"

	var stmt string
	switch tier {
	case store.TierShortTerm:
		stmt = `
			SELECT memory_id, user_id, assistant_id, session_id, searchable_content, summary,
				category_primary, processed_data, importance_score, created_ts
			FROM short_term_memory
			WHERE ` + matchClause + ` AND user_id = ?
				AND (expires_ts IS NULL OR expires_ts > ? OR is_permanent_context = 1)
		`
		args = append(args, query.UserID, time.Now().Unix())
		if query.SessionID != nil {
			stmt += " AND session_id = ?"
			args = append(args, *query.SessionID)
		}
	case store.TierLongTerm:
		stmt = `
			SELECT memory_id, user_id, assistant_id, session_id, searchable_content, summary,
				classification, '{}', importance_score, created_ts
			FROM long_term_memory
			WHERE ` + matchClause + ` AND user_id = ?
		`
		args = append(args, query.UserID)
		if query.AssistantID != nil {
			stmt += " AND (assistant_id = '' OR assistant_id = ?)"
			args = append(args, *query.AssistantID)
		}
	default:
		return nil, errors.Errorf("unknown tier: %s", tier)
	}

	stmt += " ORDER BY importance_score DESC, created_ts DESC"
	if query.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := d.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "like search failed")
	}
	defer rows.Close()

	return collectLikeResults(rows, tier, tier+"_"+store.StrategyLikeFallback)
}

// ListEntityMatches runs LIKE-pattern OR search over entity tokens.
func (d *DB) ListEntityMatches(ctx context.Context, query *store.EntityQuery) ([]*store.SearchResult, error) {
	patterns := []string{}
	for _, entity := range query.Entities {
		for _, token := range strings.Fields(entity) {
			if len(token) > 2 {
				patterns = append(patterns, "%"+token+"%")
			}
		}
	}
	if len(patterns) == 0 {
		return []*store.SearchResult{}, nil
	}

	like := &store.SearchQuery{
		UserID:      query.UserID,
		AssistantID: query.AssistantID,
		SessionID:   query.SessionID,
		Tiers:       query.Tiers,
		Limit:       query.Limit,
	}
	results := []*store.SearchResult{}
	for _, tier := range tiersOf(query.Tiers) {
		tierResults, err := d.likeSearchTier(ctx, like, tier, patterns)
		if err != nil {
			return nil, err
		}
		for _, r := range tierResults {
			r.SearchStrategy = store.StrategyEntity
		}
		results = append(results, tierResults...)
	}
	return clip(results, query.Limit), nil
}

func collectLikeResults(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}, tier, strategy string) ([]*store.SearchResult, error) {
	results := []*store.SearchResult{}
	for rows.Next() {
		var r store.SearchResult
		var processed string
		if err := rows.Scan(
			&r.MemoryID,
			&r.UserID,
			&r.AssistantID,
			&r.SessionID,
			&r.SearchableContent,
			&r.Summary,
			&r.CategoryPrimary,
			&processed,
			&r.ImportanceScore,
			&r.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan like result")
		}
		r.Tier = tier
		r.ProcessedData = []byte(processed)
		r.SearchScore = store.LikeFallbackScore
		r.SearchStrategy = strategy
		results = append(results, &r)
	}
	return results, rows.Err()
}

func likePatterns(cleaned string) []string {
	patterns := []string{"%" + cleaned + "%"}
	for _, token := range store.TokenizeQuery(cleaned) {
		patterns = append(patterns, "%"+token+"%")
	}
	return patterns
}

func tiersOf(tiers []string) []string {
	if len(tiers) == 0 {
		return []string{store.TierShortTerm, store.TierLongTerm}
	}
	return tiers
}

func clip(results []*store.SearchResult, limit int) []*store.SearchResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
