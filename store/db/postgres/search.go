package postgres

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemosyne/store"
)

// sanitizeTSQuery keeps alphanumeric tokens only and ANDs them into a
// tsquery expression. Anything else would let user input inject tsquery
// operators.
func sanitizeTSQuery(query string) string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range query {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return strings.Join(tokens, " & ")
}

// FullTextSearch queries the tsvector columns per tier, ranked by ts_rank.
func (d *DB) FullTextSearch(ctx context.Context, query *store.SearchQuery) ([]*store.SearchResult, error) {
	cleaned := sanitizeTSQuery(store.NormalizeQuery(query.Query))
	if cleaned == "" {
		return []*store.SearchResult{}, nil
	}

	results := []*store.SearchResult{}
	for _, tier := range tiersOf(query.Tiers) {
		tierResults, err := d.fullTextSearchTier(ctx, query, tier, cleaned)
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

func (d *DB) fullTextSearchTier(ctx context.Context, query *store.SearchQuery, tier, tsquery string) ([]*store.SearchResult, error) {
	var stmt string
	args := []any{tsquery, query.UserID}

	switch tier {
	case store.TierShortTerm:
		stmt = `
			SELECT memory_id, user_id, assistant_id, session_id, searchable_content, summary,
				category_primary, processed_data, importance_score, created_ts,
				ts_rank(search_vector, to_tsquery('english', $1)) AS rank
			FROM short_term_memory
			WHERE search_vector @@ to_tsquery('english', $1) AND user_id = $2
				AND (expires_ts IS NULL OR expires_ts > $3 OR is_permanent_context = TRUE)
		`
		args = append(args, time.Now().Unix())
		if query.SessionID != nil {
			stmt += " AND session_id = " + placeholder(len(args)+1)
			args = append(args, *query.SessionID)
		}
	case store.TierLongTerm:
		stmt = `
			SELECT memory_id, user_id, assistant_id, session_id, searchable_content, summary,
				classification, '{}', importance_score, created_ts,
				ts_rank(search_vector, to_tsquery('english', $1)) AS rank
			FROM long_term_memory
			WHERE search_vector @@ to_tsquery('english', $1) AND user_id = $2
		`
		if query.AssistantID != nil {
			stmt += " AND (assistant_id = '' OR assistant_id = " + placeholder(len(args)+1) + ")"
			args = append(args, *query.AssistantID)
		}
	default:
		return nil, errors.Errorf("unknown tier: %s", tier)
	}

	if query.MinImportance > 0 {
		stmt += " AND importance_score >= " + placeholder(len(args)+1)
		args = append(args, query.MinImportance)
	}
	stmt += " ORDER BY rank DESC"
	if query.Limit > 0 {
		stmt += " LIMIT " + placeholder(len(args)+1)
		args = append(args, query.Limit)
	}

	rows, err := d.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "tsvector search failed")
	}
	defer rows.Close()

	results := []*store.SearchResult{}
	for rows.Next() {
		var r store.SearchResult
		var processed []byte
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
			return nil, errors.Wrap(err, "failed to scan tsvector result")
		}
		r.Tier = tier
		r.ProcessedData = processed
		if rank > 1 {
			rank = 1
		}
		r.SearchScore = rank
		r.SearchStrategy = store.StrategyFullText
		results = append(results, &r)
	}
	return results, rows.Err()
}

// LikeSearch is the ILIKE fallback over searchable_content and summary.
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
		matchers = append(matchers,
			"searchable_content ILIKE "+placeholder(len(args)+1),
			"summary ILIKE "+placeholder(len(args)+2))
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
			WHERE ` + matchClause + ` AND user_id = ` + placeholder(len(args)+1) + `
				AND (expires_ts IS NULL OR expires_ts > ` + placeholder(len(args)+2) + ` OR is_permanent_context = TRUE)
		`
		args = append(args, query.UserID, time.Now().Unix())
		if query.SessionID != nil {
			stmt += " AND session_id = " + placeholder(len(args)+1)
			args = append(args, *query.SessionID)
		}
	case store.TierLongTerm:
		stmt = `
			SELECT memory_id, user_id, assistant_id, session_id, searchable_content, summary,
				classification, '{}', importance_score, created_ts
			FROM long_term_memory
			WHERE ` + matchClause + ` AND user_id = ` + placeholder(len(args)+1)
		args = append(args, query.UserID)
		if query.AssistantID != nil {
			stmt += " AND (assistant_id = '' OR assistant_id = " + placeholder(len(args)+1) + ")"
			args = append(args, *query.AssistantID)
		}
	default:
		return nil, errors.Errorf("unknown tier: %s", tier)
	}

	stmt += " ORDER BY importance_score DESC, created_ts DESC"
	if query.Limit > 0 {
		stmt += " LIMIT " + placeholder(len(args)+1)
		args = append(args, query.Limit)
	}

	rows, err := d.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "like search failed")
	}
	defer rows.Close()

	results := []*store.SearchResult{}
	for rows.Next() {
		var r store.SearchResult
		var processed []byte
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
		r.ProcessedData = processed
		r.SearchScore = store.LikeFallbackScore
		r.SearchStrategy = tier + "_" + store.StrategyLikeFallback
		results = append(results, &r)
	}
	return results, rows.Err()
}

// ListEntityMatches runs ILIKE-pattern OR search over entity tokens.
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
