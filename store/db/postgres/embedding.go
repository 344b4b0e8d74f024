package postgres

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/mnemosyne/store"
)

// UpsertMemoryEmbedding attaches an embedding vector to a long-term row.
// Only available when the vector extension was installed during Migrate.
func (d *DB) UpsertMemoryEmbedding(ctx context.Context, userID, memoryID string, embedding []float32) error {
	vector := pgvector.NewVector(embedding)
	if _, err := d.db.ExecContext(ctx,
		"UPDATE long_term_memory SET embedding = $1 WHERE user_id = $2 AND memory_id = $3",
		vector, userID, memoryID,
	); err != nil {
		return errors.Wrap(err, "failed to upsert memory embedding")
	}
	return nil
}

// SemanticSearch ranks long-term rows by cosine distance to the query
// embedding. The tenant filter and the shared-assistant rule apply the same
// way as in the text paths.
func (d *DB) SemanticSearch(ctx context.Context, query *store.SearchQuery, embedding []float32) ([]*store.SearchResult, error) {
	vector := pgvector.NewVector(embedding)
	stmt := `
		SELECT memory_id, user_id, assistant_id, session_id, searchable_content, summary,
			classification, importance_score, created_ts,
			1 - (embedding <=> $1) AS similarity
		FROM long_term_memory
		WHERE user_id = $2 AND embedding IS NOT NULL
	`
	args := []any{vector, query.UserID}
	if query.AssistantID != nil {
		stmt += " AND (assistant_id = '' OR assistant_id = " + placeholder(len(args)+1) + ")"
		args = append(args, *query.AssistantID)
	}
	stmt += " ORDER BY embedding <=> $1"
	if query.Limit > 0 {
		stmt += " LIMIT " + placeholder(len(args)+1)
		args = append(args, query.Limit)
	}

	rows, err := d.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "semantic search failed")
	}
	defer rows.Close()

	results := []*store.SearchResult{}
	for rows.Next() {
		var r store.SearchResult
		var similarity float64
		if err := rows.Scan(
			&r.MemoryID,
			&r.UserID,
			&r.AssistantID,
			&r.SessionID,
			&r.SearchableContent,
			&r.Summary,
			&r.CategoryPrimary,
			&r.ImportanceScore,
			&r.CreatedTs,
			&similarity,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan semantic result")
		}
		r.Tier = store.TierLongTerm
		r.SearchScore = similarity
		r.SearchStrategy = "semantic_search"
		results = append(results, &r)
	}
	return results, rows.Err()
}
