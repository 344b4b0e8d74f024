package postgres

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemosyne/store"
)

// GetMemoryStats returns counts by tier and classification plus the average
// importance across both tiers.
func (d *DB) GetMemoryStats(ctx context.Context, userID string) (*store.MemoryStats, error) {
	stats := &store.MemoryStats{
		UserID:           userID,
		CountsByCategory: map[string]int64{},
	}

	if err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chat_history WHERE user_id = $1", userID,
	).Scan(&stats.ChatCount); err != nil {
		return nil, errors.Wrap(err, "failed to count chat history")
	}
	if err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM short_term_memory WHERE user_id = $1", userID,
	).Scan(&stats.ShortTermCount); err != nil {
		return nil, errors.Wrap(err, "failed to count short term memories")
	}
	if err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM long_term_memory WHERE user_id = $1", userID,
	).Scan(&stats.LongTermCount); err != nil {
		return nil, errors.Wrap(err, "failed to count long term memories")
	}

	rows, err := d.db.QueryContext(ctx,
		"SELECT classification, COUNT(*) FROM long_term_memory WHERE user_id = $1 GROUP BY classification", userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count categories")
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan category count")
		}
		stats.CountsByCategory[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := d.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(importance_score), 0) FROM (
			SELECT importance_score FROM short_term_memory WHERE user_id = $1
			UNION ALL
			SELECT importance_score FROM long_term_memory WHERE user_id = $1
		) AS scores`, userID,
	).Scan(&stats.AverageImportance); err != nil {
		return nil, errors.Wrap(err, "failed to average importance")
	}

	if err := d.db.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT SUM(OCTET_LENGTH(user_input) + OCTET_LENGTH(ai_output)) FROM chat_history WHERE user_id = $1), 0) +
			COALESCE((SELECT SUM(OCTET_LENGTH(searchable_content) + OCTET_LENGTH(summary)) FROM short_term_memory WHERE user_id = $1), 0) +
			COALESCE((SELECT SUM(OCTET_LENGTH(content) + OCTET_LENGTH(searchable_content) + OCTET_LENGTH(summary)) FROM long_term_memory WHERE user_id = $1), 0)`,
		userID,
	).Scan(&stats.StorageBytes); err != nil {
		return nil, errors.Wrap(err, "failed to sum storage bytes")
	}

	return stats, nil
}
