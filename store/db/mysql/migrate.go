package mysql

import (
	"context"

	"github.com/pkg/errors"
)

var tableStmts = []string{
	`CREATE TABLE IF NOT EXISTS chat_history (
		chat_id VARCHAR(255) PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		assistant_id VARCHAR(255) NOT NULL DEFAULT '',
		session_id VARCHAR(255) NOT NULL,
		user_input MEDIUMTEXT NOT NULL,
		ai_output MEDIUMTEXT NOT NULL,
		model VARCHAR(255) NOT NULL DEFAULT '',
		tokens_used INT NOT NULL DEFAULT 0,
		metadata JSON,
		created_ts BIGINT NOT NULL,
		INDEX idx_chat_history_user (user_id, session_id, created_ts)
	)`,

	`CREATE TABLE IF NOT EXISTS short_term_memory (
		memory_id VARCHAR(255) PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		assistant_id VARCHAR(255) NOT NULL DEFAULT '',
		session_id VARCHAR(255) NOT NULL DEFAULT '',
		processed_data JSON,
		searchable_content MEDIUMTEXT NOT NULL,
		summary TEXT NOT NULL,
		category_primary VARCHAR(255) NOT NULL DEFAULT '',
		retention_type VARCHAR(64) NOT NULL DEFAULT 'short_term',
		importance_score DOUBLE NOT NULL DEFAULT 0,
		expires_ts BIGINT,
		is_permanent_context BOOLEAN NOT NULL DEFAULT FALSE,
		access_count INT NOT NULL DEFAULT 0,
		last_accessed_ts BIGINT,
		chat_id VARCHAR(255),
		created_ts BIGINT NOT NULL,
		INDEX idx_short_term_user (user_id, category_primary, importance_score)
	)`,

	`CREATE TABLE IF NOT EXISTS long_term_memory (
		memory_id VARCHAR(255) PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		assistant_id VARCHAR(255) NOT NULL DEFAULT '',
		session_id VARCHAR(255) NOT NULL DEFAULT '',
		content MEDIUMTEXT NOT NULL,
		summary TEXT NOT NULL,
		searchable_content MEDIUMTEXT NOT NULL,
		classification VARCHAR(64) NOT NULL DEFAULT 'conversational',
		memory_importance VARCHAR(32) NOT NULL DEFAULT 'medium',
		topic VARCHAR(255) NOT NULL DEFAULT '',
		entities JSON,
		keywords JSON,
		is_user_context BOOLEAN NOT NULL DEFAULT FALSE,
		is_preference BOOLEAN NOT NULL DEFAULT FALSE,
		is_skill_knowledge BOOLEAN NOT NULL DEFAULT FALSE,
		is_current_project BOOLEAN NOT NULL DEFAULT FALSE,
		promotion_eligible BOOLEAN NOT NULL DEFAULT FALSE,
		duplicate_of VARCHAR(255) NOT NULL DEFAULT '',
		supersedes JSON,
		related_memories JSON,
		processed_for_duplicates BOOLEAN NOT NULL DEFAULT FALSE,
		conscious_processed BOOLEAN NOT NULL DEFAULT FALSE,
		importance_score DOUBLE NOT NULL DEFAULT 0,
		novelty_score DOUBLE NOT NULL DEFAULT 0,
		relevance_score DOUBLE NOT NULL DEFAULT 0,
		actionability_score DOUBLE NOT NULL DEFAULT 0,
		confidence_score DOUBLE NOT NULL DEFAULT 0,
		classification_reason TEXT,
		chat_id VARCHAR(255) NOT NULL DEFAULT '',
		version INT NOT NULL DEFAULT 1,
		created_ts BIGINT NOT NULL,
		INDEX idx_long_term_user (user_id, classification, created_ts),
		INDEX idx_long_term_conscious (user_id, classification, conscious_processed)
	)`,
}

// fulltextIndexes are created separately because MySQL has no
// IF NOT EXISTS for indexes; existence is checked via information_schema so
// setup stays idempotent and safe against partial prior initialization.
var fulltextIndexes = []struct {
	table string
	name  string
	stmt  string
}{
	{
		table: "short_term_memory",
		name:  "ft_short_term_content",
		stmt:  "CREATE FULLTEXT INDEX ft_short_term_content ON short_term_memory (searchable_content, summary)",
	},
	{
		table: "long_term_memory",
		name:  "ft_long_term_content",
		stmt:  "CREATE FULLTEXT INDEX ft_long_term_content ON long_term_memory (searchable_content, summary)",
	},
}

// Migrate creates tables and FULLTEXT indexes. Safe to run repeatedly.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range tableStmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to run mysql migration")
		}
	}
	for _, index := range fulltextIndexes {
		exists, err := d.indexExists(ctx, index.table, index.name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := d.db.ExecContext(ctx, index.stmt); err != nil {
			return errors.Wrapf(err, "failed to create fulltext index %s", index.name)
		}
	}
	return nil
}

func (d *DB) indexExists(ctx context.Context, table, name string) (bool, error) {
	var count int
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM information_schema.statistics
		WHERE table_schema = DATABASE() AND table_name = ? AND index_name = ?`,
		table, name,
	).Scan(&count)
	if err != nil {
		return false, errors.Wrap(err, "failed to check index existence")
	}
	return count > 0, nil
}
