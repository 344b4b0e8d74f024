package sqlite

import (
	"context"

	"github.com/pkg/errors"
)

// Schema statements are idempotent; Migrate can run on every startup.
var migrationStmts = []string{
	`CREATE TABLE IF NOT EXISTS chat_history (
		chat_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		assistant_id TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL,
		user_input TEXT NOT NULL DEFAULT '',
		ai_output TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		tokens_used INTEGER NOT NULL DEFAULT 0,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_ts BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_history_user ON chat_history (user_id, session_id, created_ts)`,

	`CREATE TABLE IF NOT EXISTS short_term_memory (
		memory_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		assistant_id TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		processed_data TEXT NOT NULL DEFAULT '{}',
		searchable_content TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		category_primary TEXT NOT NULL DEFAULT '',
		retention_type TEXT NOT NULL DEFAULT 'short_term',
		importance_score REAL NOT NULL DEFAULT 0,
		expires_ts BIGINT,
		is_permanent_context INTEGER NOT NULL DEFAULT 0,
		access_count INTEGER NOT NULL DEFAULT 0,
		last_accessed_ts BIGINT,
		chat_id TEXT,
		created_ts BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_short_term_user ON short_term_memory (user_id, category_primary, importance_score)`,

	`CREATE TABLE IF NOT EXISTS long_term_memory (
		memory_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		assistant_id TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		searchable_content TEXT NOT NULL DEFAULT '',
		classification TEXT NOT NULL DEFAULT 'conversational',
		memory_importance TEXT NOT NULL DEFAULT 'medium',
		topic TEXT NOT NULL DEFAULT '',
		entities TEXT NOT NULL DEFAULT '[]',
		keywords TEXT NOT NULL DEFAULT '[]',
		is_user_context INTEGER NOT NULL DEFAULT 0,
		is_preference INTEGER NOT NULL DEFAULT 0,
		is_skill_knowledge INTEGER NOT NULL DEFAULT 0,
		is_current_project INTEGER NOT NULL DEFAULT 0,
		promotion_eligible INTEGER NOT NULL DEFAULT 0,
		duplicate_of TEXT NOT NULL DEFAULT '',
		supersedes TEXT NOT NULL DEFAULT '[]',
		related_memories TEXT NOT NULL DEFAULT '[]',
		processed_for_duplicates INTEGER NOT NULL DEFAULT 0,
		conscious_processed INTEGER NOT NULL DEFAULT 0,
		importance_score REAL NOT NULL DEFAULT 0,
		novelty_score REAL NOT NULL DEFAULT 0,
		relevance_score REAL NOT NULL DEFAULT 0,
		actionability_score REAL NOT NULL DEFAULT 0,
		confidence_score REAL NOT NULL DEFAULT 0,
		classification_reason TEXT NOT NULL DEFAULT '',
		chat_id TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_ts BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_long_term_user ON long_term_memory (user_id, classification, created_ts)`,
	`CREATE INDEX IF NOT EXISTS idx_long_term_conscious ON long_term_memory (user_id, classification, conscious_processed)`,

	// Standalone FTS5 table (stores own content) for reliable trigger
	// behavior. Both tiers land in the same virtual table, tagged by tier.
	`CREATE VIRTUAL TABLE IF NOT EXISTS memory_search_fts USING fts5(
		memory_id UNINDEXED,
		tier UNINDEXED,
		user_id UNINDEXED,
		searchable_content,
		summary
	)`,

	`CREATE TRIGGER IF NOT EXISTS short_term_memory_ai AFTER INSERT ON short_term_memory BEGIN
		DELETE FROM memory_search_fts WHERE memory_id = new.memory_id AND tier = 'short_term';
		INSERT INTO memory_search_fts (memory_id, tier, user_id, searchable_content, summary)
		VALUES (new.memory_id, 'short_term', new.user_id, new.searchable_content, new.summary);
	END`,
	`CREATE TRIGGER IF NOT EXISTS short_term_memory_ad AFTER DELETE ON short_term_memory BEGIN
		DELETE FROM memory_search_fts WHERE memory_id = old.memory_id AND tier = 'short_term';
	END`,
	`CREATE TRIGGER IF NOT EXISTS long_term_memory_ai AFTER INSERT ON long_term_memory BEGIN
		INSERT INTO memory_search_fts (memory_id, tier, user_id, searchable_content, summary)
		VALUES (new.memory_id, 'long_term', new.user_id, new.searchable_content, new.summary);
	END`,
	`CREATE TRIGGER IF NOT EXISTS long_term_memory_ad AFTER DELETE ON long_term_memory BEGIN
		DELETE FROM memory_search_fts WHERE memory_id = old.memory_id AND tier = 'long_term';
	END`,
}

// Migrate creates tables, indexes, the FTS5 virtual table, and its sync
// triggers. Safe to run repeatedly.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range migrationStmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to run sqlite migration")
		}
	}
	return nil
}
