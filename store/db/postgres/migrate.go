package postgres

import (
	"context"

	"github.com/pkg/errors"
)

// Migration statements are idempotent and safe against partial prior
// initialization: tables, trigger functions, triggers, and indexes are all
// created with IF NOT EXISTS or OR REPLACE.
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
		metadata JSONB NOT NULL DEFAULT '{}',
		created_ts BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_history_user ON chat_history (user_id, session_id, created_ts)`,

	`CREATE TABLE IF NOT EXISTS short_term_memory (
		memory_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		assistant_id TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		processed_data JSONB NOT NULL DEFAULT '{}',
		searchable_content TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		category_primary TEXT NOT NULL DEFAULT '',
		retention_type TEXT NOT NULL DEFAULT 'short_term',
		importance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		expires_ts BIGINT,
		is_permanent_context BOOLEAN NOT NULL DEFAULT FALSE,
		access_count INTEGER NOT NULL DEFAULT 0,
		last_accessed_ts BIGINT,
		chat_id TEXT,
		created_ts BIGINT NOT NULL,
		search_vector TSVECTOR
	)`,
	`CREATE INDEX IF NOT EXISTS idx_short_term_user ON short_term_memory (user_id, category_primary, importance_score)`,
	`CREATE INDEX IF NOT EXISTS idx_short_term_search ON short_term_memory USING GIN (search_vector)`,

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
		entities JSONB NOT NULL DEFAULT '[]',
		keywords JSONB NOT NULL DEFAULT '[]',
		is_user_context BOOLEAN NOT NULL DEFAULT FALSE,
		is_preference BOOLEAN NOT NULL DEFAULT FALSE,
		is_skill_knowledge BOOLEAN NOT NULL DEFAULT FALSE,
		is_current_project BOOLEAN NOT NULL DEFAULT FALSE,
		promotion_eligible BOOLEAN NOT NULL DEFAULT FALSE,
		duplicate_of TEXT NOT NULL DEFAULT '',
		supersedes JSONB NOT NULL DEFAULT '[]',
		related_memories JSONB NOT NULL DEFAULT '[]',
		processed_for_duplicates BOOLEAN NOT NULL DEFAULT FALSE,
		conscious_processed BOOLEAN NOT NULL DEFAULT FALSE,
		importance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		novelty_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		relevance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		actionability_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		classification_reason TEXT NOT NULL DEFAULT '',
		chat_id TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_ts BIGINT NOT NULL,
		search_vector TSVECTOR
	)`,
	`CREATE INDEX IF NOT EXISTS idx_long_term_user ON long_term_memory (user_id, classification, created_ts)`,
	`CREATE INDEX IF NOT EXISTS idx_long_term_conscious ON long_term_memory (user_id, classification, conscious_processed)`,
	`CREATE INDEX IF NOT EXISTS idx_long_term_search ON long_term_memory USING GIN (search_vector)`,

	`CREATE OR REPLACE FUNCTION memory_search_vector_update() RETURNS trigger AS $$
	BEGIN
		NEW.search_vector :=
			setweight(to_tsvector('english', coalesce(NEW.searchable_content, '')), 'A') ||
			setweight(to_tsvector('english', coalesce(NEW.summary, '')), 'B');
		RETURN NEW;
	END
	$$ LANGUAGE plpgsql`,

	`DROP TRIGGER IF EXISTS short_term_search_vector ON short_term_memory`,
	`CREATE TRIGGER short_term_search_vector
		BEFORE INSERT OR UPDATE ON short_term_memory
		FOR EACH ROW EXECUTE FUNCTION memory_search_vector_update()`,
	`DROP TRIGGER IF EXISTS long_term_search_vector ON long_term_memory`,
	`CREATE TRIGGER long_term_search_vector
		BEFORE INSERT OR UPDATE ON long_term_memory
		FOR EACH ROW EXECUTE FUNCTION memory_search_vector_update()`,
}

// embeddingStmts add the optional pgvector column used by semantic search.
// Skipped silently when the vector extension is unavailable.
var embeddingStmts = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`ALTER TABLE long_term_memory ADD COLUMN IF NOT EXISTS embedding vector(1536)`,
	`CREATE INDEX IF NOT EXISTS idx_long_term_embedding ON long_term_memory USING ivfflat (embedding vector_cosine_ops)`,
}

// Migrate creates tables, tsvector triggers, and GIN indexes. Safe to run
// repeatedly, including after a partial prior initialization.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range migrationStmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to run postgres migration")
		}
	}
	for _, stmt := range embeddingStmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			// Vector support is optional; search works without it.
			return nil
		}
	}
	return nil
}
