package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemosyne/store"
)

const shortTermFields = `memory_id, user_id, assistant_id, session_id, processed_data, searchable_content, summary,
	category_primary, retention_type, importance_score, expires_ts, is_permanent_context, access_count,
	last_accessed_ts, chat_id, created_ts`

// UpsertShortTermMemory inserts or replaces a short-term row by memory id.
func (d *DB) UpsertShortTermMemory(ctx context.Context, upsert *store.ShortTermMemory) (*store.ShortTermMemory, error) {
	processed := upsert.ProcessedData
	if len(processed) == 0 {
		processed = []byte("{}")
	}
	stmt := `
		INSERT OR REPLACE INTO short_term_memory (` + shortTermFields + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		upsert.MemoryID,
		upsert.UserID,
		upsert.AssistantID,
		upsert.SessionID,
		string(processed),
		upsert.SearchableContent,
		upsert.Summary,
		upsert.CategoryPrimary,
		upsert.RetentionType,
		upsert.ImportanceScore,
		upsert.ExpiresTs,
		upsert.IsPermanentContext,
		upsert.AccessCount,
		upsert.LastAccessedTs,
		nullableString(upsert.ChatID),
		upsert.CreatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert short term memory")
	}
	return upsert, nil
}

// GetShortTermMemory returns a single row or nil when absent.
func (d *DB) GetShortTermMemory(ctx context.Context, memoryID, userID string) (*store.ShortTermMemory, error) {
	query := `SELECT ` + shortTermFields + ` FROM short_term_memory WHERE memory_id = ? AND user_id = ?`
	row, err := scanShortTerm(d.db.QueryRowContext(ctx, query, memoryID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return row, err
}

// ListShortTermMemories lists rows ordered by importance DESC, created DESC.
// Expired rows are invisible unless IncludeExpired is set; permanent-context
// rows never expire.
func (d *DB) ListShortTermMemories(ctx context.Context, find *store.FindShortTermMemory) ([]*store.ShortTermMemory, error) {
	where, args := []string{"user_id = ?"}, []any{find.UserID}

	if find.SessionID != nil {
		where, args = append(where, "session_id = ?"), append(args, *find.SessionID)
	}
	if find.CategoryPrimary != nil {
		where, args = append(where, "category_primary = ?"), append(args, *find.CategoryPrimary)
	}
	if !find.IncludeExpired {
		where = append(where, "(expires_ts IS NULL OR expires_ts > ? OR is_permanent_context = 1)")
		args = append(args, time.Now().Unix())
	}

	query := `
		SELECT ` + shortTermFields + `
		FROM short_term_memory
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY importance_score DESC, created_ts DESC
	`
	if find.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, find.Limit)
		if find.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list short term memories")
	}
	defer rows.Close()

	list := []*store.ShortTermMemory{}
	for rows.Next() {
		memory, err := scanShortTerm(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, memory)
	}
	return list, rows.Err()
}

// DeleteShortTermMemories deletes tenant-scoped short-term rows.
func (d *DB) DeleteShortTermMemories(ctx context.Context, delete *store.DeleteShortTermMemory) (int64, error) {
	where, args := []string{"user_id = ?"}, []any{delete.UserID}
	if delete.SessionID != nil {
		where, args = append(where, "session_id = ?"), append(args, *delete.SessionID)
	}

	result, err := d.db.ExecContext(ctx,
		"DELETE FROM short_term_memory WHERE "+strings.Join(where, " AND "), args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete short term memories")
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShortTerm(scanner rowScanner) (*store.ShortTermMemory, error) {
	var memory store.ShortTermMemory
	var processed string
	var expiresTs, lastAccessedTs sql.NullInt64
	var chatID sql.NullString
	if err := scanner.Scan(
		&memory.MemoryID,
		&memory.UserID,
		&memory.AssistantID,
		&memory.SessionID,
		&processed,
		&memory.SearchableContent,
		&memory.Summary,
		&memory.CategoryPrimary,
		&memory.RetentionType,
		&memory.ImportanceScore,
		&expiresTs,
		&memory.IsPermanentContext,
		&memory.AccessCount,
		&lastAccessedTs,
		&chatID,
		&memory.CreatedTs,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan short term memory")
	}
	memory.ProcessedData = []byte(processed)
	if expiresTs.Valid {
		memory.ExpiresTs = &expiresTs.Int64
	}
	if lastAccessedTs.Valid {
		memory.LastAccessedTs = &lastAccessedTs.Int64
	}
	if chatID.Valid {
		memory.ChatID = chatID.String
	}
	return &memory, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
