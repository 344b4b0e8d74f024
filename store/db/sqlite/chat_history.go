package sqlite

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemosyne/store"
)

// UpsertChatHistory inserts or replaces a chat history row by chat id.
func (d *DB) UpsertChatHistory(ctx context.Context, create *store.ChatHistory) (*store.ChatHistory, error) {
	metadata, err := json.Marshal(create.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal chat metadata")
	}

	stmt := `
		INSERT INTO chat_history (chat_id, user_id, assistant_id, session_id, user_input, ai_output, model, tokens_used, metadata, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET
			user_input = excluded.user_input,
			ai_output = excluded.ai_output,
			model = excluded.model,
			tokens_used = excluded.tokens_used,
			metadata = excluded.metadata
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ChatID,
		create.UserID,
		create.AssistantID,
		create.SessionID,
		create.UserInput,
		create.AIOutput,
		create.Model,
		create.TokensUsed,
		string(metadata),
		create.CreatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert chat history")
	}
	return create, nil
}

// ListChatHistory lists chat rows newest-first.
func (d *DB) ListChatHistory(ctx context.Context, find *store.FindChatHistory) ([]*store.ChatHistory, error) {
	where, args := []string{"user_id = ?"}, []any{find.UserID}

	if find.SessionID != nil {
		where, args = append(where, "session_id = ?"), append(args, *find.SessionID)
	}

	query := `
		SELECT chat_id, user_id, assistant_id, session_id, user_input, ai_output, model, tokens_used, metadata, created_ts
		FROM chat_history
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC, chat_id DESC
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
		return nil, errors.Wrap(err, "failed to list chat history")
	}
	defer rows.Close()

	list := []*store.ChatHistory{}
	for rows.Next() {
		var chat store.ChatHistory
		var metadata string
		if err := rows.Scan(
			&chat.ChatID,
			&chat.UserID,
			&chat.AssistantID,
			&chat.SessionID,
			&chat.UserInput,
			&chat.AIOutput,
			&chat.Model,
			&chat.TokensUsed,
			&metadata,
			&chat.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan chat history")
		}
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &chat.Metadata); err != nil {
				return nil, errors.Wrap(err, "failed to unmarshal chat metadata")
			}
		}
		list = append(list, &chat)
	}
	return list, rows.Err()
}

// DeleteChatHistory deletes tenant-scoped chat rows and clears chat links on
// short-term rows (foreign keys are disabled, so SET NULL is done by hand).
func (d *DB) DeleteChatHistory(ctx context.Context, delete *store.DeleteChatHistory) (int64, error) {
	where, args := []string{"user_id = ?"}, []any{delete.UserID}
	if delete.SessionID != nil {
		where, args = append(where, "session_id = ?"), append(args, *delete.SessionID)
	}
	cond := strings.Join(where, " AND ")

	if _, err := d.db.ExecContext(ctx,
		"UPDATE short_term_memory SET chat_id = NULL WHERE chat_id IN (SELECT chat_id FROM chat_history WHERE "+cond+")",
		args...,
	); err != nil {
		return 0, errors.Wrap(err, "failed to clear chat links")
	}

	result, err := d.db.ExecContext(ctx, "DELETE FROM chat_history WHERE "+cond, args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete chat history")
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}
