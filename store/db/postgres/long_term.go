package postgres

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/mnemosyne/store"
)

const longTermFields = `memory_id, user_id, assistant_id, session_id, content, summary, searchable_content,
	classification, memory_importance, topic, entities, keywords,
	is_user_context, is_preference, is_skill_knowledge, is_current_project, promotion_eligible,
	duplicate_of, supersedes, related_memories, processed_for_duplicates, conscious_processed,
	importance_score, novelty_score, relevance_score, actionability_score, confidence_score,
	classification_reason, chat_id, version, created_ts`

// CreateLongTermMemory inserts a classified long-term row.
func (d *DB) CreateLongTermMemory(ctx context.Context, create *store.LongTermMemory) (*store.LongTermMemory, error) {
	stmt := `
		INSERT INTO long_term_memory (` + longTermFields + `)
		VALUES (` + placeholders(31) + `)
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.MemoryID,
		create.UserID,
		create.AssistantID,
		create.SessionID,
		create.Content,
		create.Summary,
		create.SearchableContent,
		create.Classification,
		create.MemoryImportance,
		create.Topic,
		marshalList(create.Entities),
		marshalList(create.Keywords),
		create.IsUserContext,
		create.IsPreference,
		create.IsSkillKnowledge,
		create.IsCurrentProject,
		create.PromotionEligible,
		create.DuplicateOf,
		marshalList(create.Supersedes),
		marshalList(create.RelatedMemories),
		create.ProcessedForDuplicates,
		create.ConsciousProcessed,
		create.ImportanceScore,
		create.NoveltyScore,
		create.RelevanceScore,
		create.ActionabilityScore,
		create.ConfidenceScore,
		create.ClassificationReason,
		create.ChatID,
		create.Version,
		create.CreatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create long term memory")
	}
	return create, nil
}

// ListLongTermMemories lists rows for a user; a set AssistantID also matches
// rows shared across assistants.
func (d *DB) ListLongTermMemories(ctx context.Context, find *store.FindLongTermMemory) ([]*store.LongTermMemory, error) {
	where, args := []string{"user_id = " + placeholder(1)}, []any{find.UserID}

	if find.AssistantID != nil {
		where, args = append(where, "(assistant_id = '' OR assistant_id = "+placeholder(len(args)+1)+")"), append(args, *find.AssistantID)
	}
	if find.Classification != nil {
		where, args = append(where, "classification = "+placeholder(len(args)+1)), append(args, *find.Classification)
	}
	if find.ConsciousProcessed != nil {
		where, args = append(where, "conscious_processed = "+placeholder(len(args)+1)), append(args, *find.ConsciousProcessed)
	}
	if find.PromotionEligible != nil {
		where, args = append(where, "promotion_eligible = "+placeholder(len(args)+1)), append(args, *find.PromotionEligible)
	}
	if find.MinImportance != nil {
		where, args = append(where, "importance_score >= "+placeholder(len(args)+1)), append(args, *find.MinImportance)
	}
	if find.CreatedAfterTs != nil {
		where, args = append(where, "created_ts >= "+placeholder(len(args)+1)), append(args, *find.CreatedAfterTs)
	}

	order := "created_ts DESC, memory_id DESC"
	if find.OrderByImportance {
		order = "importance_score DESC, created_ts DESC"
	}
	query := `
		SELECT ` + longTermFields + `
		FROM long_term_memory
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ` + order
	if find.Limit > 0 {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, find.Limit)
		if find.Offset > 0 {
			query += " OFFSET " + placeholder(len(args)+1)
			args = append(args, find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list long term memories")
	}
	defer rows.Close()

	list := []*store.LongTermMemory{}
	for rows.Next() {
		memory, err := scanLongTerm(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, memory)
	}
	return list, rows.Err()
}

// MarkConsciousProcessed bulk-flips the conscious_processed flag.
func (d *DB) MarkConsciousProcessed(ctx context.Context, userID string, memoryIDs []string) error {
	if len(memoryIDs) == 0 {
		return nil
	}
	if _, err := d.db.ExecContext(ctx,
		"UPDATE long_term_memory SET conscious_processed = TRUE WHERE user_id = $1 AND memory_id = ANY($2)",
		userID, pq.Array(memoryIDs),
	); err != nil {
		return errors.Wrap(err, "failed to mark conscious processed")
	}
	return nil
}

// MarkDuplicate records the duplicate relation and the processed flag.
func (d *DB) MarkDuplicate(ctx context.Context, userID, memoryID, duplicateOf string) error {
	if _, err := d.db.ExecContext(ctx,
		"UPDATE long_term_memory SET duplicate_of = $1, processed_for_duplicates = TRUE WHERE user_id = $2 AND memory_id = $3",
		duplicateOf, userID, memoryID,
	); err != nil {
		return errors.Wrap(err, "failed to mark duplicate")
	}
	return nil
}

// DeleteLongTermMemories deletes tenant-scoped long-term rows.
func (d *DB) DeleteLongTermMemories(ctx context.Context, delete *store.DeleteLongTermMemory) (int64, error) {
	result, err := d.db.ExecContext(ctx, "DELETE FROM long_term_memory WHERE user_id = $1", delete.UserID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete long term memories")
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

func scanLongTerm(scanner rowScanner) (*store.LongTermMemory, error) {
	var memory store.LongTermMemory
	var entities, keywords, supersedes, related []byte
	if err := scanner.Scan(
		&memory.MemoryID,
		&memory.UserID,
		&memory.AssistantID,
		&memory.SessionID,
		&memory.Content,
		&memory.Summary,
		&memory.SearchableContent,
		&memory.Classification,
		&memory.MemoryImportance,
		&memory.Topic,
		&entities,
		&keywords,
		&memory.IsUserContext,
		&memory.IsPreference,
		&memory.IsSkillKnowledge,
		&memory.IsCurrentProject,
		&memory.PromotionEligible,
		&memory.DuplicateOf,
		&supersedes,
		&related,
		&memory.ProcessedForDuplicates,
		&memory.ConsciousProcessed,
		&memory.ImportanceScore,
		&memory.NoveltyScore,
		&memory.RelevanceScore,
		&memory.ActionabilityScore,
		&memory.ConfidenceScore,
		&memory.ClassificationReason,
		&memory.ChatID,
		&memory.Version,
		&memory.CreatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan long term memory")
	}
	memory.Entities = unmarshalList(entities)
	memory.Keywords = unmarshalList(keywords)
	memory.Supersedes = unmarshalList(supersedes)
	memory.RelatedMemories = unmarshalList(related)
	return &memory, nil
}

func marshalList(list []string) string {
	if list == nil {
		list = []string{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func unmarshalList(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return []string{}
	}
	return list
}
