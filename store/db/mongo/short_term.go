package mongo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hrygo/mnemosyne/store"
)

type shortTermDoc struct {
	MemoryID           string `bson:"_id"`
	UserID             string `bson:"user_id"`
	AssistantID        string `bson:"assistant_id"`
	SessionID          string `bson:"session_id"`
	ProcessedData      string `bson:"processed_data"`
	SearchableContent  string `bson:"searchable_content"`
	Summary            string `bson:"summary"`
	CategoryPrimary    string `bson:"category_primary"`
	RetentionType      string `bson:"retention_type"`
	ImportanceScore    float64 `bson:"importance_score"`
	ExpiresTs          *int64 `bson:"expires_ts,omitempty"`
	IsPermanentContext bool   `bson:"is_permanent_context"`
	AccessCount        int    `bson:"access_count"`
	LastAccessedTs     *int64 `bson:"last_accessed_ts,omitempty"`
	ChatID             string `bson:"chat_id"`
	CreatedTs          int64  `bson:"created_ts"`
}

func (doc *shortTermDoc) toShortTermMemory() *store.ShortTermMemory {
	return &store.ShortTermMemory{
		MemoryID:           doc.MemoryID,
		UserID:             doc.UserID,
		AssistantID:        doc.AssistantID,
		SessionID:          doc.SessionID,
		ProcessedData:      json.RawMessage(doc.ProcessedData),
		SearchableContent:  doc.SearchableContent,
		Summary:            doc.Summary,
		CategoryPrimary:    doc.CategoryPrimary,
		RetentionType:      doc.RetentionType,
		ImportanceScore:    doc.ImportanceScore,
		ExpiresTs:          doc.ExpiresTs,
		IsPermanentContext: doc.IsPermanentContext,
		AccessCount:        doc.AccessCount,
		LastAccessedTs:     doc.LastAccessedTs,
		ChatID:             doc.ChatID,
		CreatedTs:          doc.CreatedTs,
	}
}

func toShortTermDoc(memory *store.ShortTermMemory) *shortTermDoc {
	processed := string(memory.ProcessedData)
	if processed == "" {
		processed = "{}"
	}
	return &shortTermDoc{
		MemoryID:           memory.MemoryID,
		UserID:             memory.UserID,
		AssistantID:        memory.AssistantID,
		SessionID:          memory.SessionID,
		ProcessedData:      processed,
		SearchableContent:  memory.SearchableContent,
		Summary:            memory.Summary,
		CategoryPrimary:    memory.CategoryPrimary,
		RetentionType:      memory.RetentionType,
		ImportanceScore:    memory.ImportanceScore,
		ExpiresTs:          memory.ExpiresTs,
		IsPermanentContext: memory.IsPermanentContext,
		AccessCount:        memory.AccessCount,
		LastAccessedTs:     memory.LastAccessedTs,
		ChatID:             memory.ChatID,
		CreatedTs:          memory.CreatedTs,
	}
}

// notExpiredFilter hides rows past their expiry unless they are permanent.
func notExpiredFilter() bson.M {
	return bson.M{"$or": []bson.M{
		{"expires_ts": bson.M{"$exists": false}},
		{"expires_ts": nil},
		{"expires_ts": bson.M{"$gt": time.Now().Unix()}},
		{"is_permanent_context": true},
	}}
}

// UpsertShortTermMemory inserts or replaces a short-term document.
func (d *DB) UpsertShortTermMemory(ctx context.Context, upsert *store.ShortTermMemory) (*store.ShortTermMemory, error) {
	_, err := d.db.Collection(collShortTerm).ReplaceOne(ctx,
		bson.M{"_id": upsert.MemoryID},
		toShortTermDoc(upsert),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert short term memory")
	}
	return upsert, nil
}

// GetShortTermMemory returns a single document or nil when absent.
func (d *DB) GetShortTermMemory(ctx context.Context, memoryID, userID string) (*store.ShortTermMemory, error) {
	var doc shortTermDoc
	err := d.db.Collection(collShortTerm).FindOne(ctx,
		bson.M{"_id": memoryID, "user_id": userID},
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get short term memory")
	}
	return doc.toShortTermMemory(), nil
}

// ListShortTermMemories lists documents ordered by importance DESC, created DESC.
func (d *DB) ListShortTermMemories(ctx context.Context, find *store.FindShortTermMemory) ([]*store.ShortTermMemory, error) {
	filter := bson.M{"user_id": find.UserID}
	if find.SessionID != nil {
		filter["session_id"] = *find.SessionID
	}
	if find.CategoryPrimary != nil {
		filter["category_primary"] = *find.CategoryPrimary
	}
	if !find.IncludeExpired {
		filter["$or"] = notExpiredFilter()["$or"]
	}

	opts := options.Find().SetSort(bson.D{{Key: "importance_score", Value: -1}, {Key: "created_ts", Value: -1}})
	if find.Limit > 0 {
		opts.SetLimit(int64(find.Limit))
		if find.Offset > 0 {
			opts.SetSkip(int64(find.Offset))
		}
	}

	cursor, err := d.db.Collection(collShortTerm).Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list short term memories")
	}
	defer cursor.Close(ctx)

	list := []*store.ShortTermMemory{}
	for cursor.Next(ctx) {
		var doc shortTermDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "failed to decode short term memory")
		}
		list = append(list, doc.toShortTermMemory())
	}
	return list, cursor.Err()
}

// DeleteShortTermMemories deletes tenant-scoped short-term documents.
func (d *DB) DeleteShortTermMemories(ctx context.Context, delete *store.DeleteShortTermMemory) (int64, error) {
	filter := bson.M{"user_id": delete.UserID}
	if delete.SessionID != nil {
		filter["session_id"] = *delete.SessionID
	}
	result, err := d.db.Collection(collShortTerm).DeleteMany(ctx, filter)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete short term memories")
	}
	return result.DeletedCount, nil
}
