package mongo

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hrygo/mnemosyne/store"
)

type chatDoc struct {
	ChatID      string         `bson:"_id"`
	UserID      string         `bson:"user_id"`
	AssistantID string         `bson:"assistant_id"`
	SessionID   string         `bson:"session_id"`
	UserInput   string         `bson:"user_input"`
	AIOutput    string         `bson:"ai_output"`
	Model       string         `bson:"model"`
	TokensUsed  int            `bson:"tokens_used"`
	Metadata    map[string]any `bson:"metadata,omitempty"`
	CreatedTs   int64          `bson:"created_ts"`
}

func (doc *chatDoc) toChatHistory() *store.ChatHistory {
	return &store.ChatHistory{
		ChatID:      doc.ChatID,
		UserID:      doc.UserID,
		AssistantID: doc.AssistantID,
		SessionID:   doc.SessionID,
		UserInput:   doc.UserInput,
		AIOutput:    doc.AIOutput,
		Model:       doc.Model,
		TokensUsed:  doc.TokensUsed,
		Metadata:    doc.Metadata,
		CreatedTs:   doc.CreatedTs,
	}
}

// UpsertChatHistory inserts or replaces a chat document by chat id.
func (d *DB) UpsertChatHistory(ctx context.Context, create *store.ChatHistory) (*store.ChatHistory, error) {
	doc := chatDoc{
		ChatID:      create.ChatID,
		UserID:      create.UserID,
		AssistantID: create.AssistantID,
		SessionID:   create.SessionID,
		UserInput:   create.UserInput,
		AIOutput:    create.AIOutput,
		Model:       create.Model,
		TokensUsed:  create.TokensUsed,
		Metadata:    create.Metadata,
		CreatedTs:   create.CreatedTs,
	}
	_, err := d.db.Collection(collChatHistory).ReplaceOne(ctx,
		bson.M{"_id": create.ChatID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert chat history")
	}
	return create, nil
}

// ListChatHistory lists chat documents newest-first.
func (d *DB) ListChatHistory(ctx context.Context, find *store.FindChatHistory) ([]*store.ChatHistory, error) {
	filter := bson.M{"user_id": find.UserID}
	if find.SessionID != nil {
		filter["session_id"] = *find.SessionID
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_ts", Value: -1}, {Key: "_id", Value: -1}})
	if find.Limit > 0 {
		opts.SetLimit(int64(find.Limit))
		if find.Offset > 0 {
			opts.SetSkip(int64(find.Offset))
		}
	}

	cursor, err := d.db.Collection(collChatHistory).Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list chat history")
	}
	defer cursor.Close(ctx)

	list := []*store.ChatHistory{}
	for cursor.Next(ctx) {
		var doc chatDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "failed to decode chat history")
		}
		list = append(list, doc.toChatHistory())
	}
	return list, cursor.Err()
}

// DeleteChatHistory deletes tenant-scoped chat documents and clears links
// from short-term documents.
func (d *DB) DeleteChatHistory(ctx context.Context, delete *store.DeleteChatHistory) (int64, error) {
	filter := bson.M{"user_id": delete.UserID}
	if delete.SessionID != nil {
		filter["session_id"] = *delete.SessionID
	}

	cursor, err := d.db.Collection(collChatHistory).Find(ctx, filter,
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return 0, errors.Wrap(err, "failed to find chats to delete")
	}
	var ids []string
	for cursor.Next(ctx) {
		var doc struct {
			ChatID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			cursor.Close(ctx)
			return 0, errors.Wrap(err, "failed to decode chat id")
		}
		ids = append(ids, doc.ChatID)
	}
	cursor.Close(ctx)

	if len(ids) > 0 {
		if _, err := d.db.Collection(collShortTerm).UpdateMany(ctx,
			bson.M{"chat_id": bson.M{"$in": ids}},
			bson.M{"$set": bson.M{"chat_id": ""}},
		); err != nil {
			return 0, errors.Wrap(err, "failed to clear chat links")
		}
	}

	result, err := d.db.Collection(collChatHistory).DeleteMany(ctx, filter)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete chat history")
	}
	return result.DeletedCount, nil
}
