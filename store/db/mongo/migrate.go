package mongo

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Migrate creates the collections' indexes. Index creation in MongoDB is
// idempotent: re-creating an identical index is a no-op.
func (d *DB) Migrate(ctx context.Context) error {
	textWeights := bson.D{
		{Key: "searchable_content", Value: 10},
		{Key: "summary", Value: 5},
		{Key: "topic", Value: 3},
		{Key: "classification_reason", Value: 2},
	}
	textKeys := bson.D{
		{Key: "searchable_content", Value: "text"},
		{Key: "summary", Value: "text"},
		{Key: "topic", Value: "text"},
		{Key: "classification_reason", Value: "text"},
	}

	indexes := map[string][]mongo.IndexModel{
		collChatHistory: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "session_id", Value: 1}, {Key: "created_ts", Value: -1}}},
		},
		collShortTerm: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "category_primary", Value: 1}, {Key: "importance_score", Value: -1}}},
			{
				Keys:    bson.D{{Key: "searchable_content", Value: "text"}, {Key: "summary", Value: "text"}},
				Options: options.Index().SetName("short_term_text").SetWeights(bson.D{{Key: "searchable_content", Value: 10}, {Key: "summary", Value: 8}}),
			},
		},
		collLongTerm: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "classification", Value: 1}, {Key: "created_ts", Value: -1}}},
			{
				Keys:    textKeys,
				Options: options.Index().SetName("long_term_text").SetWeights(textWeights),
			},
		},
	}

	for coll, models := range indexes {
		if _, err := d.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "failed to create indexes for %s", coll)
		}
	}
	return nil
}
