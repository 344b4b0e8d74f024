package mongo

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/hrygo/mnemosyne/store"
)

// GetMemoryStats returns counts by tier and classification plus the average
// importance across both tiers.
func (d *DB) GetMemoryStats(ctx context.Context, userID string) (*store.MemoryStats, error) {
	stats := &store.MemoryStats{
		UserID:           userID,
		CountsByCategory: map[string]int64{},
	}
	filter := bson.M{"user_id": userID}

	var err error
	if stats.ChatCount, err = d.db.Collection(collChatHistory).CountDocuments(ctx, filter); err != nil {
		return nil, errors.Wrap(err, "failed to count chat history")
	}
	if stats.ShortTermCount, err = d.db.Collection(collShortTerm).CountDocuments(ctx, filter); err != nil {
		return nil, errors.Wrap(err, "failed to count short term memories")
	}
	if stats.LongTermCount, err = d.db.Collection(collLongTerm).CountDocuments(ctx, filter); err != nil {
		return nil, errors.Wrap(err, "failed to count long term memories")
	}

	cursor, err := d.db.Collection(collLongTerm).Aggregate(ctx, []bson.M{
		{"$match": filter},
		{"$group": bson.M{"_id": "$classification", "count": bson.M{"$sum": 1}}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to count categories")
	}
	defer cursor.Close(ctx)
	for cursor.Next(ctx) {
		var group struct {
			Classification string `bson:"_id"`
			Count          int64  `bson:"count"`
		}
		if err := cursor.Decode(&group); err != nil {
			return nil, errors.Wrap(err, "failed to decode category count")
		}
		stats.CountsByCategory[group.Classification] = group.Count
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	var total float64
	var n int64
	for _, coll := range []string{collShortTerm, collLongTerm} {
		avgCursor, err := d.db.Collection(coll).Aggregate(ctx, []bson.M{
			{"$match": filter},
			{"$group": bson.M{"_id": nil, "sum": bson.M{"$sum": "$importance_score"}, "n": bson.M{"$sum": 1}}},
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to average importance")
		}
		for avgCursor.Next(ctx) {
			var group struct {
				Sum float64 `bson:"sum"`
				N   int64   `bson:"n"`
			}
			if err := avgCursor.Decode(&group); err != nil {
				avgCursor.Close(ctx)
				return nil, errors.Wrap(err, "failed to decode importance aggregate")
			}
			total += group.Sum
			n += group.N
		}
		avgCursor.Close(ctx)
	}
	if n > 0 {
		stats.AverageImportance = total / float64(n)
	}

	byteFields := map[string][]string{
		collChatHistory: {"user_input", "ai_output"},
		collShortTerm:   {"searchable_content", "summary"},
		collLongTerm:    {"content", "searchable_content", "summary"},
	}
	for coll, fields := range byteFields {
		terms := make([]bson.M, 0, len(fields))
		for _, field := range fields {
			terms = append(terms, bson.M{"$strLenBytes": bson.M{"$ifNull": []any{"$" + field, ""}}})
		}
		sizeCursor, err := d.db.Collection(coll).Aggregate(ctx, []bson.M{
			{"$match": filter},
			{"$group": bson.M{"_id": nil, "bytes": bson.M{"$sum": bson.M{"$add": terms}}}},
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to sum storage bytes")
		}
		for sizeCursor.Next(ctx) {
			var group struct {
				Bytes int64 `bson:"bytes"`
			}
			if err := sizeCursor.Decode(&group); err != nil {
				sizeCursor.Close(ctx)
				return nil, errors.Wrap(err, "failed to decode storage bytes")
			}
			stats.StorageBytes += group.Bytes
		}
		sizeCursor.Close(ctx)
	}

	return stats, nil
}
