package mongo

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hrygo/mnemosyne/store"
)

// FullTextSearch queries the weighted text indexes per tier. textScore has no
// upper bound, so it is squashed via x/(1+x) into (0, 1) for ranking.
func (d *DB) FullTextSearch(ctx context.Context, query *store.SearchQuery) ([]*store.SearchResult, error) {
	cleaned := store.NormalizeQuery(query.Query)
	if cleaned == "" {
		return []*store.SearchResult{}, nil
	}

	results := []*store.SearchResult{}
	for _, tier := range tiersOf(query.Tiers) {
		tierResults, err := d.textSearchTier(ctx, query, tier, cleaned)
		if err != nil {
			return nil, err
		}
		results = append(results, tierResults...)
		if query.Limit > 0 && len(results) >= query.Limit {
			break
		}
	}
	return clip(results, query.Limit), nil
}

func (d *DB) textSearchTier(ctx context.Context, query *store.SearchQuery, tier, cleaned string) ([]*store.SearchResult, error) {
	filter := tierFilter(query, tier)
	filter["$text"] = bson.M{"$search": cleaned}

	opts := options.Find().
		SetProjection(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetSort(bson.M{"score": bson.M{"$meta": "textScore"}})
	if query.Limit > 0 {
		opts.SetLimit(int64(query.Limit))
	}

	cursor, err := d.db.Collection(tierCollection(tier)).Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "text search failed")
	}
	defer cursor.Close(ctx)

	results := []*store.SearchResult{}
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, errors.Wrap(err, "failed to decode text search result")
		}
		r := resultFromDoc(raw, tier)
		score := floatField(raw, "score")
		r.SearchScore = score / (1 + score)
		r.SearchStrategy = store.StrategyFullText
		results = append(results, r)
	}
	return results, cursor.Err()
}

// LikeSearch is the fallback path: case-insensitive regex OR patterns for the
// whole query plus each word longer than two characters.
func (d *DB) LikeSearch(ctx context.Context, query *store.SearchQuery) ([]*store.SearchResult, error) {
	cleaned := store.NormalizeQuery(query.Query)
	if cleaned == "" {
		return []*store.SearchResult{}, nil
	}
	terms := append([]string{cleaned}, store.TokenizeQuery(cleaned)...)

	results := []*store.SearchResult{}
	for _, tier := range tiersOf(query.Tiers) {
		tierResults, err := d.regexSearchTier(ctx, query, tier, terms, tier+"_"+store.StrategyLikeFallback)
		if err != nil {
			return nil, err
		}
		results = append(results, tierResults...)
	}
	return clip(results, query.Limit), nil
}

func (d *DB) regexSearchTier(ctx context.Context, query *store.SearchQuery, tier string, terms []string, strategy string) ([]*store.SearchResult, error) {
	matchers := make([]bson.M, 0, len(terms)*2)
	for _, term := range terms {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
		matchers = append(matchers,
			bson.M{"searchable_content": pattern},
			bson.M{"summary": pattern},
		)
	}

	filter := tierFilter(query, tier)
	filter["$and"] = []bson.M{{"$or": matchers}}

	opts := options.Find().SetSort(bson.D{{Key: "importance_score", Value: -1}, {Key: "created_ts", Value: -1}})
	if query.Limit > 0 {
		opts.SetLimit(int64(query.Limit))
	}

	cursor, err := d.db.Collection(tierCollection(tier)).Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "regex search failed")
	}
	defer cursor.Close(ctx)

	results := []*store.SearchResult{}
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, errors.Wrap(err, "failed to decode regex search result")
		}
		r := resultFromDoc(raw, tier)
		r.SearchScore = store.LikeFallbackScore
		r.SearchStrategy = strategy
		results = append(results, r)
	}
	return results, cursor.Err()
}

// ListEntityMatches runs regex OR search over entity tokens.
func (d *DB) ListEntityMatches(ctx context.Context, query *store.EntityQuery) ([]*store.SearchResult, error) {
	terms := []string{}
	for _, entity := range query.Entities {
		for _, token := range strings.Fields(entity) {
			if len(token) > 2 {
				terms = append(terms, token)
			}
		}
	}
	if len(terms) == 0 {
		return []*store.SearchResult{}, nil
	}

	like := &store.SearchQuery{
		UserID:      query.UserID,
		AssistantID: query.AssistantID,
		SessionID:   query.SessionID,
		Tiers:       query.Tiers,
		Limit:       query.Limit,
	}
	results := []*store.SearchResult{}
	for _, tier := range tiersOf(query.Tiers) {
		tierResults, err := d.regexSearchTier(ctx, like, tier, terms, store.StrategyEntity)
		if err != nil {
			return nil, err
		}
		results = append(results, tierResults...)
	}
	return clip(results, query.Limit), nil
}

// tierFilter builds the tenant and expiry filter shared by every search path.
func tierFilter(query *store.SearchQuery, tier string) bson.M {
	filter := bson.M{"user_id": query.UserID}
	switch tier {
	case store.TierShortTerm:
		if query.SessionID != nil {
			filter["session_id"] = *query.SessionID
		}
		filter["$or"] = notExpiredFilter()["$or"]
	case store.TierLongTerm:
		assistantFilter(filter, query.AssistantID)
	}
	if query.MinImportance > 0 {
		filter["importance_score"] = bson.M{"$gte": query.MinImportance}
	}
	return filter
}

func tierCollection(tier string) string {
	if tier == store.TierLongTerm {
		return collLongTerm
	}
	return collShortTerm
}

func resultFromDoc(raw bson.M, tier string) *store.SearchResult {
	r := &store.SearchResult{
		MemoryID:          stringField(raw, "_id"),
		Tier:              tier,
		UserID:            stringField(raw, "user_id"),
		AssistantID:       stringField(raw, "assistant_id"),
		SessionID:         stringField(raw, "session_id"),
		SearchableContent: stringField(raw, "searchable_content"),
		Summary:           stringField(raw, "summary"),
		ImportanceScore:   floatField(raw, "importance_score"),
		CreatedTs:         intField(raw, "created_ts"),
		ProcessedData:     []byte("{}"),
	}
	if tier == store.TierLongTerm {
		r.CategoryPrimary = stringField(raw, "classification")
	} else {
		r.CategoryPrimary = stringField(raw, "category_primary")
		if processed := stringField(raw, "processed_data"); processed != "" {
			r.ProcessedData = []byte(processed)
		}
	}
	return r
}

func stringField(raw bson.M, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

func floatField(raw bson.M, key string) float64 {
	switch v := raw[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func intField(raw bson.M, key string) int64 {
	switch v := raw[key].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func tiersOf(tiers []string) []string {
	if len(tiers) == 0 {
		return []string{store.TierShortTerm, store.TierLongTerm}
	}
	return tiers
}

func clip(results []*store.SearchResult, limit int) []*store.SearchResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
