package mongo

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hrygo/mnemosyne/store"
)

type longTermDoc struct {
	MemoryID    string `bson:"_id"`
	UserID      string `bson:"user_id"`
	AssistantID string `bson:"assistant_id"`
	SessionID   string `bson:"session_id"`

	Content           string `bson:"content"`
	Summary           string `bson:"summary"`
	SearchableContent string `bson:"searchable_content"`

	Classification   string   `bson:"classification"`
	MemoryImportance string   `bson:"memory_importance"`
	Topic            string   `bson:"topic"`
	Entities         []string `bson:"entities"`
	Keywords         []string `bson:"keywords"`

	IsUserContext     bool `bson:"is_user_context"`
	IsPreference      bool `bson:"is_preference"`
	IsSkillKnowledge  bool `bson:"is_skill_knowledge"`
	IsCurrentProject  bool `bson:"is_current_project"`
	PromotionEligible bool `bson:"promotion_eligible"`

	DuplicateOf     string   `bson:"duplicate_of"`
	Supersedes      []string `bson:"supersedes"`
	RelatedMemories []string `bson:"related_memories"`

	ProcessedForDuplicates bool `bson:"processed_for_duplicates"`
	ConsciousProcessed     bool `bson:"conscious_processed"`

	ImportanceScore    float64 `bson:"importance_score"`
	NoveltyScore       float64 `bson:"novelty_score"`
	RelevanceScore     float64 `bson:"relevance_score"`
	ActionabilityScore float64 `bson:"actionability_score"`
	ConfidenceScore    float64 `bson:"confidence_score"`

	ClassificationReason string `bson:"classification_reason"`
	ChatID               string `bson:"chat_id"`
	Version              int    `bson:"version"`
	CreatedTs            int64  `bson:"created_ts"`
}

func (doc *longTermDoc) toLongTermMemory() *store.LongTermMemory {
	return &store.LongTermMemory{
		MemoryID:               doc.MemoryID,
		UserID:                 doc.UserID,
		AssistantID:            doc.AssistantID,
		SessionID:              doc.SessionID,
		Content:                doc.Content,
		Summary:                doc.Summary,
		SearchableContent:      doc.SearchableContent,
		Classification:         doc.Classification,
		MemoryImportance:       doc.MemoryImportance,
		Topic:                  doc.Topic,
		Entities:               doc.Entities,
		Keywords:               doc.Keywords,
		IsUserContext:          doc.IsUserContext,
		IsPreference:           doc.IsPreference,
		IsSkillKnowledge:       doc.IsSkillKnowledge,
		IsCurrentProject:       doc.IsCurrentProject,
		PromotionEligible:      doc.PromotionEligible,
		DuplicateOf:            doc.DuplicateOf,
		Supersedes:             doc.Supersedes,
		RelatedMemories:        doc.RelatedMemories,
		ProcessedForDuplicates: doc.ProcessedForDuplicates,
		ConsciousProcessed:     doc.ConsciousProcessed,
		ImportanceScore:        doc.ImportanceScore,
		NoveltyScore:           doc.NoveltyScore,
		RelevanceScore:         doc.RelevanceScore,
		ActionabilityScore:     doc.ActionabilityScore,
		ConfidenceScore:        doc.ConfidenceScore,
		ClassificationReason:   doc.ClassificationReason,
		ChatID:                 doc.ChatID,
		Version:                doc.Version,
		CreatedTs:              doc.CreatedTs,
	}
}

// assistantFilter applies the shared-row rule: an empty assistant matches
// every assistant.
func assistantFilter(filter bson.M, assistantID *string) {
	if assistantID != nil {
		filter["$or"] = []bson.M{
			{"assistant_id": ""},
			{"assistant_id": *assistantID},
		}
	}
}

// CreateLongTermMemory inserts a classified long-term document.
func (d *DB) CreateLongTermMemory(ctx context.Context, create *store.LongTermMemory) (*store.LongTermMemory, error) {
	doc := longTermDoc{
		MemoryID:               create.MemoryID,
		UserID:                 create.UserID,
		AssistantID:            create.AssistantID,
		SessionID:              create.SessionID,
		Content:                create.Content,
		Summary:                create.Summary,
		SearchableContent:      create.SearchableContent,
		Classification:         create.Classification,
		MemoryImportance:       create.MemoryImportance,
		Topic:                  create.Topic,
		Entities:               emptyIfNil(create.Entities),
		Keywords:               emptyIfNil(create.Keywords),
		IsUserContext:          create.IsUserContext,
		IsPreference:           create.IsPreference,
		IsSkillKnowledge:       create.IsSkillKnowledge,
		IsCurrentProject:       create.IsCurrentProject,
		PromotionEligible:      create.PromotionEligible,
		DuplicateOf:            create.DuplicateOf,
		Supersedes:             emptyIfNil(create.Supersedes),
		RelatedMemories:        emptyIfNil(create.RelatedMemories),
		ProcessedForDuplicates: create.ProcessedForDuplicates,
		ConsciousProcessed:     create.ConsciousProcessed,
		ImportanceScore:        create.ImportanceScore,
		NoveltyScore:           create.NoveltyScore,
		RelevanceScore:         create.RelevanceScore,
		ActionabilityScore:     create.ActionabilityScore,
		ConfidenceScore:        create.ConfidenceScore,
		ClassificationReason:   create.ClassificationReason,
		ChatID:                 create.ChatID,
		Version:                create.Version,
		CreatedTs:              create.CreatedTs,
	}
	if _, err := d.db.Collection(collLongTerm).InsertOne(ctx, doc); err != nil {
		return nil, errors.Wrap(err, "failed to create long term memory")
	}
	return create, nil
}

// ListLongTermMemories lists documents for a user.
func (d *DB) ListLongTermMemories(ctx context.Context, find *store.FindLongTermMemory) ([]*store.LongTermMemory, error) {
	filter := bson.M{"user_id": find.UserID}
	assistantFilter(filter, find.AssistantID)
	if find.Classification != nil {
		filter["classification"] = *find.Classification
	}
	if find.ConsciousProcessed != nil {
		filter["conscious_processed"] = *find.ConsciousProcessed
	}
	if find.PromotionEligible != nil {
		filter["promotion_eligible"] = *find.PromotionEligible
	}
	if find.MinImportance != nil {
		filter["importance_score"] = bson.M{"$gte": *find.MinImportance}
	}
	if find.CreatedAfterTs != nil {
		filter["created_ts"] = bson.M{"$gte": *find.CreatedAfterTs}
	}

	sortSpec := bson.D{{Key: "created_ts", Value: -1}, {Key: "_id", Value: -1}}
	if find.OrderByImportance {
		sortSpec = bson.D{{Key: "importance_score", Value: -1}, {Key: "created_ts", Value: -1}}
	}
	opts := options.Find().SetSort(sortSpec)
	if find.Limit > 0 {
		opts.SetLimit(int64(find.Limit))
		if find.Offset > 0 {
			opts.SetSkip(int64(find.Offset))
		}
	}

	cursor, err := d.db.Collection(collLongTerm).Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list long term memories")
	}
	defer cursor.Close(ctx)

	list := []*store.LongTermMemory{}
	for cursor.Next(ctx) {
		var doc longTermDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "failed to decode long term memory")
		}
		list = append(list, doc.toLongTermMemory())
	}
	return list, cursor.Err()
}

// MarkConsciousProcessed bulk-flips the conscious_processed flag.
func (d *DB) MarkConsciousProcessed(ctx context.Context, userID string, memoryIDs []string) error {
	if len(memoryIDs) == 0 {
		return nil
	}
	if _, err := d.db.Collection(collLongTerm).UpdateMany(ctx,
		bson.M{"user_id": userID, "_id": bson.M{"$in": memoryIDs}},
		bson.M{"$set": bson.M{"conscious_processed": true}},
	); err != nil {
		return errors.Wrap(err, "failed to mark conscious processed")
	}
	return nil
}

// MarkDuplicate records the duplicate relation and the processed flag.
func (d *DB) MarkDuplicate(ctx context.Context, userID, memoryID, duplicateOf string) error {
	if _, err := d.db.Collection(collLongTerm).UpdateOne(ctx,
		bson.M{"user_id": userID, "_id": memoryID},
		bson.M{"$set": bson.M{"duplicate_of": duplicateOf, "processed_for_duplicates": true}},
	); err != nil {
		return errors.Wrap(err, "failed to mark duplicate")
	}
	return nil
}

// DeleteLongTermMemories deletes tenant-scoped long-term documents.
func (d *DB) DeleteLongTermMemories(ctx context.Context, delete *store.DeleteLongTermMemory) (int64, error) {
	result, err := d.db.Collection(collLongTerm).DeleteMany(ctx, bson.M{"user_id": delete.UserID})
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete long term memories")
	}
	return result.DeletedCount, nil
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
