// Package store provides database access to all memory tiers.
// Tenant isolation is enforced here and in the drivers, never by callers.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/hrygo/mnemosyne/core/memerr"
	"github.com/hrygo/mnemosyne/internal/profile"
)

// MaxMemoryIDLength bounds memory and chat identifiers.
const MaxMemoryIDLength = 255

// Store provides validated access to the underlying driver.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) PoolStatus() *PoolStatus {
	return s.driver.PoolStatus()
}

func requireUser(op, userID string) error {
	if userID == "" {
		return &memerr.InvalidTenantError{Op: op}
	}
	return nil
}

func validateMemoryID(id string) error {
	if id == "" {
		return &memerr.ValidationError{Field: "memory_id", Reason: "must not be empty"}
	}
	if len(id) > MaxMemoryIDLength {
		return &memerr.ValidationError{Field: "memory_id", Reason: "exceeds 255 characters"}
	}
	return nil
}

// StoreChat upserts a chat history row by chat id.
func (s *Store) StoreChat(ctx context.Context, create *ChatHistory) (*ChatHistory, error) {
	if err := requireUser("store_chat", create.UserID); err != nil {
		return nil, err
	}
	if err := validateMemoryID(create.ChatID); err != nil {
		return nil, err
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	return s.driver.UpsertChatHistory(ctx, create)
}

// GetChatHistory lists chat rows newest-first.
func (s *Store) GetChatHistory(ctx context.Context, find *FindChatHistory) ([]*ChatHistory, error) {
	if err := requireUser("get_chat_history", find.UserID); err != nil {
		return nil, err
	}
	if find.Limit <= 0 {
		find.Limit = 50
	}
	return s.driver.ListChatHistory(ctx, find)
}

// StoreShortTerm inserts or replaces a short-term row by memory id.
func (s *Store) StoreShortTerm(ctx context.Context, upsert *ShortTermMemory) (*ShortTermMemory, error) {
	if err := requireUser("store_short_term", upsert.UserID); err != nil {
		return nil, err
	}
	if err := validateMemoryID(upsert.MemoryID); err != nil {
		return nil, err
	}
	if upsert.CreatedTs == 0 {
		upsert.CreatedTs = time.Now().Unix()
	}
	if upsert.RetentionType == "" {
		upsert.RetentionType = RetentionShortTerm
	}
	return s.driver.UpsertShortTermMemory(ctx, upsert)
}

// FindShortTermByID returns a single short-term row or nil.
func (s *Store) FindShortTermByID(ctx context.Context, memoryID, userID string) (*ShortTermMemory, error) {
	if err := requireUser("find_short_term_by_id", userID); err != nil {
		return nil, err
	}
	return s.driver.GetShortTermMemory(ctx, memoryID, userID)
}

// GetShortTerm lists short-term rows ordered by importance DESC, created DESC.
// Expired rows are filtered unless IncludeExpired is set.
func (s *Store) GetShortTerm(ctx context.Context, find *FindShortTermMemory) ([]*ShortTermMemory, error) {
	if err := requireUser("get_short_term", find.UserID); err != nil {
		return nil, err
	}
	if find.Limit <= 0 {
		find.Limit = 100
	}
	return s.driver.ListShortTermMemories(ctx, find)
}

// StoreLongTerm inserts a classified long-term memory row.
func (s *Store) StoreLongTerm(ctx context.Context, create *LongTermMemory) (*LongTermMemory, error) {
	if err := requireUser("store_long_term", create.UserID); err != nil {
		return nil, err
	}
	if err := validateMemoryID(create.MemoryID); err != nil {
		return nil, err
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	return s.driver.CreateLongTermMemory(ctx, create)
}

// ListLongTerm lists long-term rows with the shared-assistant rule applied.
func (s *Store) ListLongTerm(ctx context.Context, find *FindLongTermMemory) ([]*LongTermMemory, error) {
	if err := requireUser("list_long_term", find.UserID); err != nil {
		return nil, err
	}
	if find.Limit <= 0 {
		find.Limit = 100
	}
	return s.driver.ListLongTermMemories(ctx, find)
}

// GetConsciousMemories returns all conscious-info long-term rows for a user.
// When processedOnly is false, only unprocessed rows are returned.
func (s *Store) GetConsciousMemories(ctx context.Context, userID string, processedOnly *bool) ([]*LongTermMemory, error) {
	if err := requireUser("get_conscious_memories", userID); err != nil {
		return nil, err
	}
	classification := ClassificationConsciousInfo
	return s.driver.ListLongTermMemories(ctx, &FindLongTermMemory{
		UserID:             userID,
		Classification:     &classification,
		ConsciousProcessed: processedOnly,
		Limit:              1000,
	})
}

// MarkConsciousProcessed bulk-flips the conscious_processed flag.
func (s *Store) MarkConsciousProcessed(ctx context.Context, userID string, memoryIDs []string) error {
	if err := requireUser("mark_conscious_processed", userID); err != nil {
		return err
	}
	if len(memoryIDs) == 0 {
		return nil
	}
	return s.driver.MarkConsciousProcessed(ctx, userID, memoryIDs)
}

// MarkDuplicate records a duplicate relation on a long-term row.
func (s *Store) MarkDuplicate(ctx context.Context, userID, memoryID, duplicateOf string) error {
	if err := requireUser("mark_duplicate", userID); err != nil {
		return err
	}
	return s.driver.MarkDuplicate(ctx, userID, memoryID, duplicateOf)
}

// GetMemoryStats returns counts by tier and category plus average importance.
func (s *Store) GetMemoryStats(ctx context.Context, userID string) (*MemoryStats, error) {
	if err := requireUser("get_memory_stats", userID); err != nil {
		return nil, err
	}
	return s.driver.GetMemoryStats(ctx, userID)
}

// ClearMemory deletes tenant-scoped rows. Tier is one of short_term,
// long_term, chat, or empty for everything.
func (s *Store) ClearMemory(ctx context.Context, userID, tier string) (int64, error) {
	if err := requireUser("clear_memory", userID); err != nil {
		return 0, err
	}
	var total int64
	switch tier {
	case TierShortTerm:
		return s.driver.DeleteShortTermMemories(ctx, &DeleteShortTermMemory{UserID: userID})
	case TierLongTerm:
		return s.driver.DeleteLongTermMemories(ctx, &DeleteLongTermMemory{UserID: userID})
	case "chat":
		return s.driver.DeleteChatHistory(ctx, &DeleteChatHistory{UserID: userID})
	case "", "all":
		n, err := s.driver.DeleteShortTermMemories(ctx, &DeleteShortTermMemory{UserID: userID})
		if err != nil {
			return total, err
		}
		total += n
		n, err = s.driver.DeleteLongTermMemories(ctx, &DeleteLongTermMemory{UserID: userID})
		if err != nil {
			return total, err
		}
		total += n
		n, err = s.driver.DeleteChatHistory(ctx, &DeleteChatHistory{UserID: userID})
		if err != nil {
			return total, err
		}
		return total + n, nil
	default:
		return 0, &memerr.ValidationError{Field: "tier", Reason: "unknown tier " + tier}
	}
}

// MemoryListing is a page of the cross-tier union listing.
type MemoryListing struct {
	Rows       []*SearchResult
	TotalCount int64
}

// ListMemories returns a merged page across both tiers, sorted by creation
// time. Each row is tagged with its tier; TotalCount counts both tiers in
// full regardless of the page size.
func (s *Store) ListMemories(ctx context.Context, userID string, descending bool, limit int) (*MemoryListing, error) {
	if err := requireUser("list_memories", userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	shortRows, err := s.driver.ListShortTermMemories(ctx, &FindShortTermMemory{UserID: userID, Limit: 10000})
	if err != nil {
		return nil, err
	}
	longRows, err := s.driver.ListLongTermMemories(ctx, &FindLongTermMemory{UserID: userID, Limit: 10000})
	if err != nil {
		return nil, err
	}

	merged := make([]*SearchResult, 0, len(shortRows)+len(longRows))
	for _, row := range shortRows {
		merged = append(merged, &SearchResult{
			MemoryID:          row.MemoryID,
			Tier:              TierShortTerm,
			UserID:            row.UserID,
			AssistantID:       row.AssistantID,
			SessionID:         row.SessionID,
			SearchableContent: row.SearchableContent,
			Summary:           row.Summary,
			CategoryPrimary:   row.CategoryPrimary,
			ProcessedData:     row.ProcessedData,
			ImportanceScore:   row.ImportanceScore,
			CreatedTs:         row.CreatedTs,
		})
	}
	for _, row := range longRows {
		merged = append(merged, &SearchResult{
			MemoryID:          row.MemoryID,
			Tier:              TierLongTerm,
			UserID:            row.UserID,
			AssistantID:       row.AssistantID,
			SessionID:         row.SessionID,
			SearchableContent: row.SearchableContent,
			Summary:           row.Summary,
			CategoryPrimary:   row.Classification,
			ImportanceScore:   row.ImportanceScore,
			CreatedTs:         row.CreatedTs,
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if descending {
			return merged[i].CreatedTs > merged[j].CreatedTs
		}
		return merged[i].CreatedTs < merged[j].CreatedTs
	})

	total := int64(len(merged))
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return &MemoryListing{Rows: merged, TotalCount: total}, nil
}

// FullTextSearch runs the backend's native text search.
func (s *Store) FullTextSearch(ctx context.Context, query *SearchQuery) ([]*SearchResult, error) {
	if err := requireUser("search_memories", query.UserID); err != nil {
		return nil, err
	}
	return s.driver.FullTextSearch(ctx, query)
}

// LikeSearch runs the LIKE fallback search.
func (s *Store) LikeSearch(ctx context.Context, query *SearchQuery) ([]*SearchResult, error) {
	if err := requireUser("search_memories", query.UserID); err != nil {
		return nil, err
	}
	return s.driver.LikeSearch(ctx, query)
}

// ListEntityMatches runs LIKE-pattern OR search over entity tokens.
func (s *Store) ListEntityMatches(ctx context.Context, query *EntityQuery) ([]*SearchResult, error) {
	if err := requireUser("search_memories", query.UserID); err != nil {
		return nil, err
	}
	return s.driver.ListEntityMatches(ctx, query)
}
