package store

import "context"

// Driver is the interface implemented by each storage backend.
// All tenant filtering happens inside the driver: every query embeds the
// user filter, and the assistant filter follows the shared-row rule for
// long-term memory (empty assistant matches everyone).
type Driver interface {
	Migrate(ctx context.Context) error
	Close() error
	// Type returns the backend identifier: sqlite, postgres, mysql, mongodb.
	Type() string
	PoolStatus() *PoolStatus

	// Chat history.
	UpsertChatHistory(ctx context.Context, create *ChatHistory) (*ChatHistory, error)
	ListChatHistory(ctx context.Context, find *FindChatHistory) ([]*ChatHistory, error)
	DeleteChatHistory(ctx context.Context, delete *DeleteChatHistory) (int64, error)

	// Short-term memory.
	UpsertShortTermMemory(ctx context.Context, upsert *ShortTermMemory) (*ShortTermMemory, error)
	GetShortTermMemory(ctx context.Context, memoryID, userID string) (*ShortTermMemory, error)
	ListShortTermMemories(ctx context.Context, find *FindShortTermMemory) ([]*ShortTermMemory, error)
	DeleteShortTermMemories(ctx context.Context, delete *DeleteShortTermMemory) (int64, error)

	// Long-term memory.
	CreateLongTermMemory(ctx context.Context, create *LongTermMemory) (*LongTermMemory, error)
	ListLongTermMemories(ctx context.Context, find *FindLongTermMemory) ([]*LongTermMemory, error)
	MarkConsciousProcessed(ctx context.Context, userID string, memoryIDs []string) error
	MarkDuplicate(ctx context.Context, userID, memoryID, duplicateOf string) error
	DeleteLongTermMemories(ctx context.Context, delete *DeleteLongTermMemory) (int64, error)

	// Search primitives. FullTextSearch uses the backend's native text index
	// and returns an error on index failure so the caller can fall back to
	// LikeSearch. ListEntityMatches runs LIKE-pattern OR over entity tokens.
	FullTextSearch(ctx context.Context, query *SearchQuery) ([]*SearchResult, error)
	LikeSearch(ctx context.Context, query *SearchQuery) ([]*SearchResult, error)
	ListEntityMatches(ctx context.Context, query *EntityQuery) ([]*SearchResult, error)

	GetMemoryStats(ctx context.Context, userID string) (*MemoryStats, error)
}
