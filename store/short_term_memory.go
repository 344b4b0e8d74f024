package store

import "encoding/json"

// Retention types for short-term memory rows.
const (
	RetentionShortTerm = "short_term"
	RetentionPermanent = "permanent"
)

// CategoryConsciousContext marks short-term rows promoted from conscious-info
// long-term memories.
const CategoryConsciousContext = "conscious_context"

// ShortTermMemory represents a row of the working context set.
type ShortTermMemory struct {
	MemoryID           string
	UserID             string
	AssistantID        string
	SessionID          string
	ProcessedData      json.RawMessage
	SearchableContent  string
	Summary            string
	CategoryPrimary    string
	RetentionType      string
	ImportanceScore    float64
	ExpiresTs          *int64 // nil means the row never expires
	IsPermanentContext bool
	AccessCount        int
	LastAccessedTs     *int64
	ChatID             string // optional link; cleared when the chat is deleted
	CreatedTs          int64
}

// FindShortTermMemory specifies the conditions for finding short-term rows.
// Expired rows are excluded unless IncludeExpired is set; rows with
// IsPermanentContext are always visible.
type FindShortTermMemory struct {
	UserID          string
	AssistantID     *string
	SessionID       *string
	CategoryPrimary *string
	IncludeExpired  bool
	Limit           int
	Offset          int
}

// DeleteShortTermMemory specifies the conditions for deleting short-term rows.
type DeleteShortTermMemory struct {
	UserID    string
	SessionID *string
}
