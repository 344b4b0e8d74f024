package store

// Classification values assigned by the memory classifier.
const (
	ClassificationEssential      = "essential"
	ClassificationContextual     = "contextual"
	ClassificationConversational = "conversational"
	ClassificationReference      = "reference"
	ClassificationPersonal       = "personal"
	ClassificationConsciousInfo  = "conscious-info"
)

// Memory importance levels assigned by the memory classifier.
const (
	ImportanceCritical = "critical"
	ImportanceHigh     = "high"
	ImportanceMedium   = "medium"
	ImportanceLow      = "low"
)

// LongTermMemory represents a classified, persistent memory row.
// Payload fields are immutable after creation; only processing-state flags
// and relations may change.
type LongTermMemory struct {
	MemoryID    string
	UserID      string
	AssistantID string // empty means shared across assistants
	SessionID   string

	Content           string
	Summary           string
	SearchableContent string

	Classification   string
	MemoryImportance string
	Topic            string
	Entities         []string
	Keywords         []string

	IsUserContext     bool
	IsPreference      bool
	IsSkillKnowledge  bool
	IsCurrentProject  bool
	PromotionEligible bool

	DuplicateOf     string
	Supersedes      []string
	RelatedMemories []string

	ProcessedForDuplicates bool
	ConsciousProcessed     bool

	ImportanceScore    float64
	NoveltyScore       float64
	RelevanceScore     float64
	ActionabilityScore float64
	ConfidenceScore    float64

	ClassificationReason string
	ChatID               string

	// Version is reserved for optimistic locking.
	Version   int
	CreatedTs int64
}

// FindLongTermMemory specifies the conditions for finding long-term rows.
// When AssistantID is set, rows matching the assistant OR rows with an empty
// assistant are returned (long-term memory without an assistant is shared).
type FindLongTermMemory struct {
	UserID             string
	AssistantID        *string
	Classification     *string
	ConsciousProcessed *bool
	PromotionEligible  *bool
	MinImportance      *float64
	CreatedAfterTs     *int64
	OrderByImportance  bool
	Limit              int
	Offset             int
}

// DeleteLongTermMemory specifies the conditions for deleting long-term rows.
type DeleteLongTermMemory struct {
	UserID string
}
