package store

// ChatHistory represents one immutable user/assistant exchange.
type ChatHistory struct {
	ChatID      string
	UserID      string
	AssistantID string // empty means not scoped to an assistant
	SessionID   string
	UserInput   string
	AIOutput    string
	Model       string
	TokensUsed  int
	Metadata    map[string]any
	CreatedTs   int64
}

// FindChatHistory specifies the conditions for finding chat history rows.
type FindChatHistory struct {
	UserID    string
	SessionID *string
	Limit     int
	Offset    int
}

// DeleteChatHistory specifies the conditions for deleting chat history rows.
type DeleteChatHistory struct {
	UserID    string
	SessionID *string
}
