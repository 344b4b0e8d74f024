package classify

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"

	"github.com/hrygo/mnemosyne/ai/core/llm"
)

// ProcessedMemory is the classifier's structured output for one exchange.
type ProcessedMemory struct {
	Content              string   `json:"content"`
	Summary              string   `json:"summary"`
	Classification       string   `json:"classification"`
	Importance           string   `json:"importance"`
	Topic                string   `json:"topic"`
	Entities             []string `json:"entities"`
	Keywords             []string `json:"keywords"`
	IsUserContext        bool     `json:"is_user_context"`
	IsPreference         bool     `json:"is_preference"`
	IsSkillKnowledge     bool     `json:"is_skill_knowledge"`
	IsCurrentProject     bool     `json:"is_current_project"`
	DuplicateOf          string   `json:"duplicate_of,omitempty"`
	Supersedes           []string `json:"supersedes"`
	RelatedMemories      []string `json:"related_memories"`
	ConfidenceScore      float64  `json:"confidence_score"`
	ClassificationReason string   `json:"classification_reason"`
	PromotionEligible    bool     `json:"promotion_eligible"`
}

// memorySchemaJSON is the validation schema applied to every classifier
// output before it is accepted. Invalid outputs are dropped, not repaired.
const memorySchemaJSON = `{
	"type": "object",
	"properties": {
		"content": {"type": "string", "minLength": 1},
		"summary": {"type": "string", "minLength": 1},
		"classification": {
			"type": "string",
			"enum": ["essential", "contextual", "conversational", "reference", "personal", "conscious-info"]
		},
		"importance": {
			"type": "string",
			"enum": ["critical", "high", "medium", "low"]
		},
		"topic": {"type": "string"},
		"entities": {"type": "array", "items": {"type": "string"}},
		"keywords": {"type": "array", "items": {"type": "string"}},
		"is_user_context": {"type": "boolean"},
		"is_preference": {"type": "boolean"},
		"is_skill_knowledge": {"type": "boolean"},
		"is_current_project": {"type": "boolean"},
		"duplicate_of": {"type": "string"},
		"supersedes": {"type": "array", "items": {"type": "string"}},
		"related_memories": {"type": "array", "items": {"type": "string"}},
		"confidence_score": {"type": "number", "minimum": 0, "maximum": 1},
		"classification_reason": {"type": "string"},
		"promotion_eligible": {"type": "boolean"}
	},
	"required": ["content", "summary", "classification", "importance", "confidence_score", "classification_reason"]
}`

var memorySchema = gojsonschema.NewStringLoader(memorySchemaJSON)

// ValidateOutput checks raw classifier JSON against the memory schema and
// decodes it on success.
func ValidateOutput(raw json.RawMessage) (*ProcessedMemory, error) {
	result, err := gojsonschema.Validate(memorySchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "schema validation failed")
	}
	if !result.Valid() {
		return nil, errors.Errorf("classifier output rejected: %v", result.Errors())
	}

	var memory ProcessedMemory
	if err := json.Unmarshal(raw, &memory); err != nil {
		return nil, errors.Wrap(err, "failed to decode classifier output")
	}
	return &memory, nil
}

// ImportanceScore maps the categorical importance to the [0,1] score stored
// on the row.
func ImportanceScore(importance string) float64 {
	switch importance {
	case "critical":
		return 1.0
	case "high":
		return 0.8
	case "medium":
		return 0.5
	case "low":
		return 0.3
	default:
		return 0.5
	}
}

// responseSchema is the structured-output schema sent to the LLM.
var responseSchema = &llm.ResponseSchema{
	Name: "processed_memory",
	Schema: &llm.JSONSchema{
		Type: "object",
		Properties: map[string]*llm.JSONSchema{
			"content": {Type: "string"},
			"summary": {Type: "string"},
			"classification": {
				Type: "string",
				Enum: []string{"essential", "contextual", "conversational", "reference", "personal", "conscious-info"},
			},
			"importance": {
				Type: "string",
				Enum: []string{"critical", "high", "medium", "low"},
			},
			"topic":                 {Type: "string"},
			"entities":              {Type: "array", Items: &llm.JSONSchema{Type: "string"}},
			"keywords":              {Type: "array", Items: &llm.JSONSchema{Type: "string"}},
			"is_user_context":       {Type: "boolean"},
			"is_preference":         {Type: "boolean"},
			"is_skill_knowledge":    {Type: "boolean"},
			"is_current_project":    {Type: "boolean"},
			"duplicate_of":          {Type: "string"},
			"supersedes":            {Type: "array", Items: &llm.JSONSchema{Type: "string"}},
			"related_memories":      {Type: "array", Items: &llm.JSONSchema{Type: "string"}},
			"confidence_score":      {Type: "number"},
			"classification_reason": {Type: "string"},
			"promotion_eligible":    {Type: "boolean"},
		},
		Required: []string{
			"content", "summary", "classification", "importance", "topic",
			"entities", "keywords", "is_user_context", "is_preference",
			"is_skill_knowledge", "is_current_project", "supersedes",
			"related_memories", "confidence_score", "classification_reason",
			"promotion_eligible",
		},
	},
}
