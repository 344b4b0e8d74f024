package classify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOutput() map[string]any {
	return map[string]any{
		"content":               "User prefers PostgreSQL for analytics workloads",
		"summary":               "Prefers PostgreSQL for analytics",
		"classification":        "essential",
		"importance":            "high",
		"topic":                 "databases",
		"entities":              []string{"PostgreSQL"},
		"keywords":              []string{"postgres", "analytics"},
		"is_user_context":       true,
		"is_preference":         true,
		"is_skill_knowledge":    false,
		"is_current_project":    false,
		"supersedes":            []string{},
		"related_memories":      []string{},
		"confidence_score":      0.9,
		"classification_reason": "explicit stated preference",
		"promotion_eligible":    true,
	}
}

func TestValidateOutputAccepts(t *testing.T) {
	raw, err := json.Marshal(validOutput())
	require.NoError(t, err)

	memory, err := ValidateOutput(raw)
	require.NoError(t, err)
	assert.Equal(t, "essential", memory.Classification)
	assert.Equal(t, "high", memory.Importance)
	assert.True(t, memory.IsPreference)
}

func TestValidateOutputRejectsBadClassification(t *testing.T) {
	out := validOutput()
	out["classification"] = "interesting"
	raw, _ := json.Marshal(out)

	_, err := ValidateOutput(raw)
	assert.ErrorContains(t, err, "rejected")
}

func TestValidateOutputRejectsMissingFields(t *testing.T) {
	raw := []byte(`{"content": "something"}`)

	_, err := ValidateOutput(raw)
	assert.ErrorContains(t, err, "rejected")
}

func TestValidateOutputRejectsScoreOutOfRange(t *testing.T) {
	out := validOutput()
	out["confidence_score"] = 1.5
	raw, _ := json.Marshal(out)

	_, err := ValidateOutput(raw)
	assert.Error(t, err)
}

func TestImportanceScore(t *testing.T) {
	assert.Equal(t, 1.0, ImportanceScore("critical"))
	assert.Equal(t, 0.8, ImportanceScore("high"))
	assert.Equal(t, 0.5, ImportanceScore("medium"))
	assert.Equal(t, 0.3, ImportanceScore("low"))
	assert.Equal(t, 0.5, ImportanceScore("unknown"))
}
