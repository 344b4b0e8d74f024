// Package classify turns raw conversation exchanges into typed long-term
// memory rows via the LLM.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hrygo/mnemosyne/ai/core/llm"
	"github.com/hrygo/mnemosyne/internal/strutil"
	"github.com/hrygo/mnemosyne/core/memerr"
	"github.com/hrygo/mnemosyne/core/tenant"
	"github.com/hrygo/mnemosyne/store"
)

const (
	classifyTimeout = 60 * time.Second
	maxRetries      = 2
	retryGap        = 2 * time.Second

	recentSummaries = 10
	promptInputMax  = 2000
)

// FilterFunc decides whether a classified memory is stored. Returning false
// discards it; the reason is logged.
type FilterFunc func(memory *ProcessedMemory) (keep bool, reason string)

// Classifier drives LLM classification, validation, dedup, and storage.
type Classifier struct {
	llm     llm.Service
	store   *store.Store
	tenants *tenant.Manager
	filters []FilterFunc
}

// NewClassifier creates a classifier. Filters run in order before storage.
func NewClassifier(svc llm.Service, s *store.Store, tenants *tenant.Manager, filters ...FilterFunc) *Classifier {
	return &Classifier{
		llm:     svc,
		store:   s,
		tenants: tenants,
		filters: filters,
	}
}

// ProcessConversation classifies one exchange and stores the resulting
// long-term row. Returns nil without error when a filter discarded the
// memory. Each attempt gets its own timeout and re-sets the tenant context,
// since background goroutines do not inherit it.
func (c *Classifier) ProcessConversation(ctx context.Context, tctx *tenant.Context, chatID, userInput, aiOutput string) (*store.LongTermMemory, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryGap):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		c.tenants.Set(tctx)

		row, err := c.processOnce(ctx, tctx, chatID, userInput, aiOutput)
		if err == nil {
			return row, nil
		}
		lastErr = &memerr.ClassifierError{Attempt: attempt + 1, Err: err}
		slog.Warn("classification attempt failed",
			"attempt", attempt+1,
			"user_id", tctx.UserID,
			"chat_id", chatID,
			"error", err,
		)
	}
	return nil, lastErr
}

func (c *Classifier) processOnce(ctx context.Context, tctx *tenant.Context, chatID, userInput, aiOutput string) (*store.LongTermMemory, error) {
	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	prompt, err := c.buildPrompt(ctx, tctx, userInput, aiOutput)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if _, err := c.llm.ChatStructured(ctx, prompt, responseSchema, &raw); err != nil {
		return nil, err
	}

	memory, err := ValidateOutput(raw)
	if err != nil {
		return nil, err
	}

	for _, filter := range c.filters {
		if keep, reason := filter(memory); !keep {
			slog.Info("memory discarded by filter",
				"user_id", tctx.UserID,
				"chat_id", chatID,
				"reason", reason,
			)
			return nil, nil
		}
	}

	if memory.DuplicateOf == "" {
		duplicateOf, err := c.findDuplicate(ctx, tctx.UserID, memory.Summary)
		if err != nil {
			slog.Warn("duplicate check failed, storing anyway", "error", err)
		} else {
			memory.DuplicateOf = duplicateOf
		}
	}

	return c.storeMemory(ctx, tctx, chatID, memory)
}

func (c *Classifier) storeMemory(ctx context.Context, tctx *tenant.Context, chatID string, memory *ProcessedMemory) (*store.LongTermMemory, error) {
	row := &store.LongTermMemory{
		MemoryID:    uuid.NewString(),
		UserID:      tctx.UserID,
		AssistantID: tctx.AssistantID,
		SessionID:   tctx.SessionID,

		Content:           memory.Content,
		Summary:           memory.Summary,
		SearchableContent: memory.Content,

		Classification:   memory.Classification,
		MemoryImportance: memory.Importance,
		Topic:            memory.Topic,
		Entities:         memory.Entities,
		Keywords:         memory.Keywords,

		IsUserContext:     memory.IsUserContext,
		IsPreference:      memory.IsPreference,
		IsSkillKnowledge:  memory.IsSkillKnowledge,
		IsCurrentProject:  memory.IsCurrentProject,
		PromotionEligible: memory.PromotionEligible,

		DuplicateOf:            memory.DuplicateOf,
		Supersedes:             memory.Supersedes,
		RelatedMemories:        memory.RelatedMemories,
		ProcessedForDuplicates: memory.DuplicateOf != "",

		ImportanceScore: ImportanceScore(memory.Importance),
		ConfidenceScore: memory.ConfidenceScore,

		ClassificationReason: memory.ClassificationReason,
		ChatID:               chatID,
	}
	return c.store.StoreLongTerm(ctx, row)
}

// buildPrompt assembles the classification prompt with the tenant's known
// preferences, projects, and skills plus recent summaries for dedup context.
func (c *Classifier) buildPrompt(ctx context.Context, tctx *tenant.Context, userInput, aiOutput string) ([]llm.Message, error) {
	profile, err := c.tenantProfile(ctx, tctx)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("Classify this conversation exchange into a memory record.\n\n")
	if len(profile.preferences) > 0 {
		fmt.Fprintf(&b, "Known user preferences:\n%s\n", bulletList(profile.preferences))
	}
	if len(profile.projects) > 0 {
		fmt.Fprintf(&b, "Current projects:\n%s\n", bulletList(profile.projects))
	}
	if len(profile.skills) > 0 {
		fmt.Fprintf(&b, "Relevant skills:\n%s\n", bulletList(profile.skills))
	}
	if len(profile.recentSummaries) > 0 {
		fmt.Fprintf(&b, "Recent memory summaries (avoid duplicates, reference by position):\n%s\n", bulletList(profile.recentSummaries))
	}
	fmt.Fprintf(&b, "\nUser: %s\n\nAssistant: %s\n",
		strutil.Truncate(userInput, promptInputMax),
		strutil.Truncate(aiOutput, promptInputMax),
	)

	return []llm.Message{
		llm.SystemPrompt(classifierPrompt),
		llm.UserMessage(b.String()),
	}, nil
}

type tenantProfile struct {
	preferences     []string
	projects        []string
	skills          []string
	recentSummaries []string
}

func (c *Classifier) tenantProfile(ctx context.Context, tctx *tenant.Context) (*tenantProfile, error) {
	recent, err := c.store.ListLongTerm(ctx, &store.FindLongTermMemory{
		UserID: tctx.UserID,
		Limit:  100,
	})
	if err != nil {
		return nil, err
	}

	profile := &tenantProfile{}
	for _, row := range recent {
		switch {
		case row.IsPreference:
			profile.preferences = appendCapped(profile.preferences, row.Summary, recentSummaries)
		case row.IsCurrentProject:
			profile.projects = appendCapped(profile.projects, row.Summary, recentSummaries)
		case row.IsSkillKnowledge:
			profile.skills = appendCapped(profile.skills, row.Summary, recentSummaries)
		}
		profile.recentSummaries = appendCapped(profile.recentSummaries, row.Summary, recentSummaries)
	}
	return profile, nil
}

func appendCapped(list []string, item string, capacity int) []string {
	if item == "" || len(list) >= capacity {
		return list
	}
	return append(list, item)
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return b.String()
}

const classifierPrompt = `You are a memory classifier for a conversational AI. Given one user/assistant exchange, extract the single most valuable memory.

Classifications:
- essential: core facts about the user (identity, role, environment)
- contextual: facts relevant to the current work
- conversational: small talk, acknowledgements, low-value exchange
- reference: external facts, links, documentation
- personal: personal details, relationships, life events
- conscious-info: information the assistant should always have in working memory (names, strong preferences, standing instructions)

Set promotion_eligible true when the memory should be available in every future session. Set duplicate_of to a referenced summary position only when the exchange adds nothing new. Be conservative with critical importance.`
