// Package inject builds the memory preamble added to outgoing LLM requests.
package inject

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hrygo/mnemosyne/internal/strutil"
	"github.com/hrygo/mnemosyne/ai/search"
	"github.com/hrygo/mnemosyne/core/tenant"
	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
)

// InternalSearchSentinel tags the memory layer's own agent calls so the
// injection path skips them instead of recursing.
const InternalSearchSentinel = "[INTERNAL_MEMORI_SEARCH]"

const (
	autoContextLimit  = 5
	autoContextHeader = "--- Auto Memory Context ---"
	contentPreviewMax = 300
)

// Injector decides what memory context precedes each intercepted request.
// Conscious mode injects the whole working set once per session; auto mode
// injects fresh retrieval results on every call.
type Injector struct {
	profile *profile.Profile
	store   *store.Store
	engine  *search.Engine

	mu         sync.Mutex
	injected   map[string]bool // sessions that already got conscious context
	retrieving bool
}

// NewInjector creates an injector.
func NewInjector(p *profile.Profile, s *store.Store, engine *search.Engine) *Injector {
	return &Injector{
		profile:  p,
		store:    s,
		engine:   engine,
		injected: map[string]bool{},
	}
}

// ShouldInject reports whether the request content qualifies for injection.
// Internal agent calls carry the sentinel and are skipped.
func (i *Injector) ShouldInject(requestText string) bool {
	return !strings.Contains(requestText, InternalSearchSentinel)
}

// ContextFor builds the memory preamble for one request, or "" when nothing
// applies. The recursion guard stops the classifier's and planner's own LLM
// calls from triggering retrieval.
func (i *Injector) ContextFor(ctx context.Context, tctx *tenant.Context, latestUserMessage string) (string, error) {
	i.mu.Lock()
	if i.retrieving {
		i.mu.Unlock()
		return "", nil
	}
	i.retrieving = true
	i.mu.Unlock()
	defer func() {
		i.mu.Lock()
		i.retrieving = false
		i.mu.Unlock()
	}()

	if i.profile.ConsciousIngest {
		if done := i.sessionInjected(tctx.SessionID); !done {
			text, err := i.BuildConsciousContext(ctx, tctx.UserID)
			if err != nil {
				return "", err
			}
			i.markInjected(tctx.SessionID)
			return text, nil
		}
		if !i.profile.AutoIngest {
			return "", nil
		}
	}

	if i.profile.AutoIngest {
		return i.BuildAutoContext(ctx, tctx, latestUserMessage)
	}
	return "", nil
}

// BuildConsciousContext renders the whole non-expired working set as a
// system-prompt preamble, deduplicated case-insensitively.
func (i *Injector) BuildConsciousContext(ctx context.Context, userID string) (string, error) {
	rows, err := i.store.GetShortTerm(ctx, &store.FindShortTermMemory{
		UserID: userID,
		Limit:  1000,
	})
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("=== USER CONTEXT ===\n")
	b.WriteString("You have been provided with authorized user context data below. ")
	b.WriteString("This information was explicitly shared by the user for your reference.\n\n")

	seen := map[string]bool{}
	listed := 0
	for _, row := range rows {
		content := row.SearchableContent
		if content == "" {
			content = row.Summary
		}
		key := strings.ToLower(strings.TrimSpace(content))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(row.CategoryPrimary), content)
		listed++
	}
	if listed == 0 {
		return "", nil
	}

	b.WriteString("\nUse this context naturally when relevant. ")
	b.WriteString("Do not claim you lack access to user information that appears above.\n")
	b.WriteString("=== END USER CONTEXT ===")

	slog.Debug("built conscious context", "user_id", userID, "entries", listed)
	return b.String(), nil
}

// BuildAutoContext retrieves memories relevant to the latest user message and
// renders the lighter per-call block.
func (i *Injector) BuildAutoContext(ctx context.Context, tctx *tenant.Context, latestUserMessage string) (string, error) {
	results, err := i.engine.Search(ctx, &search.Request{
		Query:       latestUserMessage,
		UserID:      tctx.UserID,
		AssistantID: optional(tctx.AssistantID),
		Limit:       autoContextLimit,
	})
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString(autoContextHeader)
	b.WriteString("\nRelevant memories from previous conversations:\n")

	seen := map[string]bool{}
	for _, r := range results {
		content := r.SearchableContent
		if content == "" {
			content = r.Summary
		}
		key := strings.ToLower(strings.TrimSpace(content))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		fmt.Fprintf(&b, "- %s\n", strutil.Truncate(content, contentPreviewMax))
	}
	b.WriteString("--- End Memory Context ---")

	return b.String(), nil
}

// MergeSystemText prepends memoryContext to existing system text, handling
// both the chat-completions shape (merge into the system message) and the
// Anthropic-style standalone system parameter (plain concatenation).
func MergeSystemText(existing, memoryContext string) string {
	if memoryContext == "" {
		return existing
	}
	if existing == "" {
		return memoryContext
	}
	return memoryContext + "\n\n" + existing
}

// ResetSession clears the one-shot flag so the next call in the session
// re-injects conscious context.
func (i *Injector) ResetSession(sessionID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.injected, sessionID)
}

func (i *Injector) sessionInjected(sessionID string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.injected[sessionID]
}

func (i *Injector) markInjected(sessionID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.injected[sessionID] = true
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
