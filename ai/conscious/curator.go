// Package conscious promotes always-relevant long-term memories into the
// short-term working set.
package conscious

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hrygo/mnemosyne/store"
)

// Curator copies conscious-info long-term rows into permanent short-term
// rows. Runs once at startup in conscious mode and reactively when the
// classifier produces new promotion candidates.
type Curator struct {
	store *store.Store

	// group collapses concurrent ingest runs for the same user; a race
	// between two curators on one tenant is already idempotent, this just
	// avoids the duplicate work.
	group singleflight.Group
}

// NewCurator creates a curator over the store.
func NewCurator(s *store.Store) *Curator {
	return &Curator{store: s}
}

// RunConsciousIngest promotes every conscious-info long-term row for the user
// into the short-term working set, then marks the sources processed. Returns
// the number of rows promoted.
func (c *Curator) RunConsciousIngest(ctx context.Context, userID string) (int, error) {
	v, err, _ := c.group.Do("ingest:"+userID, func() (any, error) {
		return c.ingest(ctx, userID, 0, false)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// InitializeExistingConsciousMemories promotes at most limit top-importance
// conscious-info rows. Used when both ingest modes are enabled so auto mode
// retrieval is not crowded out by a large working set. The fast path skips
// entirely when the user already has a conscious working set.
func (c *Curator) InitializeExistingConsciousMemories(ctx context.Context, userID string, limit int) (int, error) {
	if limit <= 0 {
		limit = 10
	}

	existing, err := c.existingConsciousRows(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		slog.Debug("conscious working set already initialized", "user_id", userID, "rows", len(existing))
		return 0, nil
	}

	v, err, _ := c.group.Do("init:"+userID, func() (any, error) {
		return c.ingest(ctx, userID, limit, false)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// CheckForContextUpdates promotes only new unprocessed conscious-info rows.
func (c *Curator) CheckForContextUpdates(ctx context.Context, userID string) (int, error) {
	v, err, _ := c.group.Do("update:"+userID, func() (any, error) {
		return c.ingest(ctx, userID, 0, true)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (c *Curator) ingest(ctx context.Context, userID string, limit int, unprocessedOnly bool) (int, error) {
	var processedFilter *bool
	if unprocessedOnly {
		f := false
		processedFilter = &f
	}

	classification := store.ClassificationConsciousInfo
	find := &store.FindLongTermMemory{
		UserID:             userID,
		Classification:     &classification,
		ConsciousProcessed: processedFilter,
		OrderByImportance:  limit > 0,
		Limit:              1000,
	}
	if limit > 0 {
		find.Limit = limit
	}

	sources, err := c.store.ListLongTerm(ctx, find)
	if err != nil {
		return 0, err
	}
	if len(sources) == 0 {
		return 0, nil
	}

	existing, err := c.existingConsciousRows(ctx, userID)
	if err != nil {
		return 0, err
	}
	seen := map[string]bool{}
	mark := func(keys ...string) {
		for _, key := range keys {
			if k := dedupKey(key); k != "" {
				seen[k] = true
			}
		}
	}
	for _, row := range existing {
		mark(row.SearchableContent, row.Summary)
	}

	promoted := 0
	promotedIDs := []string{}
	for _, source := range sources {
		if seen[dedupKey(source.SearchableContent)] || (dedupKey(source.Summary) != "" && seen[dedupKey(source.Summary)]) {
			promotedIDs = append(promotedIDs, source.MemoryID)
			continue
		}

		if _, err := c.store.StoreShortTerm(ctx, promotedRow(source)); err != nil {
			slog.Error("failed to promote conscious memory",
				"user_id", userID,
				"source_id", source.MemoryID,
				"error", err,
			)
			continue
		}
		mark(source.SearchableContent, source.Summary)
		promoted++
		promotedIDs = append(promotedIDs, source.MemoryID)
	}

	if err := c.store.MarkConsciousProcessed(ctx, userID, promotedIDs); err != nil {
		return promoted, err
	}

	if promoted > 0 {
		slog.Info("conscious ingest complete", "user_id", userID, "promoted", promoted)
	}
	return promoted, nil
}

func (c *Curator) existingConsciousRows(ctx context.Context, userID string) ([]*store.ShortTermMemory, error) {
	category := store.CategoryConsciousContext
	return c.store.GetShortTerm(ctx, &store.FindShortTermMemory{
		UserID:          userID,
		CategoryPrimary: &category,
		Limit:           1000,
	})
}

// promotedRow builds the permanent short-term copy of a conscious source row.
func promotedRow(source *store.LongTermMemory) *store.ShortTermMemory {
	return &store.ShortTermMemory{
		MemoryID:           fmt.Sprintf("conscious_%s_%d", source.MemoryID, time.Now().Unix()),
		UserID:             source.UserID,
		AssistantID:        source.AssistantID,
		SessionID:          source.SessionID,
		SearchableContent:  source.SearchableContent,
		Summary:            source.Summary,
		CategoryPrimary:    store.CategoryConsciousContext,
		RetentionType:      store.RetentionPermanent,
		ImportanceScore:    source.ImportanceScore,
		IsPermanentContext: true,
		ChatID:             source.ChatID,
	}
}

func dedupKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
