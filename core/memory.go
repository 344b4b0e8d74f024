// Package core wires the memory subsystems behind one facade: recording,
// classification scheduling, retrieval, and tenant lifecycle.
package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/mnemosyne/ai/classify"
	"github.com/hrygo/mnemosyne/ai/conscious"
	"github.com/hrygo/mnemosyne/ai/core/llm"
	"github.com/hrygo/mnemosyne/ai/filter"
	"github.com/hrygo/mnemosyne/ai/inject"
	"github.com/hrygo/mnemosyne/ai/search"
	"github.com/hrygo/mnemosyne/core/executor"
	"github.com/hrygo/mnemosyne/core/quota"
	"github.com/hrygo/mnemosyne/core/tenant"
	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
)

const initialConsciousLimit = 10

// Memory is the public surface of the memory layer. One instance owns one
// database and one default tenant.
type Memory struct {
	profile    *profile.Profile
	store      *store.Store
	engine     *search.Engine
	classifier *classify.Classifier
	curator    *conscious.Curator
	injector   *inject.Injector
	executor   *executor.Executor
	quota      *quota.Manager
	tenants    *tenant.Manager
	dedup      *dedupNet
	sensitive  *filter.Filter
	embedder   llm.Embedder

	mu        sync.Mutex
	enabled   bool
	sessionID string
}

// NewMemory wires the subsystems. svc may be nil: retrieval then uses
// fallback planning and classification is disabled.
func NewMemory(p *profile.Profile, s *store.Store, svc llm.Service, filters ...classify.FilterFunc) *Memory {
	tenants := tenant.NewManager()
	planner := search.NewPlanner(svc)
	engine := search.NewEngine(s, planner)

	embedder := llm.NewEmbedder(p)
	if embedder != nil {
		engine.UseEmbedder(embedder)
	}

	var classifier *classify.Classifier
	if svc != nil {
		classifier = classify.NewClassifier(svc, s, tenants, filters...)
	}

	sessionID := p.SessionID
	if sessionID == "" {
		sessionID = shortuuid.New()
	}

	return &Memory{
		profile:    p,
		store:      s,
		engine:     engine,
		classifier: classifier,
		curator:    conscious.NewCurator(s),
		injector:   inject.NewInjector(p, s, engine),
		executor:   executor.New(),
		quota: quota.NewManager(quota.Limits{
			MaxStorage:  p.MaxStorageBytes,
			MaxMemories: p.MaxMemoryRows,
			MaxAPICalls: p.MaxAPICallsPerDay,
		}),
		tenants:   tenants,
		dedup:     newDedupNet(),
		sensitive: filter.DefaultFilter(),
		embedder:  embedder,
		sessionID: sessionID,
	}
}

// Enable activates recording and runs the startup conscious ingest when that
// mode is on. With both modes enabled only a bounded working set is
// initialized so auto retrieval stays useful.
func (m *Memory) Enable(ctx context.Context) error {
	m.mu.Lock()
	if m.enabled {
		m.mu.Unlock()
		return nil
	}
	m.enabled = true
	m.mu.Unlock()

	if m.profile.AutoActivateSingleInstance {
		m.tenants.Set(m.currentContext())
	}

	if m.profile.ConsciousIngest {
		tctx := m.currentContext()
		handle, err := m.executor.Submit(func(ctx context.Context) error {
			m.tenants.Set(tctx)
			if m.profile.AutoIngest {
				_, err := m.curator.InitializeExistingConsciousMemories(ctx, tctx.UserID, initialConsciousLimit)
				return err
			}
			_, err := m.curator.RunConsciousIngest(ctx, tctx.UserID)
			return err
		})
		if err != nil {
			return err
		}
		_ = handle // startup ingest completes in the background
	}

	slog.Info("memory enabled",
		"user_id", m.profile.UserID,
		"conscious_ingest", m.profile.ConsciousIngest,
		"auto_ingest", m.profile.AutoIngest,
	)
	return nil
}

// Disable stops recording and shuts down background work.
func (m *Memory) Disable() error {
	m.mu.Lock()
	m.enabled = false
	m.mu.Unlock()
	return m.executor.Shutdown(10 * time.Second)
}

// Enabled reports whether recording is active.
func (m *Memory) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Store exposes the underlying store for the ops surface.
func (m *Memory) Store() *store.Store {
	return m.store
}

// Profile exposes the instance configuration for the interception layer.
func (m *Memory) Profile() *profile.Profile {
	return m.profile
}

// Injector exposes the injection engine for the interception layer.
func (m *Memory) Injector() *inject.Injector {
	return m.injector
}

// ExecutorStats reports the background executor state.
func (m *Memory) ExecutorStats() executor.Stats {
	return m.executor.Stats()
}

// RecordConversation persists one exchange and schedules classification.
// Returns the chat id; duplicates suppressed by the dedup net get a synthetic
// id and no row.
func (m *Memory) RecordConversation(ctx context.Context, userInput, aiOutput, model string, metadata map[string]any) (string, error) {
	if !m.Enabled() {
		return "", errors.New("memory is not enabled")
	}

	tctx := m.activeOrDefault()
	if err := m.quota.CheckRate(tctx.UserID, "record_conversation"); err != nil {
		return "", err
	}

	// Mask sensitive content before it reaches any tier.
	userInput = m.sensitive.FilterText(userInput)
	aiOutput = m.sensitive.FilterText(aiOutput)

	if m.dedup.CheckAndMark(userInput, aiOutput, tctx.SessionID) {
		syntheticID := "dup_" + uuid.NewString()
		slog.Warn("duplicate conversation suppressed",
			"user_id", tctx.UserID,
			"session_id", tctx.SessionID,
			"chat_id", syntheticID,
		)
		return syntheticID, nil
	}

	stats, err := m.store.GetMemoryStats(ctx, tctx.UserID)
	if err == nil {
		total := stats.ChatCount + stats.ShortTermCount + stats.LongTermCount
		if err := m.quota.CheckMemoryCount(tctx.UserID, total); err != nil {
			return "", err
		}
		if err := m.quota.CheckStorage(tctx.UserID, stats.StorageBytes); err != nil {
			return "", err
		}
	}

	chat := &store.ChatHistory{
		ChatID:      uuid.NewString(),
		UserID:      tctx.UserID,
		AssistantID: tctx.AssistantID,
		SessionID:   tctx.SessionID,
		UserInput:   userInput,
		AIOutput:    aiOutput,
		Model:       model,
		Metadata:    metadata,
	}
	if metadata != nil {
		if tokens, ok := metadata["tokens_used"].(int); ok {
			chat.TokensUsed = tokens
		}
	}
	if _, err := m.store.StoreChat(ctx, chat); err != nil {
		return "", err
	}

	m.scheduleClassification(tctx, chat.ChatID, userInput, aiOutput)
	return chat.ChatID, nil
}

// scheduleClassification hands the exchange to the background executor. The
// tenant context is re-set inside the task since it does not cross
// goroutines implicitly.
func (m *Memory) scheduleClassification(tctx *tenant.Context, chatID, userInput, aiOutput string) {
	if m.classifier == nil || !m.profile.IsAIEnabled() {
		return
	}
	if err := m.quota.CheckAPICall(tctx.UserID); err != nil {
		slog.Warn("classification skipped", "error", err)
		return
	}

	_, err := m.executor.Submit(func(ctx context.Context) error {
		row, err := m.classifier.ProcessConversation(ctx, tctx, chatID, userInput, aiOutput)
		if err != nil {
			return err
		}
		if row == nil {
			return nil
		}
		m.attachEmbedding(ctx, tctx.UserID, row.MemoryID, row.SearchableContent)
		if m.profile.ConsciousIngest &&
			(row.PromotionEligible || row.Classification == store.ClassificationConsciousInfo) {
			_, err = m.curator.CheckForContextUpdates(ctx, tctx.UserID)
			return err
		}
		return nil
	})
	if err != nil {
		slog.Error("failed to schedule classification", "chat_id", chatID, "error", err)
	}
}

// RetrieveContext returns memories relevant to the query, recent memories on
// an empty query.
func (m *Memory) RetrieveContext(ctx context.Context, query string, limit int) ([]*store.SearchResult, error) {
	tctx := m.activeOrDefault()
	if err := m.quota.CheckRate(tctx.UserID, "retrieve_context"); err != nil {
		return nil, err
	}
	return m.engine.Search(ctx, &search.Request{
		Query:         query,
		UserID:        tctx.UserID,
		AssistantID:   optionalString(tctx.AssistantID),
		Limit:         limit,
		RecentOnEmpty: true,
	})
}

// Search returns ranked matches; an empty query returns an empty slice.
func (m *Memory) Search(ctx context.Context, query string, limit int) ([]*store.SearchResult, error) {
	tctx := m.activeOrDefault()
	if err := m.quota.CheckRate(tctx.UserID, "search"); err != nil {
		return nil, err
	}
	return m.engine.Search(ctx, &search.Request{
		Query:       query,
		UserID:      tctx.UserID,
		AssistantID: optionalString(tctx.AssistantID),
		Limit:       limit,
	})
}

// Add stores user-provided text directly as a contextual long-term memory,
// bypassing the classifier.
func (m *Memory) Add(ctx context.Context, text string, metadata map[string]any) (string, error) {
	tctx := m.activeOrDefault()
	if err := m.quota.CheckRate(tctx.UserID, "add"); err != nil {
		return "", err
	}

	text = m.sensitive.FilterText(text)

	if stats, err := m.store.GetMemoryStats(ctx, tctx.UserID); err == nil {
		if err := m.quota.CheckStorage(tctx.UserID, stats.StorageBytes); err != nil {
			return "", err
		}
	}

	topic := ""
	if metadata != nil {
		if v, ok := metadata["topic"].(string); ok {
			topic = v
		}
	}

	row := &store.LongTermMemory{
		MemoryID:          uuid.NewString(),
		UserID:            tctx.UserID,
		AssistantID:       tctx.AssistantID,
		SessionID:         tctx.SessionID,
		Content:           text,
		Summary:           text,
		SearchableContent: text,
		Classification:    store.ClassificationContextual,
		MemoryImportance:  store.ImportanceMedium,
		Topic:             topic,
		ImportanceScore:   classify.ImportanceScore(store.ImportanceMedium),
		ConfidenceScore:   1.0,
	}
	created, err := m.store.StoreLongTerm(ctx, row)
	if err != nil {
		return "", err
	}
	m.attachEmbedding(ctx, tctx.UserID, created.MemoryID, created.SearchableContent)
	return created.MemoryID, nil
}

// attachEmbedding vectorizes a stored long-term row on vector-capable
// backends. Best effort: retrieval degrades to the text stages on failure.
func (m *Memory) attachEmbedding(ctx context.Context, userID, memoryID, text string) {
	if m.embedder == nil || !m.store.SupportsSemanticSearch() || text == "" {
		return
	}
	vector, err := m.embedder.Embed(ctx, text)
	if err != nil {
		slog.Warn("failed to embed memory", "memory_id", memoryID, "error", err)
		return
	}
	if err := m.store.AttachEmbedding(ctx, userID, memoryID, vector); err != nil {
		slog.Warn("failed to attach embedding", "memory_id", memoryID, "error", err)
	}
}

// GetStats returns per-tier counts for the active tenant.
func (m *Memory) GetStats(ctx context.Context) (*store.MemoryStats, error) {
	tctx := m.activeOrDefault()
	return m.store.GetMemoryStats(ctx, tctx.UserID)
}

// ClearMemory deletes tenant-scoped rows for the given tier ("" for all).
func (m *Memory) ClearMemory(ctx context.Context, tier string) (int64, error) {
	tctx := m.activeOrDefault()
	return m.store.ClearMemory(ctx, tctx.UserID, tier)
}

// ListMemories pages the cross-tier union for the active tenant.
func (m *Memory) ListMemories(ctx context.Context, descending bool, limit int) (*store.MemoryListing, error) {
	tctx := m.activeOrDefault()
	return m.store.ListMemories(ctx, tctx.UserID, descending, limit)
}

// StartNewConversation rotates the session id and re-arms the one-shot
// conscious injection for the new session.
func (m *Memory) StartNewConversation() string {
	m.mu.Lock()
	old := m.sessionID
	m.sessionID = shortuuid.New()
	sessionID := m.sessionID
	m.mu.Unlock()

	m.injector.ResetSession(old)
	m.injector.ResetSession(sessionID)
	slog.Debug("started new conversation", "session_id", sessionID)
	return sessionID
}

// SetActiveContext installs this instance's tenant as the active context.
func (m *Memory) SetActiveContext(requestID string) *tenant.Context {
	tctx := m.currentContext()
	if requestID != "" {
		tctx.RequestID = requestID
	}
	m.tenants.Set(tctx)
	return tctx
}

// GetActiveContext returns the active context, validating lifetime unless
// requireValid is false.
func (m *Memory) GetActiveContext(requireValid bool) (*tenant.Context, error) {
	return m.tenants.Get(requireValid)
}

// ClearActiveContext deactivates the current context.
func (m *Memory) ClearActiveContext() {
	m.tenants.Clear()
}

// activeOrDefault prefers a valid active context, falling back to the
// instance's own tenant.
func (m *Memory) activeOrDefault() *tenant.Context {
	if tctx, err := m.tenants.Get(true); err == nil && tctx != nil {
		return tctx
	}
	return m.currentContext()
}

func (m *Memory) currentContext() *tenant.Context {
	m.mu.Lock()
	sessionID := m.sessionID
	m.mu.Unlock()
	return tenant.NewContext(m.profile.UserID, m.profile.AssistantID, sessionID)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
