// Package quota enforces per-tenant rate limits and cumulative quotas before
// expensive operations run.
package quota

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hrygo/mnemosyne/core/memerr"
)

// Default limits.
const (
	DefaultRateLimit   = 100              // operations per window per (user, op)
	DefaultRateWindow  = 60 * time.Second //
	DefaultMaxStorage  = 100 << 20        // 100 MB per user
	DefaultMaxMemories = 10_000           // rows per user
	DefaultMaxAPICalls = 1_000            // per user per UTC day
)

// Limits configures the quota layer. Zero values take the defaults.
type Limits struct {
	RateLimit   int
	RateWindow  time.Duration
	MaxStorage  int64
	MaxMemories int64
	MaxAPICalls int64
}

func (l Limits) withDefaults() Limits {
	if l.RateLimit <= 0 {
		l.RateLimit = DefaultRateLimit
	}
	if l.RateWindow <= 0 {
		l.RateWindow = DefaultRateWindow
	}
	if l.MaxStorage <= 0 {
		l.MaxStorage = DefaultMaxStorage
	}
	if l.MaxMemories <= 0 {
		l.MaxMemories = DefaultMaxMemories
	}
	if l.MaxAPICalls <= 0 {
		l.MaxAPICalls = DefaultMaxAPICalls
	}
	return l
}

type apiUsage struct {
	day   string // UTC date, resets at midnight
	calls int64
}

// Manager tracks rate limiters and API-call usage per user.
type Manager struct {
	limits   Limits
	mu       sync.Mutex
	limiters map[string]*rate.Limiter // keyed on user|operation
	usage    map[string]*apiUsage
	now      func() time.Time
}

// NewManager creates a quota manager with the given limits.
func NewManager(limits Limits) *Manager {
	return &Manager{
		limits:   limits.withDefaults(),
		limiters: map[string]*rate.Limiter{},
		usage:    map[string]*apiUsage{},
		now:      time.Now,
	}
}

// CheckRate consumes one token from the (user, operation) limiter.
func (m *Manager) CheckRate(userID, operation string) error {
	m.mu.Lock()
	key := userID + "|" + operation
	limiter, ok := m.limiters[key]
	if !ok {
		every := m.limits.RateWindow / time.Duration(m.limits.RateLimit)
		limiter = rate.NewLimiter(rate.Every(every), m.limits.RateLimit)
		m.limiters[key] = limiter
	}
	m.mu.Unlock()

	if !limiter.Allow() {
		return &memerr.RateLimitError{
			UserID:    userID,
			Operation: operation,
			Limit:     m.limits.RateLimit,
			Window:    m.limits.RateWindow,
		}
	}
	return nil
}

// CheckAPICall records one LLM API call against the daily budget. The counter
// resets at midnight UTC.
func (m *Manager) CheckAPICall(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := m.now().UTC().Format("2006-01-02")
	u, ok := m.usage[userID]
	if !ok || u.day != today {
		u = &apiUsage{day: today}
		m.usage[userID] = u
	}
	if u.calls >= m.limits.MaxAPICalls {
		return &memerr.QuotaError{
			UserID: userID,
			Kind:   "api_calls",
			Used:   u.calls,
			Limit:  m.limits.MaxAPICalls,
		}
	}
	u.calls++
	return nil
}

// CheckStorage validates cumulative storage usage reported by the store.
func (m *Manager) CheckStorage(userID string, usedBytes int64) error {
	if usedBytes >= m.limits.MaxStorage {
		return &memerr.QuotaError{
			UserID: userID,
			Kind:   "storage_bytes",
			Used:   usedBytes,
			Limit:  m.limits.MaxStorage,
		}
	}
	return nil
}

// CheckMemoryCount validates the cumulative row count for a user.
func (m *Manager) CheckMemoryCount(userID string, rows int64) error {
	if rows >= m.limits.MaxMemories {
		return &memerr.QuotaError{
			UserID: userID,
			Kind:   "memory_count",
			Used:   rows,
			Limit:  m.limits.MaxMemories,
		}
	}
	return nil
}
