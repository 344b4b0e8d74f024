// Package tenant carries the per-request (user, assistant, session) scope.
//
// Context does not propagate implicitly across goroutines: work scheduled onto
// the background executor must re-set the context inside the new execution
// unit.
package tenant

import (
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/mnemosyne/core/memerr"
)

// MaxAge is how long a context stays valid after being set.
const MaxAge = 5 * time.Minute

// Context identifies the tenant of the executing logical request.
type Context struct {
	UserID      string
	AssistantID string
	SessionID   string
	RequestID   string
	CreatedAt   time.Time
	IsActive    bool
}

// NewContext builds an active context with a fresh request id.
func NewContext(userID, assistantID, sessionID string) *Context {
	return &Context{
		UserID:      userID,
		AssistantID: assistantID,
		SessionID:   sessionID,
		RequestID:   shortuuid.New(),
		CreatedAt:   time.Now(),
		IsActive:    true,
	}
}

// Expired reports whether the context has aged out.
func (c *Context) Expired() bool {
	return time.Since(c.CreatedAt) > MaxAge
}

// Manager holds the currently active context. State machine:
// new -> active -> (expired | cleared); only active validates.
type Manager struct {
	mu      sync.Mutex
	current *Context
}

// NewManager creates an empty context manager.
func NewManager() *Manager {
	return &Manager{}
}

// Set stashes ctx as the current context, always overwriting. A switch to a
// different user is logged since it usually signals a missing Clear.
func (m *Manager) Set(ctx *Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.IsActive && m.current.UserID != ctx.UserID {
		slog.Warn("tenant context switch",
			"previous_user", m.current.UserID,
			"new_user", ctx.UserID,
			"request_id", ctx.RequestID,
		)
	}
	m.current = ctx
}

// Get returns the current context. With requireValid it fails closed:
// ErrNoActiveContext when absent, ErrContextExpired when deactivated or older
// than MaxAge.
func (m *Manager) Get(requireValid bool) (*Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		if requireValid {
			return nil, memerr.ErrNoActiveContext
		}
		return nil, nil
	}
	if requireValid {
		if !m.current.IsActive || m.current.Expired() {
			return nil, memerr.ErrContextExpired
		}
	}
	return m.current, nil
}

// Clear deactivates and drops the current context.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.IsActive = false
	}
	m.current = nil
}
