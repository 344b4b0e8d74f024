package tenant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/mnemosyne/core/memerr"
)

func TestManagerSetGet(t *testing.T) {
	m := NewManager()

	_, err := m.Get(true)
	assert.ErrorIs(t, err, memerr.ErrNoActiveContext)

	ctx := NewContext("user-1", "agent-1", "session-1")
	m.Set(ctx)

	got, err := m.Get(true)
	assert.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.NotEmpty(t, got.RequestID)
}

func TestManagerClear(t *testing.T) {
	m := NewManager()
	m.Set(NewContext("user-1", "", "session-1"))
	m.Clear()

	_, err := m.Get(true)
	assert.ErrorIs(t, err, memerr.ErrNoActiveContext)
}

func TestManagerExpiry(t *testing.T) {
	m := NewManager()
	ctx := NewContext("user-1", "", "session-1")
	ctx.CreatedAt = time.Now().Add(-MaxAge - time.Second)
	m.Set(ctx)

	_, err := m.Get(true)
	assert.ErrorIs(t, err, memerr.ErrContextExpired)

	// Without validation the stale context is still readable.
	got, err := m.Get(false)
	assert.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
}

func TestManagerDeactivated(t *testing.T) {
	m := NewManager()
	ctx := NewContext("user-1", "", "session-1")
	m.Set(ctx)
	ctx.IsActive = false

	_, err := m.Get(true)
	assert.ErrorIs(t, err, memerr.ErrContextExpired)
}

func TestManagerOverwrite(t *testing.T) {
	m := NewManager()
	m.Set(NewContext("user-1", "", "s1"))
	m.Set(NewContext("user-2", "", "s2"))

	got, err := m.Get(true)
	assert.NoError(t, err)
	assert.Equal(t, "user-2", got.UserID)
}
