package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/mnemosyne/core/memerr"
)

func TestCheckRate(t *testing.T) {
	m := NewManager(Limits{RateLimit: 3, RateWindow: time.Minute})

	for i := 0; i < 3; i++ {
		assert.NoError(t, m.CheckRate("user-1", "search"))
	}
	err := m.CheckRate("user-1", "search")
	var rateErr *memerr.RateLimitError
	assert.ErrorAs(t, err, &rateErr)
	assert.Equal(t, "search", rateErr.Operation)

	// Separate operation and separate user each get their own window.
	assert.NoError(t, m.CheckRate("user-1", "record"))
	assert.NoError(t, m.CheckRate("user-2", "search"))
}

func TestCheckAPICallDailyReset(t *testing.T) {
	m := NewManager(Limits{MaxAPICalls: 2})
	current := time.Date(2026, 8, 26, 23, 59, 0, 0, time.UTC)
	m.now = func() time.Time { return current }

	assert.NoError(t, m.CheckAPICall("user-1"))
	assert.NoError(t, m.CheckAPICall("user-1"))

	err := m.CheckAPICall("user-1")
	var quotaErr *memerr.QuotaError
	assert.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, "api_calls", quotaErr.Kind)

	// Midnight UTC resets the counter.
	current = current.Add(2 * time.Minute)
	assert.NoError(t, m.CheckAPICall("user-1"))
}

func TestCheckStorage(t *testing.T) {
	m := NewManager(Limits{MaxStorage: 1024})

	assert.NoError(t, m.CheckStorage("user-1", 512))

	err := m.CheckStorage("user-1", 2048)
	var quotaErr *memerr.QuotaError
	assert.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, "storage_bytes", quotaErr.Kind)
	assert.Equal(t, int64(1024), quotaErr.Limit)
}

func TestCheckMemoryCount(t *testing.T) {
	m := NewManager(Limits{MaxMemories: 100})

	assert.NoError(t, m.CheckMemoryCount("user-1", 99))

	err := m.CheckMemoryCount("user-1", 100)
	var quotaErr *memerr.QuotaError
	assert.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, "memory_count", quotaErr.Kind)
}
