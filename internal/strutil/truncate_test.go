package strutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "", Truncate("", 10))
	assert.Equal(t, "", Truncate("hello", 0))
	assert.Equal(t, "hello", Truncate("hello", 5))
	assert.Equal(t, "hel...", Truncate("hello", 3))
	// Multi-byte characters must not be split.
	assert.Equal(t, "héllo", Truncate("héllo", 5))
	assert.Equal(t, "hé...", Truncate("héllo", 2))
}

func TestHead(t *testing.T) {
	assert.Equal(t, "hel", Head("hello", 3))
	assert.Equal(t, "hello", Head("hello", 10))
	assert.Equal(t, "", Head("hello", 0))
}
