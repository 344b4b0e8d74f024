package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupNetSuppressesRepeat(t *testing.T) {
	d := newDedupNet()

	assert.False(t, d.CheckAndMark("hello", "hi there", "session-1"))
	assert.True(t, d.CheckAndMark("hello", "hi there", "session-1"))
}

func TestDedupNetDistinguishesSessions(t *testing.T) {
	d := newDedupNet()

	assert.False(t, d.CheckAndMark("hello", "hi there", "session-1"))
	assert.False(t, d.CheckAndMark("hello", "hi there", "session-2"))
}

func TestDedupNetExpiresEntries(t *testing.T) {
	d := newDedupNet()
	current := time.Now()
	d.now = func() time.Time { return current }

	assert.False(t, d.CheckAndMark("hello", "hi", "s1"))

	current = current.Add(dedupWindow + time.Second)
	assert.False(t, d.CheckAndMark("hello", "hi", "s1"))
}

func TestDedupNetOnlyHashesHead(t *testing.T) {
	d := newDedupNet()
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	a := string(long) + "tail one"
	b := string(long) + "tail two"

	// First 200 chars are identical, so the two are one fingerprint.
	assert.False(t, d.CheckAndMark(a, "out", "s1"))
	assert.True(t, d.CheckAndMark(b, "out", "s1"))
}
