package core

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/hrygo/mnemosyne/internal/strutil"
)

const dedupWindow = 5 * time.Second

// dedupNet suppresses double-recording of the same exchange arriving through
// multiple integration hooks within a short window. Fingerprints hash the
// head of both sides plus the session.
type dedupNet struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

func newDedupNet() *dedupNet {
	return &dedupNet{
		seen:   map[string]time.Time{},
		window: dedupWindow,
		now:    time.Now,
	}
}

// CheckAndMark sweeps expired entries, then atomically checks and inserts the
// fingerprint. Returns true when the exchange is a duplicate.
func (d *dedupNet) CheckAndMark(userInput, aiOutput, sessionID string) bool {
	fp := fingerprint(userInput, aiOutput, sessionID)

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for key, at := range d.seen {
		if now.Sub(at) > d.window {
			delete(d.seen, key)
		}
	}

	if _, ok := d.seen[fp]; ok {
		return true
	}
	d.seen[fp] = now
	return false
}

func fingerprint(userInput, aiOutput, sessionID string) string {
	h := sha256.New()
	h.Write([]byte(strutil.Head(userInput, 200)))
	h.Write([]byte{0})
	h.Write([]byte(strutil.Head(aiOutput, 200)))
	h.Write([]byte{0})
	h.Write([]byte(sessionID))
	return hex.EncodeToString(h.Sum(nil))
}
