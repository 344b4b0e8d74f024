package classify

import (
	"context"
	"strings"
	"time"

	"github.com/hrygo/mnemosyne/store"
)

const (
	dedupWindow     = 24 * time.Hour
	dedupCandidates = 20
	dedupThreshold  = 0.8
)

// findDuplicate compares the new summary against recent long-term rows and
// returns the memory id of a near-duplicate, or empty.
func (c *Classifier) findDuplicate(ctx context.Context, userID, summary string) (string, error) {
	after := time.Now().Add(-dedupWindow).Unix()
	recent, err := c.store.ListLongTerm(ctx, &store.FindLongTermMemory{
		UserID:         userID,
		CreatedAfterTs: &after,
		Limit:          dedupCandidates,
	})
	if err != nil {
		return "", err
	}

	for _, row := range recent {
		if summarySimilarity(summary, row.Summary) >= dedupThreshold {
			return row.MemoryID, nil
		}
	}
	return "", nil
}

// summarySimilarity is token-set Jaccard similarity over lowercased words.
func summarySimilarity(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	intersection := 0
	for token := range tokensA {
		if tokensB[token] {
			intersection++
		}
	}
	union := len(tokensA) + len(tokensB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, word := range strings.Fields(strings.ToLower(s)) {
		word = strings.Trim(word, `.,;:!?"'()[]{}`)
		if word != "" {
			set[word] = true
		}
	}
	return set
}
