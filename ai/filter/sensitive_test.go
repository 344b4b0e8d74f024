package filter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterEmail(t *testing.T) {
	f := DefaultFilter()

	out := f.FilterText("reach me at jane.doe@example.com please")
	assert.NotContains(t, out, "jane.doe@example.com")
	assert.Contains(t, out, "@example.com")
	assert.Contains(t, out, "jan")
}

func TestFilterAPIKey(t *testing.T) {
	f := DefaultFilter()

	out := f.FilterText("my key is sk-abcdef1234567890abcdef")
	assert.NotContains(t, out, "sk-abcdef1234567890abcdef")
	assert.Contains(t, out, "sk-")
}

func TestFilterIP(t *testing.T) {
	f := DefaultFilter()

	out := f.FilterText("server lives at 192.168.10.42 behind the vpn")
	assert.NotContains(t, out, "192.168.10.42")
	assert.True(t, strings.Contains(out, "*"))
}

func TestFilterCleanText(t *testing.T) {
	f := DefaultFilter()

	text := "I prefer Go over Python for backend work"
	assert.Equal(t, text, f.FilterText(text))
	assert.True(t, f.Validate(text))
}

func TestFindMatchesMultiple(t *testing.T) {
	f := DefaultFilter()

	matches := f.FindMatches("mail a@b.io from 10.0.0.1")
	types := map[FilterType]bool{}
	for _, m := range matches {
		types[m.Type] = true
	}
	assert.True(t, types[Email])
	assert.True(t, types[IP])
}
