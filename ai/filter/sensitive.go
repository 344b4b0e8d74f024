// Package filter masks sensitive information before conversation text is
// persisted as memory.
package filter

import (
	"regexp"
	"sync"
)

// FilterType defines the type of sensitive information to filter.
type FilterType int

const (
	// Email filters email addresses.
	Email FilterType = iota

	// Phone filters international phone numbers.
	Phone

	// CreditCard filters payment card numbers.
	CreditCard

	// IP filters IPv4 addresses.
	IP

	// APIKey filters common API key shapes (sk-..., bearer tokens).
	APIKey
)

// Config configures the sensitive information filter.
type Config struct {
	Enabled    []FilterType
	MaskChar   rune
	KeepFirstN int
	KeepLastN  int
}

// DefaultConfig returns the default filter configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:    []FilterType{Email, Phone, CreditCard, IP, APIKey},
		MaskChar:   '*',
		KeepFirstN: 3,
		KeepLastN:  4,
	}
}

// Filter masks sensitive substrings in text.
type Filter struct {
	config  Config
	regexes map[FilterType]*regexp.Regexp
	mu      sync.RWMutex
}

// NewFilter creates a sensitive information filter.
func NewFilter(cfg Config) *Filter {
	if len(cfg.Enabled) == 0 {
		cfg.Enabled = DefaultConfig().Enabled
	}
	if cfg.MaskChar == 0 {
		cfg.MaskChar = '*'
	}

	f := &Filter{
		config:  cfg,
		regexes: make(map[FilterType]*regexp.Regexp),
	}
	for _, ft := range cfg.Enabled {
		if pattern := getPattern(ft); pattern != "" {
			f.regexes[ft] = regexp.MustCompile(pattern)
		}
	}
	return f
}

// DefaultFilter creates a filter with the default configuration.
func DefaultFilter() *Filter {
	return NewFilter(DefaultConfig())
}

func getPattern(ft FilterType) string {
	switch ft {
	case Email:
		return `\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`
	case Phone:
		return `\+?\d[\d\s().-]{8,16}\d`
	case CreditCard:
		return `\b(?:\d[ -]?){12,18}\d\b`
	case IP:
		return `\b(?:(?:25[0-5]|2[0-4]\d|1?\d\d?)\.){3}(?:25[0-5]|2[0-4]\d|1?\d\d?)\b`
	case APIKey:
		return `\b(?:sk|pk|rk)-[A-Za-z0-9_-]{16,}\b`
	default:
		return ""
	}
}

// Match is one sensitive substring found in text.
type Match struct {
	Type     FilterType
	Start    int
	End      int
	Original string
	Replaced string
}

// FilterText masks every sensitive match in text.
func (f *Filter) FilterText(text string) string {
	matches := f.FindMatches(text)
	if len(matches) == 0 {
		return text
	}

	// Replace from end to start so earlier offsets stay valid.
	for i := 0; i < len(matches)-1; i++ {
		for j := i + 1; j < len(matches); j++ {
			if matches[i].Start < matches[j].Start {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
	}

	result := text
	for _, match := range matches {
		result = result[:match.Start] + match.Replaced + result[match.End:]
	}
	return result
}

// FindMatches finds all sensitive matches in text.
func (f *Filter) FindMatches(text string) []Match {
	f.mu.RLock()
	defer f.mu.RUnlock()

	matches := []Match{}
	for ft, re := range f.regexes {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			original := text[loc[0]:loc[1]]
			matches = append(matches, Match{
				Type:     ft,
				Start:    loc[0],
				End:      loc[1],
				Original: original,
				Replaced: f.maskString(original, ft),
			})
		}
	}
	return matches
}

// Validate reports whether text contains no unmasked sensitive information.
func (f *Filter) Validate(text string) bool {
	return len(f.FindMatches(text)) == 0
}

func (f *Filter) maskString(s string, ft FilterType) string {
	if ft == Email {
		return maskEmail(s, f.config.KeepFirstN, f.config.MaskChar)
	}
	if ft == APIKey {
		// Keys are high-entropy secrets, keep only the prefix.
		runes := []rune(s)
		keep := f.config.KeepFirstN
		if keep > len(runes) {
			keep = len(runes)
		}
		masked := make([]rune, len(runes))
		copy(masked, runes[:keep])
		for i := keep; i < len(runes); i++ {
			masked[i] = f.config.MaskChar
		}
		return string(masked)
	}

	runes := []rune(s)
	if len(runes) <= f.config.KeepFirstN+f.config.KeepLastN {
		return s
	}
	for i := f.config.KeepFirstN; i < len(runes)-f.config.KeepLastN; i++ {
		runes[i] = f.config.MaskChar
	}
	return string(runes)
}

// maskEmail masks the local part while keeping the @ and domain readable.
func maskEmail(email string, keepFirst int, maskChar rune) string {
	runes := []rune(email)
	atPos := -1
	for i, r := range runes {
		if r == '@' {
			atPos = i
			break
		}
	}
	if atPos == -1 {
		return email
	}
	for i := keepFirst; i < atPos; i++ {
		runes[i] = maskChar
	}
	return string(runes)
}
