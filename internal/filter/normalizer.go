// Package filter decides what part of an incoming chat message is worth keeping.
package filter

import (
	"regexp"
	"strings"
)

const Mask = "***"

var (
	urlPattern   = regexp.MustCompile(`https?://\S+`)
	tokenPattern = regexp.MustCompile(`\S+`)
)

// Normalizer strips links and masks banned words.
type Normalizer struct {
	banned map[string]struct{}
}

func NewNormalizer(banned []string) *Normalizer {
	return &Normalizer{banned: wordSet(banned)}
}

// Normalize removes http(s) links, replaces banned tokens with Mask and trims the ends.
// Inner whitespace, line breaks included, is kept as written.
// Normalize(Normalize(s)) == Normalize(s).
func (n *Normalizer) Normalize(text string) string {
	text = urlPattern.ReplaceAllString(text, "")
	text = tokenPattern.ReplaceAllStringFunc(text, func(tok string) string {
		if _, ok := n.banned[strings.ToLower(tok)]; ok {
			return Mask
		}
		return tok
	})
	return strings.TrimSpace(text)
}

func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}
