package filter

import (
	"strings"

	"chat-digest/internal/history"
)

// SpamFilter looks only at the immediately preceding retained entry of a chat.
type SpamFilter struct {
	shortReplies map[string]struct{}
}

func NewSpamFilter(shortReplies []string) *SpamFilter {
	return &SpamFilter{shortReplies: wordSet(shortReplies)}
}

// IsSpam reports whether text should be discarded given the chat's last retained entry
// (nil when the chat has none). Rules, first match wins:
//  1. verbatim repeat of the last entry;
//  2. a short message (under two words) that is not an allowed short reply,
//     following another short message.
func (f *SpamFilter) IsSpam(text string, last *history.Entry) bool {
	if last == nil {
		return false
	}
	if text == last.Text {
		return true
	}
	if isShort(text) && !f.isAllowedReply(text) && isShort(last.Text) {
		return true
	}
	return false
}

func (f *SpamFilter) isAllowedReply(text string) bool {
	_, ok := f.shortReplies[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

func isShort(text string) bool {
	return len(strings.Fields(text)) < 2
}
