// Package ingest runs incoming chat text through normalization and the spam filter
// before it reaches the message store.
package ingest

import (
	"chat-digest/internal/filter"
	"chat-digest/internal/history"
)

type Outcome int

const (
	Stored Outcome = iota
	Spam
)

func (o Outcome) String() string {
	switch o {
	case Stored:
		return "stored"
	case Spam:
		return "spam"
	default:
		return "unknown"
	}
}

// Counter receives one call per processed message.
type Counter interface {
	Observe(o Outcome)
}

type Pipeline struct {
	normalizer *filter.Normalizer
	spam       *filter.SpamFilter
	store      *history.Store
	counter    Counter
}

func New(n *filter.Normalizer, sf *filter.SpamFilter, store *history.Store, counter Counter) *Pipeline {
	return &Pipeline{normalizer: n, spam: sf, store: store, counter: counter}
}

// Ingest normalizes raw and appends it to chatID unless it is spam against the
// chat's last entry. A persistence error still leaves the entry in memory.
func (p *Pipeline) Ingest(chatID, raw string) (Outcome, error) {
	text := p.normalizer.Normalize(raw)
	stored, err := p.store.AppendUnless(chatID, text, func(last *history.Entry) bool {
		return p.spam.IsSpam(text, last)
	})
	out := Spam
	if stored {
		out = Stored
	}
	if p.counter != nil {
		p.counter.Observe(out)
	}
	return out, err
}
