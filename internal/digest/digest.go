// Package digest builds and delivers the periodic per-chat summary.
package digest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf16"

	"chat-digest/internal/analytics"
	"chat-digest/internal/history"
	"chat-digest/internal/llm"
)

const (
	Header           = "📝 *Ось що сьогодні обговорювали:*"
	KeywordsTitle    = "🔑 *Ключові слова:*"
	ImportantTitle   = "❗ *Важливі повідомлення:*"
	FallbackNoTopics = "Немає зібраних тем за сьогодні."
	FallbackFailed   = "Не вдалося згенерувати підсумок."
)

type Result int

const (
	ResultSent Result = iota
	ResultNothingToSummarize
	ResultSendFailed
	ResultInProgress
)

// MaxMessageLen is the Bot API limit for one message, in UTF-16 code units.
const MaxMessageLen = 4096

func (r Result) String() string {
	switch r {
	case ResultSent:
		return "sent"
	case ResultNothingToSummarize:
		return "empty"
	case ResultSendFailed:
		return "send_failed"
	case ResultInProgress:
		return "in_progress"
	default:
		return "unknown"
	}
}

// Sender delivers already formatted text to a chat.
type Sender interface {
	Send(ctx context.Context, chatID string, text string) error
}

// Recorder is notified about every Produce outcome.
type Recorder interface {
	DigestResult(result string)
}

type Options struct {
	Urgent        []string
	KeywordsCount int
	LLMTimeout    time.Duration
	SendTimeout   time.Duration
	// MaxMessageLen bounds every sent part; longer digests are split on line breaks.
	MaxMessageLen int
	// Escape converts plain text into the transport's markup. Nil leaves text unchanged.
	Escape   func(string) string
	Recorder Recorder
}

type Producer struct {
	store  *history.Store
	llm    llm.Client
	sender Sender
	opts   Options
	urgent []string

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewProducer(store *history.Store, client llm.Client, sender Sender, opts Options) *Producer {
	if opts.KeywordsCount <= 0 {
		opts.KeywordsCount = 5
	}
	if opts.MaxMessageLen <= 0 {
		opts.MaxMessageLen = MaxMessageLen
	}
	if opts.Escape == nil {
		opts.Escape = func(s string) string { return s }
	}
	urgent := make([]string, 0, len(opts.Urgent))
	for _, u := range opts.Urgent {
		if u = strings.ToLower(strings.TrimSpace(u)); u != "" {
			urgent = append(urgent, u)
		}
	}
	return &Producer{
		store:    store,
		llm:      client,
		sender:   sender,
		opts:     opts,
		urgent:   urgent,
		inflight: make(map[string]struct{}),
	}
}

// Produce summarizes the retained messages of chatID and sends the digest.
// The text-generation failure never aborts the digest: a fallback body is used instead.
// On a send failure the history is kept so the next cycle retries it. With clearAfter
// the summarized messages are removed once the send succeeded. Only one digest per
// chat runs at a time; a concurrent call returns ResultInProgress without side effects.
func (p *Producer) Produce(ctx context.Context, chatID string, clearAfter bool) (Result, error) {
	if !p.acquire(chatID) {
		log.Printf("Digest for chat %s already in progress, skipping", chatID)
		p.record(ResultInProgress)
		return ResultInProgress, nil
	}
	defer p.release(chatID)

	texts := p.store.Snapshot(chatID)
	if len(texts) == 0 {
		p.record(ResultNothingToSummarize)
		return ResultNothingToSummarize, nil
	}

	important := p.Important(texts)
	summary := p.summarize(ctx, chatID, texts)
	keywords := analytics.TopKeywords(texts, p.opts.KeywordsCount)
	text := p.Compose(summary, keywords, important)

	if err := p.send(ctx, chatID, text); err != nil {
		log.Printf("❌ failed to send digest to chat %s: %v", chatID, err)
		p.record(ResultSendFailed)
		return ResultSendFailed, fmt.Errorf("send digest: %w", err)
	}
	log.Printf("✅ digest sent to chat %s (%d messages)", chatID, len(texts))
	p.record(ResultSent)

	if clearAfter {
		if err := p.store.Discard(chatID, len(texts)); err != nil {
			return ResultSent, fmt.Errorf("clear history: %w", err)
		}
	}
	return ResultSent, nil
}

// RunAll produces a digest for every chat that had pending messages when the call
// started. Failures in one chat do not stop the others.
func (p *Producer) RunAll(ctx context.Context) error {
	chats := p.store.PendingChats()
	if len(chats) == 0 {
		log.Println("No messages to summarize")
		return nil
	}
	var errs []error
	for _, chatID := range chats {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := p.Produce(ctx, chatID, true); err != nil {
			errs = append(errs, fmt.Errorf("chat %s: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// send delivers text in parts of at most MaxMessageLen. A failure of any part fails the digest.
func (p *Producer) send(ctx context.Context, chatID, text string) error {
	for _, part := range SplitMessage(text, p.opts.MaxMessageLen) {
		sendCtx, cancel := p.withTimeout(ctx, p.opts.SendTimeout)
		err := p.sender.Send(sendCtx, chatID, part)
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Producer) acquire(chatID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[chatID]; busy {
		return false
	}
	p.inflight[chatID] = struct{}{}
	return true
}

func (p *Producer) release(chatID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, chatID)
}

// Important returns the messages that contain an urgency keyword, case-insensitively.
func (p *Producer) Important(texts []string) []string {
	var out []string
	for _, t := range texts {
		lower := strings.ToLower(t)
		for _, kw := range p.urgent {
			if strings.Contains(lower, kw) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// Compose assembles the digest body. Every piece of plain text goes through Escape;
// the section titles are already valid markup.
func (p *Producer) Compose(summary string, keywords, important []string) string {
	var sb strings.Builder
	sb.WriteString(Header)
	sb.WriteString("\n")
	sb.WriteString(p.opts.Escape(strings.TrimSpace(summary)))
	sb.WriteString("\n\n")
	sb.WriteString(KeywordsTitle)
	sb.WriteString(" ")
	sb.WriteString(p.opts.Escape(strings.Join(keywords, ", ")))
	if len(important) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(ImportantTitle)
		for _, m := range important {
			sb.WriteString("\n• ")
			sb.WriteString(p.opts.Escape(m))
		}
	}
	return sb.String()
}

func (p *Producer) summarize(ctx context.Context, chatID string, texts []string) string {
	llmCtx, cancel := p.withTimeout(ctx, p.opts.LLMTimeout)
	defer cancel()

	resp, err := p.llm.Generate(llmCtx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: BuildPrompt(texts)},
	})
	switch {
	case errors.Is(err, llm.ErrEmptyResponse):
		log.Printf("⚠️ empty summary for chat %s", chatID)
		return FallbackNoTopics
	case err != nil:
		log.Printf("⚠️ summary generation failed for chat %s: %v", chatID, err)
		return FallbackFailed
	case strings.TrimSpace(resp.Content) == "":
		log.Printf("⚠️ empty summary for chat %s", chatID)
		return FallbackNoTopics
	}
	log.Printf("LLM summary for chat %s [model=%s, tokens: prompt=%d, completion=%d, total=%d]",
		chatID, resp.Model, resp.PromptTokens, resp.CompletionTokens, resp.TotalTokens)
	return resp.Content
}

func (p *Producer) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (p *Producer) record(r Result) {
	if p.opts.Recorder != nil {
		p.opts.Recorder.DigestResult(r.String())
	}
}

// SplitMessage cuts text into parts of at most limit UTF-16 code units, preferring
// line breaks. Lines longer than limit are cut without separating a MarkdownV2
// escape backslash from the character it escapes.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || textWidth(text) <= limit {
		return []string{text}
	}
	var parts []string
	add := func(s string) {
		if s = strings.TrimRight(s, "\n"); s != "" {
			parts = append(parts, s)
		}
	}
	var cur strings.Builder
	curWidth := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		w := textWidth(line)
		if curWidth+w > limit {
			add(cur.String())
			cur.Reset()
			curWidth = 0
		}
		if w > limit {
			for _, piece := range splitLine(line, limit) {
				add(piece)
			}
			continue
		}
		cur.WriteString(line)
		curWidth += w
	}
	add(cur.String())
	return parts
}

func splitLine(line string, limit int) []string {
	rs := []rune(line)
	var out []string
	start, width := 0, 0
	for i, r := range rs {
		w := runeWidth(r)
		if width+w > limit && i > start {
			cut := i
			if endsWithEscape(rs[start:cut]) && cut-1 > start {
				cut--
			}
			out = append(out, string(rs[start:cut]))
			start = cut
			width = 0
			for _, rr := range rs[start:i] {
				width += runeWidth(rr)
			}
		}
		width += w
	}
	if start < len(rs) {
		out = append(out, string(rs[start:]))
	}
	return out
}

// endsWithEscape reports an odd run of trailing backslashes.
func endsWithEscape(rs []rune) bool {
	n := 0
	for i := len(rs) - 1; i >= 0 && rs[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

func textWidth(s string) int {
	n := 0
	for _, r := range s {
		n += runeWidth(r)
	}
	return n
}

func runeWidth(r rune) int {
	if w := utf16.RuneLen(r); w > 0 {
		return w
	}
	return 1
}
