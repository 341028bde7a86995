package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"chat-digest/internal/history"
	"chat-digest/internal/llm"
)

type fakeLLM struct {
	resp  llm.Response
	err   error
	calls int
	last  []llm.Message
	block bool
}

func (f *fakeLLM) Generate(ctx context.Context, msgs []llm.Message) (llm.Response, error) {
	f.calls++
	f.last = msgs
	if f.block {
		<-ctx.Done()
		return llm.Response{}, ctx.Err()
	}
	return f.resp, f.err
}

type sent struct{ chatID, text string }

type fakeSender struct {
	sent []sent
	err  error
}

func (f *fakeSender) Send(ctx context.Context, chatID, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{chatID, text})
	return nil
}

type fakeRecorder []string

func (r *fakeRecorder) DigestResult(result string) { *r = append(*r, result) }

func newStore(t *testing.T, chat string, texts ...string) *history.Store {
	t.Helper()
	s := history.Open(nil)
	for _, txt := range texts {
		if err := s.Append(chat, txt); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return s
}

func TestProduce_SendsAndClears(t *testing.T) {
	store := newStore(t, "c", "обід о другій", "терміново потрібен звіт", "обід переносимо")
	fl := &fakeLLM{resp: llm.Response{Content: "- Обід\n- Звіт"}}
	fs := &fakeSender{}
	rec := &fakeRecorder{}
	p := NewProducer(store, fl, fs, Options{Urgent: []string{"Терміново"}, KeywordsCount: 2, Recorder: rec})

	res, err := p.Produce(context.Background(), "c", true)
	if err != nil || res != ResultSent {
		t.Fatalf("unexpected result: %v %v", res, err)
	}
	if len(fs.sent) != 1 || fs.sent[0].chatID != "c" {
		t.Fatalf("unexpected sends: %+v", fs.sent)
	}
	out := fs.sent[0].text
	if !strings.HasPrefix(out, Header) {
		t.Fatalf("header missing: %q", out)
	}
	if !strings.Contains(out, "- Обід\n- Звіт") {
		t.Fatalf("summary missing: %q", out)
	}
	if !strings.Contains(out, KeywordsTitle+" обід, о") {
		t.Fatalf("keywords missing: %q", out)
	}
	if !strings.Contains(out, ImportantTitle+"\n• терміново потрібен звіт") {
		t.Fatalf("important block missing: %q", out)
	}
	if strings.Count(out, "•") != 1 {
		t.Fatalf("only urgent messages belong to the important block: %q", out)
	}
	if store.HasPending("c") {
		t.Fatalf("history should be cleared after successful send")
	}
	if len(*rec) != 1 || (*rec)[0] != "sent" {
		t.Fatalf("unexpected recorder: %v", *rec)
	}

	prompt := fl.last[len(fl.last)-1].Content
	for _, m := range []string{"обід о другій", "терміново потрібен звіт", "обід переносимо"} {
		if !strings.Contains(prompt, m) {
			t.Fatalf("prompt lacks %q: %q", m, prompt)
		}
	}
}

func TestProduce_NoImportantBlockWhenNothingUrgent(t *testing.T) {
	store := newStore(t, "c", "just chatting here")
	fs := &fakeSender{}
	p := NewProducer(store, &fakeLLM{resp: llm.Response{Content: "topic"}}, fs, Options{Urgent: []string{"urgent"}})
	if _, err := p.Produce(context.Background(), "c", true); err != nil {
		t.Fatalf("produce: %v", err)
	}
	if strings.Contains(fs.sent[0].text, ImportantTitle) {
		t.Fatalf("important block should be omitted: %q", fs.sent[0].text)
	}
}

func TestProduce_EmptyChatSkipsLLM(t *testing.T) {
	fl := &fakeLLM{}
	fs := &fakeSender{}
	p := NewProducer(history.Open(nil), fl, fs, Options{})
	res, err := p.Produce(context.Background(), "nobody", true)
	if err != nil || res != ResultNothingToSummarize {
		t.Fatalf("unexpected: %v %v", res, err)
	}
	if fl.calls != 0 || len(fs.sent) != 0 {
		t.Fatalf("no external calls expected: llm=%d sends=%d", fl.calls, len(fs.sent))
	}
}

func TestProduce_LLMFailureUsesFallback(t *testing.T) {
	cases := []struct {
		name string
		llm  *fakeLLM
		want string
	}{
		{"error", &fakeLLM{err: errors.New("quota")}, FallbackFailed},
		{"empty sentinel", &fakeLLM{err: llm.ErrEmptyResponse}, FallbackNoTopics},
		{"blank content", &fakeLLM{resp: llm.Response{Content: "  \n"}}, FallbackNoTopics},
	}
	for _, c := range cases {
		store := newStore(t, "c", "some message text")
		fs := &fakeSender{}
		p := NewProducer(store, c.llm, fs, Options{})
		res, err := p.Produce(context.Background(), "c", true)
		if err != nil || res != ResultSent {
			t.Fatalf("%s: unexpected: %v %v", c.name, res, err)
		}
		if !strings.Contains(fs.sent[0].text, c.want) {
			t.Fatalf("%s: fallback missing: %q", c.name, fs.sent[0].text)
		}
		if store.HasPending("c") {
			t.Fatalf("%s: history should be cleared", c.name)
		}
	}
}

func TestProduce_LLMTimeoutUsesFallback(t *testing.T) {
	store := newStore(t, "c", "slow chat message")
	fs := &fakeSender{}
	p := NewProducer(store, &fakeLLM{block: true}, fs, Options{LLMTimeout: 10 * time.Millisecond})
	res, err := p.Produce(context.Background(), "c", true)
	if err != nil || res != ResultSent {
		t.Fatalf("unexpected: %v %v", res, err)
	}
	if !strings.Contains(fs.sent[0].text, FallbackFailed) {
		t.Fatalf("fallback missing: %q", fs.sent[0].text)
	}
}

func TestProduce_SendFailureKeepsHistory(t *testing.T) {
	store := newStore(t, "c", "first message", "second message")
	fs := &fakeSender{err: errors.New("network down")}
	p := NewProducer(store, &fakeLLM{resp: llm.Response{Content: "x"}}, fs, Options{})

	res, err := p.Produce(context.Background(), "c", true)
	if err == nil || res != ResultSendFailed {
		t.Fatalf("unexpected: %v %v", res, err)
	}
	if got := store.Snapshot("c"); len(got) != 2 || got[0] != "first message" {
		t.Fatalf("history must survive a failed send: %v", got)
	}

	fs.err = nil
	if res, _ := p.Produce(context.Background(), "c", true); res != ResultSent {
		t.Fatalf("retry should succeed, got %v", res)
	}
	if !strings.Contains(fs.sent[0].text, "x") || store.HasPending("c") {
		t.Fatalf("retry did not clear: %+v", fs.sent)
	}
}

func TestProduce_WithoutClearKeepsHistory(t *testing.T) {
	store := newStore(t, "c", "keep me around")
	p := NewProducer(store, &fakeLLM{resp: llm.Response{Content: "x"}}, &fakeSender{}, Options{})
	if _, err := p.Produce(context.Background(), "c", false); err != nil {
		t.Fatalf("produce: %v", err)
	}
	if !store.HasPending("c") {
		t.Fatalf("clearAfter=false must not clear")
	}
}

func TestProduce_EscapesPlainText(t *testing.T) {
	store := newStore(t, "c", "urgent: 1+1=2!")
	fs := &fakeSender{}
	esc := func(s string) string { return "<" + s + ">" }
	p := NewProducer(store, &fakeLLM{resp: llm.Response{Content: "sum"}}, fs, Options{Urgent: []string{"urgent"}, Escape: esc})
	_, _ = p.Produce(context.Background(), "c", true)
	out := fs.sent[0].text
	for _, want := range []string{Header + "\n<sum>", KeywordsTitle + " <", "• <urgent: 1+1=2!>"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

type failingChatSender struct {
	fakeSender
	failChat string
}

func (f *failingChatSender) Send(ctx context.Context, chatID, text string) error {
	if chatID == f.failChat {
		return errors.New("blocked by user")
	}
	return f.fakeSender.Send(ctx, chatID, text)
}

func TestRunAll_IsolatesChats(t *testing.T) {
	store := history.Open(nil)
	_ = store.Append("a", "message for a")
	_ = store.Append("b", "message for b")
	_ = store.Append("c", "message for c")
	fs := &failingChatSender{failChat: "b"}
	p := NewProducer(store, &fakeLLM{err: errors.New("llm down")}, fs, Options{})

	err := p.RunAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "chat b") {
		t.Fatalf("expected error for chat b, got %v", err)
	}
	if len(fs.sent) != 2 || fs.sent[0].chatID != "a" || fs.sent[1].chatID != "c" {
		t.Fatalf("other chats must still be processed: %+v", fs.sent)
	}
	pending := store.PendingChats()
	if len(pending) != 1 || pending[0] != "b" {
		t.Fatalf("only the failed chat should stay pending: %v", pending)
	}
}

func TestRunAll_NoChats(t *testing.T) {
	fl := &fakeLLM{}
	p := NewProducer(history.Open(nil), fl, &fakeSender{}, Options{})
	if err := p.RunAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fl.calls != 0 {
		t.Fatalf("llm must not be called")
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt([]string{"one", "two"})
	if !strings.Contains(p, "1. one\n2. two\n") || !strings.Contains(p, "маркованим списком") {
		t.Fatalf("unexpected prompt: %q", p)
	}
}

type gatedLLM struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedLLM) Generate(ctx context.Context, msgs []llm.Message) (llm.Response, error) {
	close(g.started)
	<-g.release
	return llm.Response{Content: "topics"}, nil
}

func TestProduce_ConcurrentCallKeepsLateMessages(t *testing.T) {
	store := newStore(t, "c", "alpha", "beta")
	gl := &gatedLLM{started: make(chan struct{}), release: make(chan struct{})}
	fs := &fakeSender{}
	rec := &fakeRecorder{}
	p := NewProducer(store, gl, fs, Options{Recorder: rec})

	done := make(chan Result)
	go func() {
		res, _ := p.Produce(context.Background(), "c", true)
		done <- res
	}()
	<-gl.started

	res, err := p.Produce(context.Background(), "c", true)
	if err != nil || res != ResultInProgress {
		t.Fatalf("second digest should be skipped, got %v %v", res, err)
	}
	if err := store.Append("c", "gamma arrived mid digest"); err != nil {
		t.Fatalf("append: %v", err)
	}
	close(gl.release)

	if res := <-done; res != ResultSent {
		t.Fatalf("first digest: %v", res)
	}
	if len(fs.sent) != 1 {
		t.Fatalf("want exactly one digest, got %d", len(fs.sent))
	}
	got := store.Snapshot("c")
	if len(got) != 1 || got[0] != "gamma arrived mid digest" {
		t.Fatalf("message received during the digest was lost: %v", got)
	}
	if len(*rec) != 2 || (*rec)[0] != "in_progress" || (*rec)[1] != "sent" {
		t.Fatalf("unexpected recorder: %v", *rec)
	}

	// The guard is released afterwards.
	if res, _ := p.Produce(context.Background(), "c", true); res != ResultSent {
		t.Fatalf("follow-up digest: %v", res)
	}
}

func TestProduce_SplitsLongDigest(t *testing.T) {
	var texts []string
	for i := 0; i < 40; i++ {
		texts = append(texts, fmt.Sprintf("urgent %02d ", i)+strings.Repeat("x", 110))
	}
	store := newStore(t, "c", texts...)
	fs := &fakeSender{}
	p := NewProducer(store, &fakeLLM{resp: llm.Response{Content: "topics"}}, fs, Options{Urgent: []string{"urgent"}})

	res, err := p.Produce(context.Background(), "c", true)
	if err != nil || res != ResultSent {
		t.Fatalf("unexpected result: %v %v", res, err)
	}
	if len(fs.sent) < 2 {
		t.Fatalf("expected the digest to be split, got %d parts", len(fs.sent))
	}
	var all strings.Builder
	for _, s := range fs.sent {
		if n := textWidth(s.text); n > MaxMessageLen {
			t.Fatalf("part exceeds limit: %d", n)
		}
		all.WriteString(s.text)
		all.WriteString("\n")
	}
	if !strings.HasPrefix(fs.sent[0].text, Header) {
		t.Fatalf("first part should start with the header")
	}
	for _, m := range texts {
		if !strings.Contains(all.String(), "• "+m) {
			t.Fatalf("message missing from digest: %q", m)
		}
	}
	if store.HasPending("c") {
		t.Fatalf("history should be cleared after all parts were sent")
	}
}

type failAfterSender struct {
	ok    int
	calls int
}

func (f *failAfterSender) Send(ctx context.Context, chatID, text string) error {
	f.calls++
	if f.calls > f.ok {
		return errors.New("flood wait")
	}
	return nil
}

func TestProduce_PartialSendKeepsHistory(t *testing.T) {
	store := newStore(t, "c", "urgent "+strings.Repeat("y", 60), "urgent "+strings.Repeat("z", 60))
	fs := &failAfterSender{ok: 1}
	p := NewProducer(store, &fakeLLM{resp: llm.Response{Content: "topics"}}, fs, Options{
		Urgent:        []string{"urgent"},
		MaxMessageLen: 80,
	})
	res, err := p.Produce(context.Background(), "c", true)
	if err == nil || res != ResultSendFailed {
		t.Fatalf("expected send failure, got %v %v", res, err)
	}
	if n := len(store.Snapshot("c")); n != 2 {
		t.Fatalf("history should be kept, got %d entries", n)
	}
}

func TestSplitMessage(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"fits", "short", 10, []string{"short"}},
		{"lines", "aaaa\nbbbb\ncccc", 10, []string{"aaaa\nbbbb", "cccc"}},
		{"long line", "abcdefghijkl", 5, []string{"abcde", "fghij", "kl"}},
		{"escape kept together", "abcdefghi\\.xyz", 10, []string{"abcdefghi", "\\.xyz"}},
		{"surrogate pairs", "😀😀😀", 4, []string{"😀😀", "😀"}},
	}
	for _, c := range cases {
		got := SplitMessage(c.text, c.limit)
		if len(got) != len(c.want) {
			t.Fatalf("%s: got %q, want %q", c.name, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("%s: got %q, want %q", c.name, got, c.want)
			}
		}
	}
}
