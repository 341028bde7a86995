package telegram

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chat-digest/internal/analytics"
	"chat-digest/internal/auth"
	"chat-digest/internal/digest"
	"chat-digest/internal/history"
	"chat-digest/internal/ingest"
	"chat-digest/internal/reminder"
)

const (
	cmdStart       = "start"
	cmdStats       = "stats"
	cmdRemind      = "remind"
	cmdSummary     = "summary"
	cmdTestSummary = "test_summary"
)

const (
	msgGreeting    = "👋 Привіт! Я збираю повідомлення цього чату і щодня надсилаю підсумок обговорення.\n\nКоманди:\n/stats - статистика чату\n/remind <хвилини> <текст> - нагадування\n/summary - підсумок зараз (лише для адміністраторів)"
	msgAdminsOnly  = "Ця команда доступна лише адміністраторам."
	msgNothing     = "Немає повідомлень для підсумку."
	msgSendFailed  = "Сталася помилка при надсиланні підсумку."
	msgInProgress  = "Підсумок для цього чату вже готується."
	msgAdminLookup = "Не вдалося перевірити права адміністратора."
	msgRemindUsage = "Неправильний формат. Використання: /remind <хвилини> <текст>"
)

type Deps struct {
	Ingest        *ingest.Pipeline
	Store         *history.Store
	Producer      *digest.Producer
	Reminders     *reminder.Scheduler
	Auth          *auth.Service
	KeywordsCount int
}

type Bot struct {
	client        *Client
	ingest        *ingest.Pipeline
	store         *history.Store
	producer      *digest.Producer
	reminders     *reminder.Scheduler
	authSvc       *auth.Service
	keywordsCount int
}

func New(client *Client, d Deps) *Bot {
	return &Bot{
		client:        client,
		ingest:        d.Ingest,
		store:         d.Store,
		producer:      d.Producer,
		reminders:     d.Reminders,
		authSvc:       d.Auth,
		keywordsCount: d.KeywordsCount,
	}
}

// Start handles updates one at a time until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	updates := b.client.Updates()
	log.Printf("🤖 Bot started as id %d", b.client.SelfID())
	for {
		select {
		case <-ctx.Done():
			b.client.StopUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	if msg.From.ID == b.client.SelfID() {
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	if msg.Text == "" {
		return
	}
	b.handleIncomingMessage(msg)
}

func (b *Bot) handleIncomingMessage(msg *tgbotapi.Message) {
	chatID := chatKey(msg.Chat.ID)
	out, err := b.ingest.Ingest(chatID, msg.Text)
	if err != nil {
		log.Printf("❌ failed to persist message from chat %s: %v", chatID, err)
	}
	if out == ingest.Spam {
		log.Printf("Dropped spam in chat %s from %d", chatID, msg.From.ID)
		return
	}
	log.Printf("New message in chat %s from %d (@%s)", chatID, msg.From.ID, msg.From.UserName)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case cmdStart:
		b.reply(ctx, msg.Chat.ID, msgGreeting)
	case cmdStats:
		b.handleStats(ctx, msg)
	case cmdRemind:
		b.handleRemind(ctx, msg)
	case cmdSummary, cmdTestSummary:
		b.handleSummary(ctx, msg)
	}
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) {
	texts := b.store.Snapshot(chatKey(msg.Chat.ID))
	b.reply(ctx, msg.Chat.ID, analytics.Summarize(texts, b.keywordsCount).Report())
}

func (b *Bot) handleRemind(ctx context.Context, msg *tgbotapi.Message) {
	delay, text, err := reminder.ParseArgs(msg.CommandArguments())
	if err != nil {
		b.reply(ctx, msg.Chat.ID, msgRemindUsage)
		return
	}
	mention := reminder.Mention(msg.From.UserName, msg.From.FirstName)
	if err := b.reminders.Schedule(chatKey(msg.Chat.ID), delay, text, mention); err != nil {
		log.Printf("failed to schedule reminder: %v", err)
		return
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf("✅ Нагадаю через %d хв.", int(delay/time.Minute)))
}

func (b *Bot) handleSummary(ctx context.Context, msg *tgbotapi.Message) {
	ok, err := b.authSvc.IsChatAdmin(ctx, msg.Chat.ID, msg.From.ID)
	if err != nil {
		log.Printf("⚠️ admin lookup failed for chat %d: %v", msg.Chat.ID, err)
		b.reply(ctx, msg.Chat.ID, msgAdminLookup)
		return
	}
	if !ok {
		b.reply(ctx, msg.Chat.ID, msgAdminsOnly)
		return
	}
	chatID := chatKey(msg.Chat.ID)
	if !b.store.HasPending(chatID) {
		b.reply(ctx, msg.Chat.ID, msgNothing)
		return
	}
	res, err := b.producer.Produce(ctx, chatID, true)
	switch res {
	case digest.ResultNothingToSummarize:
		b.reply(ctx, msg.Chat.ID, msgNothing)
	case digest.ResultSendFailed:
		b.reply(ctx, msg.Chat.ID, msgSendFailed)
	case digest.ResultInProgress:
		b.reply(ctx, msg.Chat.ID, msgInProgress)
	default:
		if err != nil {
			log.Printf("⚠️ digest for chat %s sent with error: %v", chatID, err)
		} else {
			log.Printf("Digest sent to chat %s on request of %d", chatID, msg.From.ID)
		}
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.client.send(ctx, chatID, strings.TrimSpace(text), ""); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}
