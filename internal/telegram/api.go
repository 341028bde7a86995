package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type botAPI interface {
	sender
	GetChatAdministrators(config tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error)
}

// Escape converts plain text into MarkdownV2-safe text.
func Escape(text string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, text)
}

// Client is the chat transport: outgoing sends, administrator lookup and the update stream.
type Client struct {
	api         *tgbotapi.BotAPI
	s           botAPI
	selfID      int64
	sendTimeout time.Duration
}

func NewClient(token string, sendTimeout time.Duration) (*Client, error) {
	// long polling holds requests for up to 60s
	httpClient := &http.Client{Timeout: 90 * time.Second}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, err
	}
	return &Client{api: api, s: api, selfID: api.Self.ID, sendTimeout: sendTimeout}, nil
}

func (c *Client) SelfID() int64 { return c.selfID }

// Updates starts long polling.
func (c *Client) Updates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	return c.api.GetUpdatesChan(u)
}

func (c *Client) StopUpdates() {
	if c.api != nil {
		c.api.StopReceivingUpdates()
	}
}

// Send delivers MarkdownV2 text to chatID.
func (c *Client) Send(ctx context.Context, chatID string, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	return c.send(ctx, id, text, tgbotapi.ModeMarkdownV2)
}

// Plain returns a sender that delivers text without any markup.
func (c *Client) Plain() PlainSender { return PlainSender{c: c} }

type PlainSender struct{ c *Client }

func (p PlainSender) Send(ctx context.Context, chatID string, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	return p.c.send(ctx, id, text, "")
}

// ChatAdministrators implements auth.AdminLister.
func (c *Client) ChatAdministrators(ctx context.Context, chatID int64) ([]int64, error) {
	type result struct {
		members []tgbotapi.ChatMember
		err     error
	}
	done := make(chan result, 1)
	go func() {
		members, err := c.s.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
			ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
		})
		done <- result{members, err}
	}()
	var r result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-done:
	}
	if r.err != nil {
		return nil, r.err
	}
	ids := make([]int64, 0, len(r.members))
	for _, m := range r.members {
		if m.User != nil {
			ids = append(ids, m.User.ID)
		}
	}
	return ids, nil
}

// send bounds the blocking Bot API call by ctx and sendTimeout.
func (c *Client) send(ctx context.Context, chatID int64, text, parseMode string) error {
	if c.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.sendTimeout)
		defer cancel()
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseMode

	done := make(chan error, 1)
	go func() {
		_, err := c.s.Send(msg)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("send to %d: %w", chatID, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send to %d: %w", chatID, err)
		}
		return nil
	}
}

func chatKey(id int64) string { return strconv.FormatInt(id, 10) }

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	return id, nil
}
