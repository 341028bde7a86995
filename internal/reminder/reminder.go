// Package reminder sends one-off delayed messages. Reminders live only in memory.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrFormat is returned for arguments that are not "<minutes> <text>".
var ErrFormat = errors.New("usage: /remind <minutes> <text>")

// Sender delivers the reminder text to a chat.
type Sender interface {
	Send(ctx context.Context, chatID string, text string) error
}

// MaxMinutes caps the reminder delay at one year.
const MaxMinutes = 365 * 24 * 60

// ParseArgs splits "<minutes> <text>" into a delay and the reminder text.
// Minutes must be an integer in [0, MaxMinutes] and the text must not be empty.
func ParseArgs(args string) (time.Duration, string, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return 0, "", ErrFormat
	}
	minutes, err := strconv.Atoi(fields[0])
	if err != nil || minutes < 0 || minutes > MaxMinutes {
		return 0, "", ErrFormat
	}
	return time.Duration(minutes) * time.Minute, strings.Join(fields[1:], " "), nil
}

// Mention renders the requester tag: "@username" when known, otherwise the display name.
func Mention(username, firstName string) string {
	if username != "" {
		return "@" + username
	}
	if firstName != "" {
		return firstName
	}
	return "👤"
}

type Scheduler struct {
	sender      Sender
	sendTimeout time.Duration
	afterFunc   func(d time.Duration, f func()) *time.Timer
	onScheduled func()

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

func New(sender Sender, sendTimeout time.Duration) *Scheduler {
	return &Scheduler{
		sender:      sender,
		sendTimeout: sendTimeout,
		afterFunc:   time.AfterFunc,
		timers:      make(map[*time.Timer]struct{}),
	}
}

// OnScheduled registers a hook called for every accepted reminder.
func (s *Scheduler) OnScheduled(f func()) {
	s.onScheduled = f
}

// Schedule sends "<mention>, нагадування: <text>" to chatID after delay.
func (s *Scheduler) Schedule(chatID string, delay time.Duration, text, mention string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("reminder scheduler stopped")
	}
	msg := fmt.Sprintf("⏰ %s, нагадування: %s", mention, text)

	var t *time.Timer
	t = s.afterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()
		s.deliver(chatID, msg)
	})
	s.timers[t] = struct{}{}
	if s.onScheduled != nil {
		s.onScheduled()
	}
	log.Printf("⏰ reminder for chat %s scheduled in %s", chatID, delay)
	return nil
}

func (s *Scheduler) deliver(chatID, msg string) {
	ctx := context.Background()
	if s.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.sendTimeout)
		defer cancel()
	}
	if err := s.sender.Send(ctx, chatID, msg); err != nil {
		log.Printf("❌ failed to deliver reminder to chat %s: %v", chatID, err)
	}
}

// Pending returns the number of reminders not yet fired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop drops every pending reminder.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for t := range s.timers {
		t.Stop()
	}
	dropped := len(s.timers)
	s.timers = make(map[*time.Timer]struct{})
	if dropped > 0 {
		log.Printf("⚠️ dropped %d pending reminders on shutdown", dropped)
	}
}
