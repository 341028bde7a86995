package auth

import (
	"context"
	"fmt"
)

// AdminLister returns the ids of the administrators of a chat.
type AdminLister interface {
	ChatAdministrators(ctx context.Context, chatID int64) ([]int64, error)
}

// Service decides who may run administrator-only commands.
type Service struct {
	lister    AdminLister
	operators map[int64]struct{}
}

// New creates a Service. Operators are treated as administrators of every chat.
func New(lister AdminLister, operators ...int64) *Service {
	s := &Service{lister: lister, operators: make(map[int64]struct{})}
	for _, id := range operators {
		if id != 0 {
			s.operators[id] = struct{}{}
		}
	}
	return s
}

// IsChatAdmin reports whether userID administers chatID. In a private chat
// (chat id equals user id) the user is always the administrator.
func (s *Service) IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if _, ok := s.operators[userID]; ok {
		return true, nil
	}
	if chatID == userID {
		return true, nil
	}
	if s.lister == nil {
		return false, nil
	}
	admins, err := s.lister.ChatAdministrators(ctx, chatID)
	if err != nil {
		return false, fmt.Errorf("list administrators of %d: %w", chatID, err)
	}
	for _, id := range admins {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}
