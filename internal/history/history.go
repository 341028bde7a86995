// Package history keeps the retained messages of every chat the bot participates in.
package history

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// Entry is one retained, already normalized message.
type Entry struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Backend persists the whole store. Save receives the full chat -> entries mapping
// and must replace whatever was stored before.
type Backend interface {
	Load() (map[string][]Entry, error)
	Save(chats map[string][]Entry) error
}

// Store owns all chat histories. Every mutation is written through to the backend
// while the lock is held, so concurrent appends and digest clears cannot lose updates.
type Store struct {
	mu      sync.Mutex
	chats   map[string][]Entry
	backend Backend
	now     func() time.Time
}

// Open loads the persisted state. A missing or corrupt state starts an empty store.
func Open(backend Backend) *Store {
	s := &Store{chats: make(map[string][]Entry), backend: backend, now: time.Now}
	if backend == nil {
		return s
	}
	chats, err := backend.Load()
	if err != nil {
		log.Printf("⚠️ failed to load message store, starting empty: %v", err)
		return s
	}
	for id, entries := range chats {
		if len(entries) > 0 {
			s.chats[id] = entries
		}
	}
	return s
}

// Append stores text for chatID unconditionally.
func (s *Store) Append(chatID, text string) error {
	_, err := s.AppendUnless(chatID, text, nil)
	return err
}

// AppendUnless stores text unless reject returns true for the chat's last entry
// (nil when the chat has no entries). The check and the append happen under one lock.
// It reports whether the text was stored.
func (s *Store) AppendUnless(chatID, text string, reject func(last *Entry) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.chats[chatID]
	if reject != nil {
		var last *Entry
		if n := len(entries); n > 0 {
			e := entries[n-1]
			last = &e
		}
		if reject(last) {
			return false, nil
		}
	}
	s.chats[chatID] = append(entries, Entry{Text: text, Timestamp: s.now().UTC()})
	return true, s.persistLocked()
}

// Snapshot returns the texts of chatID in arrival order.
func (s *Store) Snapshot(chatID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	es := s.chats[chatID]
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.Text)
	}
	return out
}

// Entries returns a copy of the entries of chatID.
func (s *Store) Entries(chatID string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.chats[chatID]...)
}

func (s *Store) HasPending(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats[chatID]) > 0
}

// PendingChats returns the ids of chats with at least one entry, sorted.
// Chats that appear after the call are not included.
func (s *Store) PendingChats() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.chats))
	for id, es := range s.chats {
		if len(es) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Clear removes the whole history of chatID.
func (s *Store) Clear(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[chatID]; !ok {
		return nil
	}
	delete(s.chats, chatID)
	return s.persistLocked()
}

// Discard removes the n oldest entries of chatID. Entries appended after a
// snapshot of length n survive; n >= len behaves like Clear.
func (s *Store) Discard(chatID string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	es, ok := s.chats[chatID]
	if !ok || n <= 0 {
		return nil
	}
	if n >= len(es) {
		delete(s.chats, chatID)
	} else {
		s.chats[chatID] = append([]Entry(nil), es[n:]...)
	}
	return s.persistLocked()
}

// Flush writes the current state to the backend.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	if s.backend == nil {
		return nil
	}
	if err := s.backend.Save(s.chats); err != nil {
		return fmt.Errorf("persist message store: %w", err)
	}
	return nil
}
