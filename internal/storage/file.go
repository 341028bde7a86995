package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"chat-digest/internal/history"
)

// FileStore keeps the whole message store in one JSON file that is rewritten on every save.
type FileStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure data dir: %w", err)
	}
	return &FileStore{path: path, now: time.Now}, nil
}

// Load reads the state file. A missing file is an empty store; a corrupt one is an error.
func (s *FileStore) Load() (map[string][]history.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string][]history.Entry{}, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	if len(data) == 0 {
		return map[string][]history.Entry{}, nil
	}
	var raw map[string][]record
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	loadedAt := s.now().UTC()
	out := make(map[string][]history.Entry, len(raw))
	for chatID, recs := range raw {
		entries := make([]history.Entry, 0, len(recs))
		for _, r := range recs {
			e, err := r.entry(loadedAt)
			if err != nil {
				return nil, fmt.Errorf("decode timestamp for chat %s: %w", chatID, err)
			}
			entries = append(entries, e)
		}
		out[chatID] = entries
	}
	return out, nil
}

// Save replaces the state file atomically: write a temp file next to it, then rename.
func (s *FileStore) Save(chats map[string][]history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw := make(map[string][]record, len(chats))
	for chatID, entries := range chats {
		recs := make([]record, 0, len(entries))
		for _, e := range entries {
			recs = append(recs, toRecord(e))
		}
		raw[chatID] = recs
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}
