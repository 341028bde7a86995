package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WordLists holds the fixed vocabularies used by the message filters and the digest.
type WordLists struct {
	Banned       []string `yaml:"banned"`
	ShortReplies []string `yaml:"short_replies"`
	Urgent       []string `yaml:"urgent"`
}

func DefaultWordLists() WordLists {
	return WordLists{
		Banned:       []string{"дурень", "ідіот", "лох", "придурок", "fuck", "shit"},
		ShortReplies: []string{"так", "ні", "ок", "добре", "дякую", "згоден", "+", "-", "yes", "no", "ok"},
		Urgent:       []string{"терміново", "важливо", "увага", "дедлайн", "urgent", "important", "asap"},
	}
}

// LoadWordLists reads a YAML file with word lists. A missing file yields the defaults;
// lists omitted from the file keep their default values.
func LoadWordLists(path string) (WordLists, error) {
	wl := DefaultWordLists()
	if path == "" {
		return wl, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return wl, nil
		}
		return wl, fmt.Errorf("read word lists: %w", err)
	}
	var fromFile WordLists
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return wl, fmt.Errorf("decode word lists: %w", err)
	}
	if len(fromFile.Banned) > 0 {
		wl.Banned = fromFile.Banned
	}
	if len(fromFile.ShortReplies) > 0 {
		wl.ShortReplies = fromFile.ShortReplies
	}
	if len(fromFile.Urgent) > 0 {
		wl.Urgent = fromFile.Urgent
	}
	return wl, nil
}
