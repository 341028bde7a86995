package storage

import (
	"encoding/json"
	"time"

	"chat-digest/internal/history"
)

// record is the on-disk form of a history entry. Timestamps are RFC 3339 strings.
// Older state files stored bare strings; those take the load time as timestamp.
type record struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

func (r *record) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*r = record{Text: text}
		return nil
	}
	type plain record
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = record(p)
	return nil
}

func toRecord(e history.Entry) record {
	return record{Text: e.Text, Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano)}
}

func (r record) entry(fallback time.Time) (history.Entry, error) {
	if r.Timestamp == "" {
		return history.Entry{Text: r.Text, Timestamp: fallback}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return history.Entry{}, err
	}
	return history.Entry{Text: r.Text, Timestamp: ts}, nil
}
