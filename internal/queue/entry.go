package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Status is the lifecycle state of a queue entry. Only pending entries are
// persisted; clearing an entry removes it.
type Status string

const StatusPending Status = "pending"

// Entry is one pending release request. SHA is the natural key.
type Entry struct {
	SHA           string    `json:"sha"`
	Branch        string    `json:"branch"`
	Timestamp     Timestamp `json:"timestamp"`
	Status        Status    `json:"status"`
	EstimatedTime string    `json:"estimated_time"`
	PR            *int64    `json:"pr,omitempty"`
}

// UnmarshalJSON also accepts the older {"commit", "date", "pr"} item shape.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		SHA           string    `json:"sha"`
		Commit        string    `json:"commit"`
		Branch        string    `json:"branch"`
		Timestamp     Timestamp `json:"timestamp"`
		Date          Timestamp `json:"date"`
		Status        Status    `json:"status"`
		EstimatedTime string    `json:"estimated_time"`
		PR            *int64    `json:"pr"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Entry{
		SHA:           raw.SHA,
		Branch:        raw.Branch,
		Timestamp:     raw.Timestamp,
		Status:        raw.Status,
		EstimatedTime: raw.EstimatedTime,
		PR:            raw.PR,
	}
	if e.SHA == "" {
		e.SHA = raw.Commit
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = raw.Date
	}
	if e.Status == "" {
		e.Status = StatusPending
	}
	return nil
}

// Timestamp is written as integer unix seconds and read from either an
// integer or an RFC3339 string.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Second)}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("0"), nil
	}
	return []byte(strconv.FormatInt(t.Unix(), 10)), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*t = Timestamp{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", s, err)
		}
		*t = NewTimestamp(parsed)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp %s: %w", data, err)
	}
	if n == 0 {
		*t = Timestamp{}
		return nil
	}
	*t = NewTimestamp(time.Unix(n, 0))
	return nil
}

// String formats the timestamp as RFC3339 UTC, or "" when unset.
func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
