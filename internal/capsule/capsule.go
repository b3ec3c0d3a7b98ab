package capsule

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const DefaultAuthor = "Anonymous"

// Entry is one submitted capsule record as stored by the remote store.
// The store assigns the key; entries are only ever read.
type Entry struct {
	Name      string    `json:"name,omitempty"`
	Message   string    `json:"message,omitempty"`
	FileURL   string    `json:"fileUrl,omitempty"`
	FileType  string    `json:"fileType,omitempty"`
	Timestamp Timestamp `json:"timestamp"`
}

func (e Entry) Author() string {
	if e.Name == "" {
		return DefaultAuthor
	}
	return e.Name
}

func (e Entry) HasAttachment() bool {
	return e.FileURL != ""
}

// Timestamp keeps the raw time marker of an entry. Submissions carry either
// epoch milliseconds or a date string depending on who wrote them.
type Timestamp struct {
	raw    string
	millis int64
	valid  bool
}

func TimestampFromMillis(ms int64) Timestamp {
	return Timestamp{raw: strconv.FormatInt(ms, 10), millis: ms, valid: true}
}

func TimestampFromTime(t time.Time) Timestamp {
	return TimestampFromMillis(t.UnixMilli())
}

// ParseTimestamp accepts epoch milliseconds or an RFC 3339 style string.
// Unparseable input is kept as raw text with a zero sort key.
func ParseTimestamp(s string) Timestamp {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Timestamp{raw: s, millis: int64(f), valid: true}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{raw: s, millis: t.UnixMilli(), valid: true}
		}
	}
	return Timestamp{raw: s}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t Timestamp) IsZero() bool {
	return t.raw == ""
}

func (t Timestamp) Raw() string {
	return t.raw
}

// SortKey orders entries; a missing or unreadable timestamp sorts first.
func (t Timestamp) SortKey() int64 {
	if !t.valid {
		return 0
	}
	return t.millis
}

func (t Timestamp) Time() (time.Time, bool) {
	if !t.valid {
		return time.Time{}, false
	}
	return time.UnixMilli(t.millis), true
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.raw == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseFloat(t.raw, 64); err == nil {
		return []byte(t.raw), nil
	}
	return json.Marshal(t.raw)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = ParseTimestamp(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		// booleans, objects and the like carry no time information
		*t = Timestamp{}
		return nil
	}
	*t = ParseTimestamp(n.String())
	return nil
}

// DecodeEntry reads a record leniently: wrong field types are dropped and
// defaults applied instead of failing the whole entry.
func DecodeEntry(data []byte) (Entry, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Entry{}, err
	}
	var e Entry
	e.Name = stringField(fields["name"])
	e.Message = stringField(fields["message"])
	e.FileURL = stringField(fields["fileUrl"])
	e.FileType = stringField(fields["fileType"])
	if raw, ok := fields["timestamp"]; ok {
		_ = e.Timestamp.UnmarshalJSON(raw)
	}
	return e, nil
}

func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
