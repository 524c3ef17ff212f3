package compliance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// TimestampKind tells whether a Timestamp carries a calendar date or an instant
type TimestampKind uint8

const (
	KindUnset TimestampKind = iota
	KindDate
	KindInstant
)

const dateLayout = "2006-01-02"

// Timestamp is either a calendar date or a server-assigned instant.
// Time is the only conversion to time.Time; records may carry either form.
type Timestamp struct {
	kind TimestampKind
	t    time.Time
}

// Date returns a calendar-date timestamp at UTC midnight
func Date(year int, month time.Month, day int) Timestamp {
	return Timestamp{kind: KindDate, t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's location
func DateOf(t time.Time) Timestamp {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// Instant returns an instant timestamp
func Instant(t time.Time) Timestamp {
	return Timestamp{kind: KindInstant, t: t.Round(0).UTC()}
}

// ParseTimestamp accepts "YYYY-MM-DD" as a date and RFC 3339 as an instant
func ParseTimestamp(s string) (Timestamp, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Timestamp{kind: KindDate, t: t}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: expected YYYY-MM-DD or RFC 3339", s)
	}
	return Instant(t), nil
}

// Time converts the timestamp to a time.Time; dates map to UTC midnight
func (ts Timestamp) Time() time.Time { return ts.t }

// Kind reports which form the timestamp holds
func (ts Timestamp) Kind() TimestampKind { return ts.kind }

// IsZero reports whether the timestamp is unset
func (ts Timestamp) IsZero() bool { return ts.kind == KindUnset }

// AddDays shifts the timestamp by n calendar days, keeping its kind
func (ts Timestamp) AddDays(n int) Timestamp {
	return Timestamp{kind: ts.kind, t: ts.t.AddDate(0, 0, n)}
}

// Ptr returns a pointer to a copy of ts
func (ts Timestamp) Ptr() *Timestamp { return &ts }

func (ts Timestamp) String() string {
	switch ts.kind {
	case KindDate:
		return ts.t.Format(dateLayout)
	case KindInstant:
		return ts.t.Format(time.RFC3339Nano)
	}
	return ""
}

// serverTimestamp is the document-store form of an instant
type serverTimestamp struct {
	Seconds     *int64 `json:"seconds"`
	Nanoseconds int64  `json:"nanoseconds"`
}

// MarshalJSON implements json.Marshaler
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.kind == KindUnset {
		return []byte("null"), nil
	}
	return json.Marshal(ts.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*ts = Timestamp{}
		return nil
	}

	if len(data) > 0 && data[0] == '{' {
		var st serverTimestamp
		if err := json.Unmarshal(data, &st); err != nil {
			return fmt.Errorf("invalid server timestamp: %w", err)
		}
		if st.Seconds == nil {
			return fmt.Errorf("invalid server timestamp: missing seconds")
		}
		*ts = Instant(time.Unix(*st.Seconds, st.Nanoseconds))
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	if s == "" {
		*ts = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (ts Timestamp) MarshalYAML() (interface{}, error) {
	if ts.kind == KindUnset {
		return nil, nil
	}
	return ts.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (ts *Timestamp) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: timestamp must be a scalar", node.Line)
	}
	if node.Tag == "!!null" || node.Value == "" {
		*ts = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*ts = parsed
	return nil
}
