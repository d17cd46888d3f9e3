package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/araddon/dateparse"
)

// Timestamp holds a server-supplied date. Raw keeps the original text so a
// value in an unexpected layout still counts as present.
type Timestamp struct {
	Raw  string
	Time time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Unix seconds show up from some API revisions.
		var n json.Number
		if numErr := json.Unmarshal(data, &n); numErr != nil {
			return err
		}
		s = n.String()
	}
	*t = Timestamp{Raw: s}
	if s == "" {
		return nil
	}
	if parsed, err := dateparse.ParseIn(s, time.UTC); err == nil {
		t.Time = parsed.UTC()
	}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() {
		return json.Marshal(t.Raw)
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// IsZero reports whether no value was supplied. Safe on a nil receiver.
func (t *Timestamp) IsZero() bool {
	return t == nil || t.Raw == ""
}

// Format renders the time with layout, falling back to the raw text.
func (t *Timestamp) Format(layout string) string {
	if t.IsZero() {
		return ""
	}
	if t.Time.IsZero() {
		return t.Raw
	}
	return t.Time.Format(layout)
}
