package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DeliveryID is the primary key of a delivery. The QC server emits it as a
// JSON number; strings are accepted too.
type DeliveryID string

func (id *DeliveryID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = DeliveryID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("delivery id must be a number or string: %w", err)
	}
	*id = DeliveryID(n.String())
	return nil
}

// MarshalJSON writes integer ids back as numbers so the browser sees the
// same shape the QC server produced. Only the canonical decimal form is
// written bare; "007" or "+5" stay strings.
func (id DeliveryID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// DeliveryRecord mirrors one row of /data/delivery/list/. It is never
// mutated locally except by applying a JobUpdate fetched from the server.
type DeliveryRecord struct {
	ID                 DeliveryID `json:"id"`
	Filename           string     `json:"filename"`
	ProductIdent       string     `json:"product_ident,omitempty"`
	ProductDescription string     `json:"product_description,omitempty"`
	Username           string     `json:"username,omitempty"`
	Type               string     `json:"type,omitempty"` // "local" or "s3"
	SizeBytes          int64      `json:"size_bytes,omitempty"`
	DateUploaded       *Timestamp `json:"date_uploaded,omitempty"`

	LastJobStatus JobStatus `json:"last_job_status"`
	LastJobUUID   string    `json:"last_job_uuid,omitempty"`
	Percent       int       `json:"percent,omitempty"`

	DateSubmitted *Timestamp `json:"date_submitted,omitempty"`
	IsSubmitted   bool       `json:"is_submitted,omitempty"`

	// Per-record capability flags. Nil means "use the site-level value".
	SubmissionEnabled *bool `json:"submission_enabled,omitempty"`
	EEAInstallation   *bool `json:"eea_installation,omitempty"`
}

// Submitted reports whether the delivery has been handed to the downstream
// approval system. Presence of date_submitted is enough, even when the
// value itself could not be parsed.
func (d *DeliveryRecord) Submitted() bool {
	return d.IsSubmitted || !d.DateSubmitted.IsZero()
}

// Capabilities are the site-level switches gating the submit action.
type Capabilities struct {
	SubmissionEnabled bool `json:"submission_enabled"`
	EEAInstallation   bool `json:"eea_installation"`
}

// Resolve returns the effective capabilities for a record: per-record flags
// override the site defaults when present.
func (c Capabilities) Resolve(d *DeliveryRecord) Capabilities {
	out := c
	if d.SubmissionEnabled != nil {
		out.SubmissionEnabled = *d.SubmissionEnabled
	}
	if d.EEAInstallation != nil {
		out.EEAInstallation = *d.EEAInstallation
	}
	return out
}

// DeliveryPage is the paginated response of the list endpoint.
type DeliveryPage struct {
	Total int              `json:"total"`
	Rows  []DeliveryRecord `json:"rows"`
}
