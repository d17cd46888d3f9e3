package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// JobStatus is the status of the most recent QC job of a delivery.
type JobStatus string

const (
	JobStatusNone         JobStatus = ""
	JobStatusWaiting      JobStatus = "waiting"
	JobStatusRunning      JobStatus = "running"
	JobStatusPartial      JobStatus = "partial"
	JobStatusOK           JobStatus = "ok"
	JobStatusFailed       JobStatus = "failed"
	JobStatusError        JobStatus = "error"
	JobStatusExpired      JobStatus = "expired"
	JobStatusFileNotFound JobStatus = "file_not_found"
)

// UnmarshalJSON never fails: null and "none" map to JobStatusNone and any
// non-string value is kept verbatim so validation can reject the row
// instead of the whole page.
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = JobStatusNone
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		*s = JobStatus(data)
		return nil
	}
	*s = normalizeJobStatus(raw)
	return nil
}

func normalizeJobStatus(raw string) JobStatus {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "none" {
		return JobStatusNone
	}
	return JobStatus(v)
}

// IsValid reports whether s is part of the status vocabulary.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusNone, JobStatusWaiting, JobStatusRunning, JobStatusPartial,
		JobStatusOK, JobStatusFailed, JobStatusError, JobStatusExpired, JobStatusFileNotFound:
		return true
	default:
		return false
	}
}

// IsActive reports whether a job is queued or executing.
func (s JobStatus) IsActive() bool {
	return s == JobStatusWaiting || s == JobStatusRunning
}

// IsFailure reports whether the last job ended without a passing result.
// A partial run stopped before every check finished.
func (s JobStatus) IsFailure() bool {
	switch s {
	case JobStatusPartial, JobStatusFailed, JobStatusError, JobStatusExpired:
		return true
	default:
		return false
	}
}

// JobUpdate is the body of /job/update/<uuid>/ and /delivery/update_job/<id>/.
type JobUpdate struct {
	ID            DeliveryID `json:"id"`
	LastJobStatus JobStatus  `json:"last_job_status"`
	LastJobUUID   string     `json:"last_job_uuid,omitempty"`
	Percent       int        `json:"percent,omitempty"`
	DateSubmitted *Timestamp `json:"date_submitted,omitempty"`
	IsSubmitted   bool       `json:"is_submitted,omitempty"`
}

// ApplyTo returns a copy of d carrying the job fields of u. Identity and
// display fields stay as loaded.
func (u *JobUpdate) ApplyTo(d DeliveryRecord) DeliveryRecord {
	d.LastJobStatus = u.LastJobStatus
	if u.LastJobUUID != "" {
		d.LastJobUUID = u.LastJobUUID
	}
	d.Percent = u.Percent
	if !u.DateSubmitted.IsZero() {
		d.DateSubmitted = u.DateSubmitted
	}
	if u.IsSubmitted {
		d.IsSubmitted = true
	}
	return d
}

// JobRecord is one entry of /data/job_history/<id>/: a QC job run for the
// delivery's file, newest first.
type JobRecord struct {
	JobUUID      string     `json:"job_uuid"`
	DeliveryID   DeliveryID `json:"delivery_id"`
	ProductIdent string     `json:"product_ident,omitempty"`
	JobStatus    JobStatus  `json:"job_status"`
	DateCreated  *Timestamp `json:"date_created,omitempty"`
	DateStarted  *Timestamp `json:"date_started,omitempty"`
	DateFinished *Timestamp `json:"date_finished,omitempty"`
}
