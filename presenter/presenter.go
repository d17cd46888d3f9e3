// Package presenter derives the display state of a delivery table row.
//
// Present is pure: the same record and capabilities always produce the same
// RowView, so callers may re-run it on every poll without caching.
package presenter

import (
	"fmt"

	"github.com/coreybb/qcdash/models"
)

// StatusStyle is the cell style applied to the status column.
type StatusStyle string

const (
	StyleNone    StatusStyle = "none"
	StyleSuccess StatusStyle = "success"
	StyleDanger  StatusStyle = "danger"
)

const (
	ReasonFileNotFound     = "file not found"
	ReasonJobRunning       = "job running"
	ReasonAlreadySubmitted = "already submitted"
	ReasonStatusNotOK      = "status not ok"
	ReasonSubmissionOff    = "submission disabled"
	ReasonNotEEA           = "not an EEA installation"
)

const (
	LabelFileNotFound = "FILE NOT FOUND"
	LabelWaiting      = "waiting"
	LabelSubmitted    = "submitted"
	LabelPassed       = "passed"
	LabelNotChecked   = "Not checked"
)

// Action is the state of one row button.
type Action struct {
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason,omitempty"`
	// Hidden actions are not offered at all on this installation.
	Hidden bool `json:"hidden,omitempty"`
}

func enabled() Action { return Action{Enabled: true} }

func disabled(reason string) Action { return Action{Reason: reason} }

type Actions struct {
	QC     Action `json:"qc"`
	Delete Action `json:"delete"`
	Submit Action `json:"submit"`
}

// RowView is everything the table needs to draw a row.
type RowView struct {
	Actions     Actions     `json:"actions"`
	StatusLabel string      `json:"status_label"`
	StatusStyle StatusStyle `json:"status_style"`
	IsPolling   bool        `json:"is_polling"`
	ResultURL   string      `json:"result_url,omitempty"`
}

// Present maps a record to its RowView. It fails with *ValidationError for
// a record without id or with a status outside the vocabulary.
func Present(d *models.DeliveryRecord, site models.Capabilities) (RowView, error) {
	if d == nil {
		return RowView{}, &ValidationError{Field: "record", Problem: "is nil"}
	}
	if d.ID == "" {
		return RowView{}, &ValidationError{Field: "id", Problem: "is missing"}
	}
	if !d.LastJobStatus.IsValid() {
		return RowView{}, &ValidationError{
			ID:      d.ID,
			Field:   "last_job_status",
			Problem: fmt.Sprintf("unrecognized value %q", string(d.LastJobStatus)),
		}
	}

	caps := site.Resolve(d)
	submitted := d.Submitted()
	status := d.LastJobStatus

	var v RowView
	switch {
	case status == models.JobStatusFileNotFound:
		v.Actions = Actions{
			QC:     disabled(ReasonFileNotFound),
			Delete: enabled(),
			Submit: disabled(ReasonFileNotFound),
		}
		v.StatusLabel = LabelFileNotFound
		v.StatusStyle = StyleDanger

	case status.IsActive():
		v.Actions = Actions{
			QC:     disabled(ReasonJobRunning),
			Delete: disabled(ReasonJobRunning),
			Submit: disabled(ReasonJobRunning),
		}
		v.StatusLabel = activeLabel(status, d.Percent)
		v.StatusStyle = StyleNone
		v.IsPolling = true

	case submitted:
		v.Actions = Actions{
			QC:     disabled(ReasonAlreadySubmitted),
			Delete: disabled(ReasonAlreadySubmitted),
			Submit: disabled(ReasonAlreadySubmitted),
		}
		v.StatusLabel = LabelSubmitted
		v.StatusStyle = StyleSuccess

	case status == models.JobStatusOK:
		v.Actions = Actions{QC: enabled(), Delete: enabled(), Submit: enabled()}
		if !caps.SubmissionEnabled {
			v.Actions.Submit = disabled(ReasonSubmissionOff)
		}
		v.StatusLabel = LabelPassed
		v.StatusStyle = StyleSuccess

	case status.IsFailure():
		v.Actions = Actions{QC: enabled(), Delete: enabled(), Submit: disabled(ReasonStatusNotOK)}
		v.StatusLabel = string(status)
		v.StatusStyle = StyleDanger

	default:
		v.Actions = Actions{QC: enabled(), Delete: enabled(), Submit: disabled(ReasonStatusNotOK)}
		v.StatusLabel = LabelNotChecked
		v.StatusStyle = StyleNone
	}

	// Submission is terminal whatever the job status says.
	if submitted {
		if v.Actions.Delete.Enabled {
			v.Actions.Delete = disabled(ReasonAlreadySubmitted)
		}
		if v.Actions.Submit.Enabled {
			v.Actions.Submit = disabled(ReasonAlreadySubmitted)
		}
	}

	if !caps.EEAInstallation {
		v.Actions.Submit = Action{Reason: ReasonNotEEA, Hidden: true}
	}

	if d.LastJobUUID != "" {
		v.ResultURL = "/result/" + d.LastJobUUID + "/"
	}
	return v, nil
}

func activeLabel(status models.JobStatus, percent int) string {
	if status == models.JobStatusWaiting {
		return LabelWaiting
	}
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	return fmt.Sprintf("running (%d%%)", percent)
}

// ActionFor returns the state of the named action ("qc", "delete",
// "submit"). Unknown names come back disabled.
func (v RowView) ActionFor(name string) Action {
	switch name {
	case "qc":
		return v.Actions.QC
	case "delete":
		return v.Actions.Delete
	case "submit":
		return v.Actions.Submit
	default:
		return disabled("unknown action")
	}
}
