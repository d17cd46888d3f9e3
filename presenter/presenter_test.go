package presenter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreybb/qcdash/models"
)

var eeaSite = models.Capabilities{SubmissionEnabled: true, EEAInstallation: true}

var allStatuses = []models.JobStatus{
	models.JobStatusNone,
	models.JobStatusWaiting,
	models.JobStatusRunning,
	models.JobStatusPartial,
	models.JobStatusOK,
	models.JobStatusFailed,
	models.JobStatusError,
	models.JobStatusExpired,
	models.JobStatusFileNotFound,
}

func decodeRecord(t *testing.T, raw string) models.DeliveryRecord {
	t.Helper()
	var d models.DeliveryRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	return d
}

func submittedAt(raw string) *models.Timestamp {
	return &models.Timestamp{Raw: raw}
}

func TestPresentRunningScenario(t *testing.T) {
	d := decodeRecord(t, `{"id": 7, "filename": "clc2012_cz.zip", "last_job_status": "running", "percent": 42, "date_submitted": null}`)

	v, err := Present(&d, eeaSite)
	require.NoError(t, err)

	assert.Equal(t, "running (42%)", v.StatusLabel)
	assert.Equal(t, StyleNone, v.StatusStyle)
	assert.False(t, v.Actions.QC.Enabled)
	assert.False(t, v.Actions.Delete.Enabled)
	assert.False(t, v.Actions.Submit.Enabled)
	assert.Equal(t, ReasonJobRunning, v.Actions.QC.Reason)
	assert.True(t, v.IsPolling)
}

func TestPresentSubmittedScenario(t *testing.T) {
	d := decodeRecord(t, `{"id": 8, "filename": "a.zip", "last_job_status": "ok", "date_submitted": "2024-01-01", "submission_enabled": true}`)

	v, err := Present(&d, eeaSite)
	require.NoError(t, err)

	assert.Equal(t, LabelSubmitted, v.StatusLabel)
	assert.Equal(t, StyleSuccess, v.StatusStyle)
	assert.Equal(t, disabled(ReasonAlreadySubmitted), v.Actions.QC)
	assert.Equal(t, disabled(ReasonAlreadySubmitted), v.Actions.Delete)
	assert.Equal(t, disabled(ReasonAlreadySubmitted), v.Actions.Submit)
	assert.False(t, v.IsPolling)
}

func TestPresentFileNotFoundScenario(t *testing.T) {
	d := decodeRecord(t, `{"id": "9", "filename": "gone.zip", "last_job_status": "file_not_found"}`)

	v, err := Present(&d, eeaSite)
	require.NoError(t, err)

	assert.Equal(t, LabelFileNotFound, v.StatusLabel)
	assert.Equal(t, StyleDanger, v.StatusStyle)
	assert.True(t, v.Actions.Delete.Enabled)
	assert.Equal(t, disabled(ReasonFileNotFound), v.Actions.QC)
	assert.False(t, v.Actions.Submit.Enabled)
	assert.False(t, v.IsPolling)
}

func TestPresentDecisionTable(t *testing.T) {
	tests := []struct {
		name       string
		status     models.JobStatus
		percent    int
		caps       models.Capabilities
		wantLabel  string
		wantStyle  StatusStyle
		wantQC     bool
		wantDelete bool
		wantSubmit bool
	}{
		{"waiting", models.JobStatusWaiting, 0, eeaSite, LabelWaiting, StyleNone, false, false, false},
		{"running clamps percent", models.JobStatusRunning, 140, eeaSite, "running (100%)", StyleNone, false, false, false},
		{"ok with submission", models.JobStatusOK, 0, eeaSite, LabelPassed, StyleSuccess, true, true, true},
		{"ok without submission", models.JobStatusOK, 0, models.Capabilities{EEAInstallation: true}, LabelPassed, StyleSuccess, true, true, false},
		{"failed", models.JobStatusFailed, 0, eeaSite, "failed", StyleDanger, true, true, false},
		{"error", models.JobStatusError, 0, eeaSite, "error", StyleDanger, true, true, false},
		{"expired", models.JobStatusExpired, 0, eeaSite, "expired", StyleDanger, true, true, false},
		{"partial", models.JobStatusPartial, 0, eeaSite, "partial", StyleDanger, true, true, false},
		{"not checked", models.JobStatusNone, 0, eeaSite, LabelNotChecked, StyleNone, true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := models.DeliveryRecord{ID: "1", Filename: "x.zip", LastJobStatus: tt.status, Percent: tt.percent}
			v, err := Present(&d, tt.caps)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, v.StatusLabel)
			assert.Equal(t, tt.wantStyle, v.StatusStyle)
			assert.Equal(t, tt.wantQC, v.Actions.QC.Enabled, "qc")
			assert.Equal(t, tt.wantDelete, v.Actions.Delete.Enabled, "delete")
			assert.Equal(t, tt.wantSubmit, v.Actions.Submit.Enabled, "submit")
		})
	}
}

func TestPresentPartialRunIsAFailure(t *testing.T) {
	d := decodeRecord(t, `{"id": 9, "filename": "clc2018_at.zip", "last_job_status": "partial", "last_job_uuid": "0f8fad5bd9cb469fa16570867728950e"}`)
	v, err := Present(&d, eeaSite)
	require.NoError(t, err)

	assert.Equal(t, "partial", v.StatusLabel)
	assert.Equal(t, StyleDanger, v.StatusStyle)
	assert.False(t, v.IsPolling)
	assert.True(t, v.Actions.QC.Enabled)
	assert.True(t, v.Actions.Delete.Enabled)
	assert.Equal(t, disabled(ReasonStatusNotOK), v.Actions.Submit)
}

func TestPresentSubmittedDisablesEverything(t *testing.T) {
	for _, status := range allStatuses {
		for _, viaFlag := range []bool{false, true} {
			t.Run(fmt.Sprintf("%q/flag=%v", status, viaFlag), func(t *testing.T) {
				d := models.DeliveryRecord{ID: "1", LastJobStatus: status}
				if viaFlag {
					d.IsSubmitted = true
				} else {
					d.DateSubmitted = submittedAt("2024-01-01T10:00:00Z")
				}
				v, err := Present(&d, eeaSite)
				require.NoError(t, err)
				assert.False(t, v.Actions.QC.Enabled)
				assert.False(t, v.Actions.Delete.Enabled)
				assert.False(t, v.Actions.Submit.Enabled)
			})
		}
	}
}

func TestPresentActiveJobsBlockQCAndDelete(t *testing.T) {
	for _, status := range []models.JobStatus{models.JobStatusWaiting, models.JobStatusRunning} {
		d := models.DeliveryRecord{ID: "1", LastJobStatus: status, Percent: 10}
		v, err := Present(&d, eeaSite)
		require.NoError(t, err)
		assert.False(t, v.Actions.QC.Enabled, status)
		assert.False(t, v.Actions.Delete.Enabled, status)
		assert.True(t, v.IsPolling, status)
	}
}

func TestPresentSubmitOnlyWhenOKUnsubmittedAndEnabled(t *testing.T) {
	capsVariants := []models.Capabilities{
		{SubmissionEnabled: true, EEAInstallation: true},
		{SubmissionEnabled: false, EEAInstallation: true},
		{SubmissionEnabled: true, EEAInstallation: false},
	}
	for _, caps := range capsVariants {
		for _, status := range allStatuses {
			for _, submitted := range []bool{false, true} {
				d := models.DeliveryRecord{ID: "1", LastJobStatus: status, IsSubmitted: submitted}
				v, err := Present(&d, caps)
				require.NoError(t, err)

				want := status == models.JobStatusOK && !submitted && caps.SubmissionEnabled && caps.EEAInstallation
				assert.Equal(t, want, v.Actions.Submit.Enabled, "status=%q submitted=%v caps=%+v", status, submitted, caps)
			}
		}
	}
}

func TestPresentIsIdempotent(t *testing.T) {
	d := decodeRecord(t, `{"id": 3, "last_job_status": "running", "percent": 5, "last_job_uuid": "abc"}`)
	first, err := Present(&d, eeaSite)
	require.NoError(t, err)
	second, err := Present(&d, eeaSite)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPresentRecordCapabilitiesOverrideSite(t *testing.T) {
	d := decodeRecord(t, `{"id": 3, "last_job_status": "ok", "submission_enabled": false}`)
	v, err := Present(&d, eeaSite)
	require.NoError(t, err)
	assert.Equal(t, disabled(ReasonSubmissionOff), v.Actions.Submit)

	d = decodeRecord(t, `{"id": 3, "last_job_status": "ok", "eea_installation": false}`)
	v, err = Present(&d, eeaSite)
	require.NoError(t, err)
	assert.True(t, v.Actions.Submit.Hidden)
	assert.False(t, v.Actions.Submit.Enabled)
}

func TestPresentResultURL(t *testing.T) {
	d := models.DeliveryRecord{ID: "1", LastJobStatus: models.JobStatusFailed, LastJobUUID: "0f8fad5bd9cb469fa16570867728950e"}
	v, err := Present(&d, eeaSite)
	require.NoError(t, err)
	assert.Equal(t, "/result/0f8fad5bd9cb469fa16570867728950e/", v.ResultURL)
}

func TestPresentValidation(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"missing id", `{"filename": "a.zip", "last_job_status": "ok"}`, "id"},
		{"unknown status", `{"id": 4, "last_job_status": "NOT OK"}`, "last_job_status"},
		{"non-string status", `{"id": 4, "last_job_status": 12}`, "last_job_status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := decodeRecord(t, tt.raw)
			_, err := Present(&d, eeaSite)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	_, err := Present(nil, eeaSite)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestRenderActions(t *testing.T) {
	d := models.DeliveryRecord{ID: "11", Filename: "clc2012_cz.zip", ProductIdent: "clc", LastJobStatus: models.JobStatusRunning, Percent: 20}
	v, err := Present(&d, eeaSite)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderActions(&buf, &d, v))
	html := buf.String()

	assert.Contains(t, html, `data-delivery-id="11"`)
	assert.Contains(t, html, `href="/start_job/clc/clc2012_cz.zip/"`)
	assert.Contains(t, html, "Cannot delete this delivery: job running.")
	assert.Equal(t, 3, strings.Count(html, " disabled"))
	assert.Contains(t, html, "Submit to EEA")
}

func TestRenderActionsHidesSubmitOutsideEEA(t *testing.T) {
	d := models.DeliveryRecord{ID: "12", Filename: "a.zip", LastJobStatus: models.JobStatusOK}
	v, err := Present(&d, models.Capabilities{SubmissionEnabled: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderActions(&buf, &d, v))
	assert.NotContains(t, buf.String(), "Submit to EEA")
	assert.NotContains(t, buf.String(), " disabled")
}

func TestRenderActionsEscapesStartJobPath(t *testing.T) {
	d := models.DeliveryRecord{ID: "13", Filename: "a#1?/b.zip", ProductIdent: "clc", LastJobStatus: models.JobStatusOK}
	v, err := Present(&d, eeaSite)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderActions(&buf, &d, v))
	assert.Contains(t, buf.String(), `href="/start_job/clc/a%231%3F%2Fb.zip/"`)
}

func TestPresentJob(t *testing.T) {
	tests := []struct {
		status     models.JobStatus
		wantLabel  string
		wantStyle  StatusStyle
		wantDelete bool
	}{
		{models.JobStatusOK, "ok", StyleSuccess, true},
		{models.JobStatusPartial, "partial", StyleDanger, true},
		{models.JobStatusExpired, "expired", StyleDanger, true},
		{models.JobStatusRunning, "running", StyleNone, false},
		{models.JobStatusWaiting, "waiting", StyleNone, false},
		{models.JobStatusFileNotFound, LabelFileNotFound, StyleDanger, true},
		{models.JobStatusNone, LabelNotChecked, StyleNone, true},
		{models.JobStatus("archived"), "archived", StyleNone, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			v := PresentJob(&models.JobRecord{JobUUID: "0f8fad5bd9cb469fa16570867728950e", JobStatus: tt.status})
			assert.Equal(t, tt.wantLabel, v.StatusLabel)
			assert.Equal(t, tt.wantStyle, v.StatusStyle)
			assert.Equal(t, tt.wantDelete, v.Delete.Enabled)
			assert.Equal(t, "/result/0f8fad5bd9cb469fa16570867728950e/", v.ResultURL)
		})
	}
}
