package presenter

import "github.com/coreybb/qcdash/models"

// JobView is how one entry of a delivery's job history is drawn.
type JobView struct {
	StatusLabel string      `json:"status_label"`
	StatusStyle StatusStyle `json:"status_style"`
	ResultURL   string      `json:"result_url,omitempty"`
	Delete      Action      `json:"delete"`
}

// PresentJob maps a job history entry to its JobView. Unlike table rows a
// status outside the vocabulary is shown as sent, since history entries
// carry no actions beyond delete.
func PresentJob(j *models.JobRecord) JobView {
	v := JobView{
		StatusLabel: string(j.JobStatus),
		StatusStyle: StyleNone,
		Delete:      enabled(),
	}
	switch {
	case j.JobStatus == models.JobStatusFileNotFound:
		v.StatusLabel = LabelFileNotFound
		v.StatusStyle = StyleDanger
	case j.JobStatus == models.JobStatusNone:
		v.StatusLabel = LabelNotChecked
	case j.JobStatus == models.JobStatusOK:
		v.StatusStyle = StyleSuccess
	case j.JobStatus.IsFailure():
		v.StatusStyle = StyleDanger
	case j.JobStatus.IsActive():
		v.Delete = disabled(ReasonJobRunning)
	}
	if j.JobUUID != "" {
		v.ResultURL = "/result/" + j.JobUUID + "/"
	}
	return v
}
