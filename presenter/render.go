package presenter

import (
	"html/template"
	"io"
	"net/url"

	"github.com/coreybb/qcdash/models"
)

const actionsTemplate = `<div class="btn-group" data-delivery-id="{{.ID}}">
{{- with .View.Actions.QC}}
<a class="btn btn-sm btn-success" role="button" href="{{$.StartJobURL}}"{{if not .Enabled}} disabled title="Cannot run quality controls for this delivery: {{.Reason}}."{{else}} title="Run quality controls for this delivery."{{end}}>QC</a>
{{- end}}
{{- with .View.Actions.Delete}}
<button class="btn btn-sm {{if .Enabled}}btn-danger delete-button{{else}}btn-default{{end}}" data-action="delete" data-filename="{{$.Filename}}"{{if not .Enabled}} disabled title="Cannot delete this delivery: {{.Reason}}."{{else}} title="Delete this delivery."{{end}}>Delete</button>
{{- end}}
{{- with .View.Actions.Submit}}{{if not .Hidden}}
<button class="btn btn-sm btn-default" data-action="submit" data-filename="{{$.Filename}}"{{if not .Enabled}} disabled title="Delivery cannot be submitted to EEA: {{.Reason}}."{{else}} title="Send the delivery to EEA for approval."{{end}}>Submit to EEA</button>
{{- end}}{{end}}
</div>
`

var actionsTmpl = template.Must(template.New("actions").Parse(actionsTemplate))

type actionsData struct {
	ID          models.DeliveryID
	Filename    string
	StartJobURL string
	View        RowView
}

// RenderActions writes the button group for a row. Markup is driven by the
// Action values only; no decision logic lives in the template.
func RenderActions(w io.Writer, d *models.DeliveryRecord, v RowView) error {
	return actionsTmpl.Execute(w, actionsData{
		ID:          d.ID,
		Filename:    d.Filename,
		StartJobURL: "/start_job/" + url.PathEscape(d.ProductIdent) + "/" + url.PathEscape(d.Filename) + "/",
		View:        v,
	})
}
