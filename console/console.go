// Package console renders dashboard state for a terminal.
package console

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/coreybb/qcdash/presenter"
	"github.com/coreybb/qcdash/qcclient"
	"github.com/coreybb/qcdash/table"
)

const dateLayout = "2006-01-02 15:04"

var headers = []string{"ID", "Filename", "Product", "Uploaded", "Status", "QC", "Delete", "Submit"}

// WriteDeliveries prints rows as a table followed by a paging summary.
func WriteDeliveries(w io.Writer, rows []table.Row, total int) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetAutoWrapText(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)

	for _, r := range rows {
		tw.Append([]string{
			string(r.Record.ID),
			r.Record.Filename,
			r.Record.ProductIdent,
			r.Record.DateUploaded.Format(dateLayout),
			r.View.StatusLabel,
			actionCell(r.View.Actions.QC),
			actionCell(r.View.Actions.Delete),
			actionCell(r.View.Actions.Submit),
		})
	}
	tw.Render()
	fmt.Fprintf(w, "Showing %d of %d deliveries\n", len(rows), total)
}

func actionCell(a presenter.Action) string {
	switch {
	case a.Hidden:
		return "-"
	case a.Enabled:
		return "yes"
	case a.Reason != "":
		return "no (" + a.Reason + ")"
	default:
		return "no"
	}
}

// WriteProgress redraws a single upload progress line.
func WriteProgress(w io.Writer, p qcclient.Progress) {
	fmt.Fprintf(w, "\rUploading %s: %3d%% (chunk %d/%d)", p.Filename, p.Percent(), p.Chunk, p.Chunks)
	if p.Chunk == p.Chunks {
		fmt.Fprintln(w)
	}
}
