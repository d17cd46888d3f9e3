package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/coreybb/qcdash/models"
	"github.com/coreybb/qcdash/presenter"
	"github.com/coreybb/qcdash/qcclient"
	"github.com/coreybb/qcdash/table"
)

const msgUnreachable = "The QC server could not be reached. Please try again later."

// Backend is the subset of the QC server the command service talks to.
// *qcclient.Client implements it.
type Backend interface {
	DeliveryJobUpdate(ctx context.Context, id models.DeliveryID) (*models.JobUpdate, error)
	DeleteDeliveries(ctx context.Context, ids []models.DeliveryID) (*models.CommandResult, error)
	SubmitDelivery(ctx context.Context, id models.DeliveryID, filename string) (*models.CommandResult, error)
	SubmitBatch(ctx context.Context, ids []models.DeliveryID, filenames []string) (*models.BatchSubmitResult, error)
	CreateJob(ctx context.Context, req models.CreateJobRequest) (*models.CreateJobResult, error)
	RunChecks(ctx context.Context, req models.RunRequest) (*models.CommandResult, error)
	DeleteJobs(ctx context.Context, uuids []string) (*models.CommandResult, error)
}

// Tables is where commands look up the rows they act on and what they
// refresh after a success. *table.Registry implements it.
type Tables interface {
	Find(id models.DeliveryID) (table.Row, bool)
	RefreshHolding(ctx context.Context, ids []models.DeliveryID) error
	Capabilities() models.Capabilities
}

// Outcome is what the dashboard shows in its modal dialog after a command.
type Outcome struct {
	OK      bool     `json:"ok"`
	Title   string   `json:"title"`
	Message string   `json:"message"`
	Failed  []string `json:"failed,omitempty"`
}

// Service sends user commands to the QC server. Every targeted delivery
// passes the row action guard before anything is sent, and a successful
// command refreshes the tables showing it.
type Service struct {
	backend  Backend
	tables   Tables
	sanitize *bluemonday.Policy
}

func NewService(backend Backend, tables Tables) *Service {
	return &Service{
		backend:  backend,
		tables:   tables,
		sanitize: bluemonday.StrictPolicy(),
	}
}

// Delete removes the given deliveries.
func (s *Service) Delete(ctx context.Context, ids []models.DeliveryID) (*Outcome, error) {
	const title = "Delete deliveries"
	if len(ids) == 0 {
		return nil, &RefusedError{Action: "delete", Reason: "no deliveries selected"}
	}
	if _, out, err := s.guard(ctx, title, "delete", ids); out != nil || err != nil {
		return out, err
	}

	res, err := s.backend.DeleteDeliveries(ctx, ids)
	if err != nil {
		return s.failed(title, "delete", err), nil
	}
	return s.finish(ctx, title, res, fmt.Sprintf("%d deliveries have been deleted.", len(ids)), nil, ids), nil
}

// Submit sends one delivery to the EEA.
func (s *Service) Submit(ctx context.Context, id models.DeliveryID) (*Outcome, error) {
	const title = "Submit delivery"
	rows, out, err := s.guard(ctx, title, "submit", []models.DeliveryID{id})
	if out != nil || err != nil {
		return out, err
	}
	row := rows[0]

	res, err := s.backend.SubmitDelivery(ctx, id, row.Record.Filename)
	if err != nil {
		return s.failed(title, "submit", err), nil
	}
	msg := fmt.Sprintf("Delivery %s has been submitted.", displayName(row))
	return s.finish(ctx, title, res, msg, nil, []models.DeliveryID{id}), nil
}

// SubmitBatch sends several deliveries to the EEA. Deliveries the server
// could not submit are listed in the outcome.
func (s *Service) SubmitBatch(ctx context.Context, ids []models.DeliveryID) (*Outcome, error) {
	const title = "Submit deliveries"
	if len(ids) == 0 {
		return nil, &RefusedError{Action: "submit", Reason: "no deliveries selected"}
	}
	rows, out, err := s.guard(ctx, title, "submit", ids)
	if out != nil || err != nil {
		return out, err
	}
	filenames := make([]string, len(rows))
	for i, row := range rows {
		filenames[i] = row.Record.Filename
	}

	res, err := s.backend.SubmitBatch(ctx, ids, filenames)
	if err != nil {
		return s.failed(title, "submit", err), nil
	}
	fallback := fmt.Sprintf("%d of %d deliveries have been submitted.", len(ids)-len(res.Failed), len(ids))
	return s.finish(ctx, title, &res.CommandResult, fallback, res.Failed, ids), nil
}

// RunQC creates QC jobs for the requested deliveries.
func (s *Service) RunQC(ctx context.Context, req models.CreateJobRequest) (*Outcome, error) {
	const title = "Run QC"
	if len(req.DeliveryIDs) == 0 {
		return nil, &RefusedError{Action: "qc", Reason: "no deliveries selected"}
	}
	if strings.TrimSpace(req.ProductIdent) == "" {
		return nil, &RefusedError{Action: "qc", Reason: "no product selected"}
	}
	if _, out, err := s.guard(ctx, title, "qc", req.DeliveryIDs); out != nil || err != nil {
		return out, err
	}

	res, err := s.backend.CreateJob(ctx, req)
	if err != nil {
		return s.failed(title, "create QC jobs", err), nil
	}
	msg := fmt.Sprintf("%d QC jobs have been created.", res.NumCreated)
	return s.finish(ctx, title, &res.CommandResult, msg, nil, req.DeliveryIDs), nil
}

// RunChecks starts a check run for a single file outside the delivery table.
func (s *Service) RunChecks(ctx context.Context, req models.RunRequest) (*Outcome, error) {
	const title = "Run checks"
	if req.ProductIdent == "" || req.Filepath == "" {
		return nil, &RefusedError{Action: "qc", Reason: "product and file are required"}
	}
	res, err := s.backend.RunChecks(ctx, req)
	if err != nil {
		return s.failed(title, "run checks", err), nil
	}
	return s.finish(ctx, title, res, "The check run has been started.", nil, nil), nil
}

// DeleteJobs removes entries from a delivery's job history. The server
// refuses jobs that are still running.
func (s *Service) DeleteJobs(ctx context.Context, uuids []string) (*Outcome, error) {
	const title = "Delete job history"
	if len(uuids) == 0 {
		return nil, &RefusedError{Action: "delete", Reason: "no jobs selected"}
	}
	res, err := s.backend.DeleteJobs(ctx, uuids)
	if err != nil {
		return s.failed(title, "delete jobs", err), nil
	}
	return s.finish(ctx, title, res, fmt.Sprintf("%d jobs deleted successfully.", len(uuids)), nil, nil), nil
}

// guard resolves every id to a row and checks the named action on it. A
// refusal comes back as an error; a lookup the server could not answer
// comes back as a failure outcome.
func (s *Service) guard(ctx context.Context, title, action string, ids []models.DeliveryID) ([]table.Row, *Outcome, error) {
	rows := make([]table.Row, 0, len(ids))
	for _, id := range ids {
		row, err := s.resolve(ctx, id, action)
		if err != nil {
			var unknown *UnknownDeliveryError
			var refused *RefusedError
			if errors.As(err, &unknown) || errors.As(err, &refused) {
				return nil, nil, err
			}
			return nil, s.failed(title, "look up delivery "+string(id), err), nil
		}
		if err := checkAction(row, action); err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil, nil
}

// resolve returns the held row for id. A delivery no table holds is
// rebuilt from its latest job state on the server, so commands for rows
// on pages nobody has loaded pass the same guard.
func (s *Service) resolve(ctx context.Context, id models.DeliveryID, action string) (table.Row, error) {
	if row, ok := s.tables.Find(id); ok {
		return row, nil
	}
	upd, err := s.backend.DeliveryJobUpdate(ctx, id)
	if err != nil {
		if qcclient.IsNotFound(err) {
			return table.Row{}, &UnknownDeliveryError{ID: id}
		}
		return table.Row{}, err
	}
	rec := upd.ApplyTo(models.DeliveryRecord{ID: id})
	view, err := presenter.Present(&rec, s.tables.Capabilities())
	if err != nil {
		return table.Row{}, &RefusedError{Action: action, ID: id, Reason: "job status not recognized"}
	}
	return table.Row{Record: rec, View: view}, nil
}

func checkAction(row table.Row, name string) error {
	a := row.View.ActionFor(name)
	if a.Enabled && !a.Hidden {
		return nil
	}
	return &RefusedError{
		Action:   name,
		ID:       row.Record.ID,
		Filename: row.Record.Filename,
		Reason:   a.Reason,
	}
}

func displayName(row table.Row) string {
	if row.Record.Filename != "" {
		return row.Record.Filename
	}
	return string(row.Record.ID)
}

// failed turns a transport or server error into a failure outcome. Nothing
// is retried.
func (s *Service) failed(title, verb string, err error) *Outcome {
	log.Printf("ERROR (DeliveryService): Failed to %s: %v", verb, err)
	msg, ok := qcclient.ServerMessage(err)
	if !ok || msg == "" {
		msg = msgUnreachable
	}
	return &Outcome{Title: title, Message: s.sanitize.Sanitize(msg)}
}

func (s *Service) finish(ctx context.Context, title string, res *models.CommandResult, fallback string, failed []string, ids []models.DeliveryID) *Outcome {
	out := &Outcome{
		OK:      res.OK(),
		Title:   title,
		Message: s.sanitize.Sanitize(res.Message),
		Failed:  failed,
	}
	if out.Message == "" {
		if out.OK {
			out.Message = fallback
		} else {
			out.Message = "The QC server rejected the request."
		}
	}
	if !out.OK {
		log.Printf("WARN (DeliveryService): %s rejected: %s", title, out.Message)
		return out
	}

	log.Printf("INFO (DeliveryService): %s: %s", title, out.Message)
	if err := s.tables.RefreshHolding(ctx, ids); err != nil {
		log.Printf("WARN (DeliveryService): Table refresh after %q failed: %v", title, err)
	}
	return out
}
