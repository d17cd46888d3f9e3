package routehandlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/coreybb/qcdash/delivery"
	"github.com/coreybb/qcdash/models"
	"github.com/coreybb/qcdash/presenter"
	"github.com/coreybb/qcdash/qcclient"
	"github.com/coreybb/qcdash/table"
	"github.com/coreybb/qcdash/webutil"
)

// JobHistorySource lists the jobs run for a delivery.
// *qcclient.Client implements it.
type JobHistorySource interface {
	JobHistory(ctx context.Context, id models.DeliveryID) ([]models.JobRecord, error)
}

type DeliveryHandler struct {
	Tables  *table.Registry
	Service *delivery.Service
	Jobs    JobHistorySource
}

func NewDeliveryHandler(tables *table.Registry, svc *delivery.Service, jobs JobHistorySource) *DeliveryHandler {
	return &DeliveryHandler{Tables: tables, Service: svc, Jobs: jobs}
}

type deliveryIDsRequest struct {
	IDs []models.DeliveryID `json:"ids"`
}

// deliveryListResponse mirrors the {total, rows} shape of the QC server list
// with each row carrying its presented view.
type deliveryListResponse struct {
	Total   int         `json:"total"`
	Skipped int         `json:"skipped,omitempty"`
	Rows    []table.Row `json:"rows"`
}

// parseListParams reads the table query parameters. Limit and offset must
// be non-negative integers when present.
func parseListParams(r *http.Request) (qcclient.ListParams, error) {
	q := r.URL.Query()
	p := qcclient.ListParams{
		Search: strings.TrimSpace(q.Get("search")),
		Sort:   q.Get("sort"),
		Order:  strings.ToLower(q.Get("order")),
		Filter: q.Get("filter"),
	}
	for name, dst := range map[string]*int{"limit": &p.Limit, "offset": &p.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, fmt.Errorf("invalid %s value %q", name, raw)
		}
		*dst = n
	}
	if p.Order != "" && p.Order != "asc" && p.Order != "desc" {
		return p, fmt.Errorf("invalid order value %q", p.Order)
	}
	return p, nil
}

// HandleGetDeliveries returns the presented table for the requested query.
// Each query has its own table; the QC server is only asked again when
// that table has nothing for the query, was invalidated by a command, or
// refresh=1.
func (h *DeliveryHandler) HandleGetDeliveries(w http.ResponseWriter, r *http.Request) error {
	params, err := parseListParams(r)
	if err != nil {
		return webutil.ErrBadRequest(err.Error())
	}

	snap, err := h.Tables.Load(r.Context(), params, r.URL.Query().Get("refresh") == "1")
	if err != nil {
		return webutil.NewHTTPErrorWrap(http.StatusBadGateway, "Failed to load deliveries", err)
	}

	rows := snap.Rows
	if rows == nil {
		rows = []table.Row{}
	}
	return webutil.RespondWithETag(w, r, deliveryListResponse{
		Total:   snap.Total,
		Skipped: snap.Skipped,
		Rows:    rows,
	})
}

func (h *DeliveryHandler) HandleGetDelivery(w http.ResponseWriter, r *http.Request) error {
	row, err := h.heldRow(r)
	if err != nil {
		return err
	}
	webutil.RespondWithJSON(w, http.StatusOK, row)
	return nil
}

// HandleGetDeliveryActions renders the action buttons of one row as an
// HTML fragment.
func (h *DeliveryHandler) HandleGetDeliveryActions(w http.ResponseWriter, r *http.Request) error {
	row, err := h.heldRow(r)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := presenter.RenderActions(&buf, &row.Record, row.View); err != nil {
		return webutil.ErrInternalServerWrap("failed to render actions for delivery "+string(row.Record.ID), err)
	}
	w.Header().Set(webutil.HeaderContentType, webutil.ContentTypeHTMLUTF8)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
	return nil
}

type jobHistoryEntry struct {
	Job  models.JobRecord  `json:"job"`
	View presenter.JobView `json:"view"`
}

type jobHistoryResponse struct {
	DeliveryID models.DeliveryID `json:"delivery_id"`
	Jobs       []jobHistoryEntry `json:"jobs"`
}

// HandleGetJobHistory lists the jobs run for a delivery, newest first.
func (h *DeliveryHandler) HandleGetJobHistory(w http.ResponseWriter, r *http.Request) error {
	id := models.DeliveryID(chi.URLParam(r, "id"))
	if id == "" {
		return webutil.ErrBadRequest("Missing delivery ID")
	}

	jobs, err := h.Jobs.JobHistory(r.Context(), id)
	if err != nil {
		return fmt.Errorf("failed to retrieve job history for delivery %s: %w", id, err)
	}

	resp := jobHistoryResponse{DeliveryID: id, Jobs: make([]jobHistoryEntry, 0, len(jobs))}
	for i := range jobs {
		resp.Jobs = append(resp.Jobs, jobHistoryEntry{Job: jobs[i], View: presenter.PresentJob(&jobs[i])})
	}
	webutil.RespondWithJSON(w, http.StatusOK, resp)
	return nil
}

func (h *DeliveryHandler) HandleDeleteDeliveries(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeIDs(r)
	if err != nil {
		return err
	}
	out, err := h.Service.Delete(r.Context(), req.IDs)
	return respondOutcome(w, out, err)
}

func (h *DeliveryHandler) HandleSubmitDelivery(w http.ResponseWriter, r *http.Request) error {
	id := models.DeliveryID(chi.URLParam(r, "id"))
	if id == "" {
		return webutil.ErrBadRequest("Missing delivery ID")
	}
	out, err := h.Service.Submit(r.Context(), id)
	return respondOutcome(w, out, err)
}

func (h *DeliveryHandler) HandleSubmitBatch(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeIDs(r)
	if err != nil {
		return err
	}
	out, err := h.Service.SubmitBatch(r.Context(), req.IDs)
	return respondOutcome(w, out, err)
}

func (h *DeliveryHandler) heldRow(r *http.Request) (table.Row, error) {
	id := models.DeliveryID(chi.URLParam(r, "id"))
	if id == "" {
		return table.Row{}, webutil.ErrBadRequest("Missing delivery ID")
	}
	row, ok := h.Tables.Find(id)
	if !ok {
		return table.Row{}, webutil.ErrNotFound("Delivery not found")
	}
	return row, nil
}

func decodeIDs(r *http.Request) (deliveryIDsRequest, error) {
	var req deliveryIDsRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return req, webutil.ErrBadRequest("Invalid request payload: " + err.Error())
	}
	defer r.Body.Close()

	if len(req.IDs) == 0 {
		return req, webutil.ErrBadRequest("Missing required field (ids)")
	}
	for _, id := range req.IDs {
		if id == "" {
			return req, webutil.ErrBadRequest("Empty delivery ID in ids")
		}
	}
	return req, nil
}

// respondOutcome writes the modal payload of a command. Refused and unknown
// deliveries are client errors; a command the server rejected is still a
// 200 with ok=false so the page can show the dialog.
func respondOutcome(w http.ResponseWriter, out *delivery.Outcome, err error) error {
	var refused *delivery.RefusedError
	var unknown *delivery.UnknownDeliveryError
	switch {
	case errors.As(err, &refused):
		return webutil.ErrConflictWrap(capitalize(refused.Error())+".", err)
	case errors.As(err, &unknown):
		return webutil.ErrNotFoundWrap("Delivery not found", err)
	case err != nil:
		return err
	}
	webutil.RespondWithJSON(w, http.StatusOK, out)
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
