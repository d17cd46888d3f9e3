package routehandlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/coreybb/qcdash/delivery"
	"github.com/coreybb/qcdash/models"
	"github.com/coreybb/qcdash/webutil"
)

type JobHandler struct {
	Products ProductSource
	Service  *delivery.Service
}

func NewJobHandler(products ProductSource, svc *delivery.Service) *JobHandler {
	return &JobHandler{Products: products, Service: svc}
}

// createJobRequest is sent by the start-job dialog. SelectedChecks are the
// optional checks the user left ticked; everything else optional is skipped.
type createJobRequest struct {
	DeliveryIDs    []models.DeliveryID `json:"delivery_ids"`
	ProductIdent   string              `json:"product_ident"`
	SelectedChecks []string            `json:"selected_checks"`
}

type deleteJobsRequest struct {
	UUIDs []string `json:"uuids"`
}

type runChecksRequest struct {
	ProductIdent   string   `json:"product_ident"`
	Filepath       string   `json:"filepath"`
	SelectedChecks []string `json:"selected_checks"`
}

func (h *JobHandler) HandleCreateJob(w http.ResponseWriter, r *http.Request) error {
	var req createJobRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return webutil.ErrBadRequest("Invalid request payload: " + err.Error())
	}
	defer r.Body.Close()

	if len(req.DeliveryIDs) == 0 || req.ProductIdent == "" {
		return webutil.ErrBadRequest("Missing required fields (delivery_ids, product_ident)")
	}
	if !productIdentPattern.MatchString(req.ProductIdent) {
		return webutil.ErrBadRequest("Invalid product ident")
	}

	detail, err := h.Products.GetProduct(r.Context(), req.ProductIdent)
	if err != nil {
		return fmt.Errorf("failed to retrieve product %s: %w", req.ProductIdent, err)
	}
	if err := checkSelection(detail, req.SelectedChecks); err != nil {
		return err
	}

	out, err := h.Service.RunQC(r.Context(), models.CreateJobRequest{
		DeliveryIDs:  req.DeliveryIDs,
		ProductIdent: req.ProductIdent,
		SkipSteps:    detail.SkippedChecks(req.SelectedChecks),
	})
	return respondOutcome(w, out, err)
}

// HandleRunChecks runs a product's checks on one uploaded file.
func (h *JobHandler) HandleRunChecks(w http.ResponseWriter, r *http.Request) error {
	var req runChecksRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return webutil.ErrBadRequest("Invalid request payload: " + err.Error())
	}
	defer r.Body.Close()

	if req.ProductIdent == "" || req.Filepath == "" {
		return webutil.ErrBadRequest("Missing required fields (product_ident, filepath)")
	}
	if !productIdentPattern.MatchString(req.ProductIdent) {
		return webutil.ErrBadRequest("Invalid product ident")
	}

	detail, err := h.Products.GetProduct(r.Context(), req.ProductIdent)
	if err != nil {
		return fmt.Errorf("failed to retrieve product %s: %w", req.ProductIdent, err)
	}
	if err := checkSelection(detail, req.SelectedChecks); err != nil {
		return err
	}

	out, err := h.Service.RunChecks(r.Context(), models.RunRequest{
		ProductIdent:        req.ProductIdent,
		Filepath:            req.Filepath,
		OptionalCheckIdents: req.SelectedChecks,
	})
	return respondOutcome(w, out, err)
}

// HandleDeleteJobs removes entries from a delivery's job history.
func (h *JobHandler) HandleDeleteJobs(w http.ResponseWriter, r *http.Request) error {
	var req deleteJobsRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return webutil.ErrBadRequest("Invalid request payload: " + err.Error())
	}
	defer r.Body.Close()

	if len(req.UUIDs) == 0 {
		return webutil.ErrBadRequest("Missing required field (uuids)")
	}
	for _, u := range req.UUIDs {
		if _, err := uuid.Parse(u); err != nil {
			return webutil.ErrBadRequest(fmt.Sprintf("Invalid job uuid %q", u))
		}
	}

	out, err := h.Service.DeleteJobs(r.Context(), req.UUIDs)
	return respondOutcome(w, out, err)
}

// checkSelection rejects selected checks that are not optional checks of
// the product.
func checkSelection(detail *models.ProductDetail, selected []string) error {
	optional := make(map[string]bool)
	for _, ident := range detail.OptionalChecks() {
		optional[ident] = true
	}
	var unknown []string
	for _, s := range selected {
		if !optional[strings.TrimSpace(s)] {
			unknown = append(unknown, s)
		}
	}
	if len(unknown) > 0 {
		return webutil.ErrUnprocessableEntity("Not optional checks of this product: " + strings.Join(unknown, ", "))
	}
	return nil
}
