package qcclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/coreybb/qcdash/models"
)

const (
	pathCreateJob   = "/create_job"
	pathRunExecute  = "/run_wps_execute"
	pathProductList = "/data/product_list/"
	pathProduct     = "/data/product/"
	pathJobHistory  = "/data/job_history/"
	pathJobDelete   = "/job/delete/"
)

// CreateJob queues QC jobs for one or more deliveries.
func (c *Client) CreateJob(ctx context.Context, req models.CreateJobRequest) (*models.CreateJobResult, error) {
	if len(req.DeliveryIDs) == 0 {
		return nil, fmt.Errorf("create job: no delivery ids")
	}
	if req.ProductIdent == "" {
		return nil, fmt.Errorf("create job: product ident is required")
	}
	form := url.Values{}
	form.Set("delivery_ids", joinIDs(req.DeliveryIDs))
	form.Set("product_ident", req.ProductIdent)
	form.Set("skip_steps", strings.Join(req.SkipSteps, ","))

	var res models.CreateJobResult
	if err := c.postForm(ctx, pathCreateJob, form, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RunChecks triggers a check run for a single uploaded file.
func (c *Client) RunChecks(ctx context.Context, req models.RunRequest) (*models.CommandResult, error) {
	if req.ProductIdent == "" || req.Filepath == "" {
		return nil, fmt.Errorf("run checks: product ident and filepath are required")
	}
	form := url.Values{}
	form.Set("product_type_name", req.ProductIdent)
	form.Set("filepath", req.Filepath)
	form.Set("optional_check_idents", strings.Join(req.OptionalCheckIdents, ","))

	var res models.CommandResult
	if err := c.postForm(ctx, pathRunExecute, form, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListProducts returns the product types available for checking.
func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	var body struct {
		ProductList []models.Product `json:"product_list"`
	}
	if err := c.getJSON(ctx, pathProductList, nil, &body); err != nil {
		return nil, err
	}
	return body.ProductList, nil
}

// GetProduct returns the check suite of one product type.
func (c *Client) GetProduct(ctx context.Context, ident string) (*models.ProductDetail, error) {
	if ident == "" {
		return nil, fmt.Errorf("product ident cannot be empty")
	}
	var detail models.ProductDetail
	if err := c.getJSON(ctx, pathProduct+url.PathEscape(ident)+"/", nil, &detail); err != nil {
		return nil, err
	}
	if detail.ProductIdent == "" {
		detail.ProductIdent = ident
	}
	return &detail, nil
}

// JobHistory lists every job run for the file of a delivery, newest first.
func (c *Client) JobHistory(ctx context.Context, id models.DeliveryID) ([]models.JobRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("delivery id cannot be empty")
	}
	var jobs []models.JobRecord
	if err := c.getJSON(ctx, pathJobHistory+url.PathEscape(string(id))+"/", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// DeleteJobs removes jobs from the history. The server refuses the whole
// request when one of them is still running.
func (c *Client) DeleteJobs(ctx context.Context, uuids []string) (*models.CommandResult, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("no job uuids to delete")
	}
	for _, u := range uuids {
		if _, err := uuid.Parse(u); err != nil {
			return nil, fmt.Errorf("invalid job uuid %q: %w", u, err)
		}
	}
	form := url.Values{}
	form.Set("uuids", strings.Join(uuids, ","))

	var res models.CommandResult
	if err := c.postForm(ctx, pathJobDelete, form, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
