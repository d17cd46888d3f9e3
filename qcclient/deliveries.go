package qcclient

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/coreybb/qcdash/models"
)

const (
	pathDeliveryList   = "/data/delivery/list/"
	pathJobUpdate      = "/job/update/"
	pathDeliveryUpdate = "/delivery/update_job/"
	pathDelete         = "/delivery/delete/"
	pathSubmit         = "/delivery/submit/"
	pathSubmitBatch    = "/delivery/submit_batch/"
)

// ListParams are the query parameters understood by the delivery list.
// The zero value asks for the server defaults.
type ListParams struct {
	Search string `json:"search,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Sort   string `json:"sort,omitempty"`
	Order  string `json:"order,omitempty"`
	// Filter is a JSON object of column -> value, passed through verbatim.
	Filter string `json:"filter,omitempty"`
}

// Values encodes p, leaving out empty parameters.
func (p ListParams) Values() url.Values {
	v := url.Values{}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		v.Set("offset", strconv.Itoa(p.Offset))
	}
	if p.Sort != "" {
		v.Set("sort", p.Sort)
	}
	if p.Order != "" {
		v.Set("order", p.Order)
	}
	if p.Filter != "" {
		v.Set("filter", p.Filter)
	}
	return v
}

// ListDeliveries fetches one page of the delivery table.
func (c *Client) ListDeliveries(ctx context.Context, p ListParams) (*models.DeliveryPage, error) {
	var page models.DeliveryPage
	if err := c.getJSON(ctx, pathDeliveryList, p.Values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// JobUpdate fetches the current status of a job by its uuid.
func (c *Client) JobUpdate(ctx context.Context, jobUUID string) (*models.JobUpdate, error) {
	if _, err := uuid.Parse(jobUUID); err != nil {
		return nil, fmt.Errorf("invalid job uuid %q: %w", jobUUID, err)
	}
	var upd models.JobUpdate
	if err := c.getJSON(ctx, pathJobUpdate+url.PathEscape(jobUUID)+"/", nil, &upd); err != nil {
		return nil, err
	}
	return &upd, nil
}

// DeliveryJobUpdate fetches the status of the latest job of a delivery.
func (c *Client) DeliveryJobUpdate(ctx context.Context, id models.DeliveryID) (*models.JobUpdate, error) {
	if id == "" {
		return nil, fmt.Errorf("delivery id cannot be empty")
	}
	var upd models.JobUpdate
	if err := c.getJSON(ctx, pathDeliveryUpdate+url.PathEscape(string(id))+"/", nil, &upd); err != nil {
		return nil, err
	}
	return &upd, nil
}

// FetchUpdate picks the job endpoint when the row knows its job uuid and
// the delivery endpoint otherwise.
func (c *Client) FetchUpdate(ctx context.Context, d *models.DeliveryRecord) (*models.JobUpdate, error) {
	if d.LastJobUUID != "" {
		return c.JobUpdate(ctx, d.LastJobUUID)
	}
	return c.DeliveryJobUpdate(ctx, d.ID)
}

// DeleteDeliveries asks the server to delete the given deliveries.
func (c *Client) DeleteDeliveries(ctx context.Context, ids []models.DeliveryID) (*models.CommandResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no delivery ids to delete")
	}
	form := url.Values{}
	form.Set("ids", joinIDs(ids))

	var res models.CommandResult
	if err := c.postForm(ctx, pathDelete, form, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SubmitDelivery hands one delivery over to EEA.
func (c *Client) SubmitDelivery(ctx context.Context, id models.DeliveryID, filename string) (*models.CommandResult, error) {
	form := url.Values{}
	form.Set("id", string(id))
	form.Set("filename", filename)

	var res models.CommandResult
	if err := c.postForm(ctx, pathSubmit, form, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SubmitBatch hands several deliveries over to EEA in one request.
func (c *Client) SubmitBatch(ctx context.Context, ids []models.DeliveryID, filenames []string) (*models.BatchSubmitResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no delivery ids to submit")
	}
	form := url.Values{}
	form.Set("ids", joinIDs(ids))
	form.Set("filenames", strings.Join(filenames, ","))

	var res models.BatchSubmitResult
	if err := c.postForm(ctx, pathSubmitBatch, form, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func joinIDs(ids []models.DeliveryID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}
