package cetus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/starford/cetus/internal/apperr"
	"github.com/starford/cetus/internal/models"
)

// AlertFilter selects which alert definitions ListAlerts returns.
type AlertFilter struct {
	Owned  bool
	Shared bool
	Type   string // raw, terms or structured; empty for all
}

// AlertTypes lists the alert definition kinds.
var AlertTypes = []string{"raw", "terms", "structured"}

// ListAlerts returns alert definitions visible to the caller.
func (c *Client) ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, error) {
	params := url.Values{}
	if f.Owned {
		params.Set("owned", "true")
	}
	if f.Shared {
		params.Set("shared", "true")
	}
	if f.Type != "" {
		params.Set("type_filter", f.Type)
	}
	params.Set("length", "1000")

	var resp struct {
		Data []models.Alert `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/alerts/api/unified/", params, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetAlert returns one alert definition including its full query. A missing
// alert yields an error matching apperr.ErrNotFound.
func (c *Client) GetAlert(ctx context.Context, id int) (*models.Alert, error) {
	var resp struct {
		models.Alert
		FullQuery string `json:"query"`
	}
	err := c.do(ctx, http.MethodGet, "/alerts/api/unified/"+strconv.Itoa(id)+"/", nil, nil, &resp)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("alert %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	a := resp.Alert
	if resp.FullQuery != "" {
		a.Query = resp.FullQuery
	}
	return &a, nil
}

// AlertResults returns the stored matches of an alert, optionally only
// those since an ISO-8601 timestamp.
func (c *Client) AlertResults(ctx context.Context, id int, since string) ([]models.Record, error) {
	params := url.Values{}
	if since != "" {
		params.Set("since", since)
	}
	var resp struct {
		Data []models.Record `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/alert_results/"+strconv.Itoa(id), params, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
