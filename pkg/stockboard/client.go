// Package stockboard is a Go client for the stockboard-server HTTP API.
package stockboard

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"stockboard/internal/dashboard"
	"stockboard/internal/httpapi"
)

// Response types shared with the server.
type (
	PriceView       = dashboard.PriceView
	PredictionView  = dashboard.PredictionView
	Card            = dashboard.Card
	ReportsResponse = httpapi.ReportsResponse
	Report          = httpapi.ReportJSON
	HealthResponse  = httpapi.HealthResponse
)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stockboard: %d: %s", e.StatusCode, e.Message)
}

// Client provides a Go SDK for the stockboard-server API.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the server at baseURL, e.g.
// "http://localhost:8080". Throttled and unavailable responses are retried.
func NewClient(baseURL string) *Client {
	c := resty.New()
	c.SetBaseURL(baseURL)
	c.SetTimeout(30 * time.Second)
	c.SetHeader("Accept", "application/json")
	c.SetRetryCount(2)
	c.SetRetryWaitTime(200 * time.Millisecond)
	c.SetRetryMaxWaitTime(2 * time.Second)
	c.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() == http.StatusServiceUnavailable
	})
	return &Client{http: c}
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	var eb errorBody
	req := c.http.R().
		SetContext(ctx).
		SetResult(out).
		SetError(&eb)
	for k, v := range params {
		if v != "" {
			req.SetQueryParam(k, v)
		}
	}
	resp, err := req.Get(path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.IsError() {
		msg := eb.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}
		return &APIError{StatusCode: resp.StatusCode(), Message: msg}
	}
	return nil
}

// Tickers returns the ticker universe.
func (c *Client) Tickers(ctx context.Context) ([]string, error) {
	var out httpapi.TickersResponse
	if err := c.get(ctx, "/api/tickers", nil, &out); err != nil {
		return nil, err
	}
	return out.Tickers, nil
}

// Prices returns the closing-price view of ticker. Empty start and end
// select the server's default range.
func (c *Client) Prices(ctx context.Context, ticker, start, end string) (*PriceView, error) {
	var out PriceView
	params := map[string]string{"start": start, "end": end}
	if err := c.get(ctx, "/api/prices/"+ticker, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Predictions returns the actual-vs-predicted view of ticker. Empty start
// and end leave the range unbounded.
func (c *Client) Predictions(ctx context.Context, ticker, start, end string) (*PredictionView, error) {
	var out PredictionView
	params := map[string]string{"start": start, "end": end}
	if err := c.get(ctx, "/api/predictions/"+ticker, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reports returns recorded reports for ticker, newest first. An empty kind
// returns both kinds; a non-positive limit uses the server default.
func (c *Client) Reports(ctx context.Context, ticker, kind string, limit int) (*ReportsResponse, error) {
	var out ReportsResponse
	params := map[string]string{"kind": kind}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	if err := c.get(ctx, "/api/reports/"+ticker, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health returns the server's dataset status.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.get(ctx, "/healthz", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
