package stockboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"stockboard/internal/config"
	"stockboard/internal/dataset"
	"stockboard/internal/httpapi"
	"stockboard/internal/store"
)

const pricesCSV = `Date,Ticker,Open,High,Low,Close,Volume
2024-01-02,AAPL,10,11,9,10,1000
2024-01-03,AAPL,20,21,19,20,1000
2024-01-04,AAPL,30,31,29,30,1000
`

const predictionsCSV = `Date,Ticker,Close,Predicted_Close
2024-01-02,AAPL,100,100
2024-01-03,AAPL,102,103
2024-01-04,AAPL,,104
`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	src := &dataset.CSVSource{
		PricesPath:      filepath.Join(dir, "prices.csv"),
		PredictionsPath: filepath.Join(dir, "predictions.csv"),
	}
	if err := os.WriteFile(src.PricesPath, []byte(pricesCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src.PredictionsPath, []byte(predictionsCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		Tickers:  []string{"AAPL", "MSFT"},
		Defaults: config.Defaults{StartDate: "2020-01-01"},
	}
	s := httpapi.NewDashboardServer(cfg, dataset.NewCache(src, nil), store.NewNoopReportStore(), nil, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestClient(t *testing.T) {
	srv := newServer(t)
	c := NewClient(srv.URL)
	ctx := context.Background()

	tickers, err := c.Tickers(ctx)
	if err != nil {
		t.Fatalf("Tickers: %v", err)
	}
	if len(tickers) != 2 || tickers[0] != "AAPL" {
		t.Errorf("tickers = %v", tickers)
	}

	pv, err := c.Prices(ctx, "AAPL", "2024-01-01", "2024-12-31")
	if err != nil {
		t.Fatalf("Prices: %v", err)
	}
	if pv.Empty || len(pv.Cards) != 3 || pv.Cards[1].Display != "$20.00" {
		t.Errorf("price view = %+v", pv)
	}

	qv, err := c.Predictions(ctx, "AAPL", "", "")
	if err != nil {
		t.Fatalf("Predictions: %v", err)
	}
	if qv.Next == nil || qv.Next.Price != 104 {
		t.Errorf("Next = %+v, want 104", qv.Next)
	}
	if qv.Cards[0].Value == nil || *qv.Cards[0].Value != 0.5 {
		t.Errorf("MAE card = %+v, want 0.5", qv.Cards[0])
	}

	empty, err := c.Prices(ctx, "MSFT", "", "")
	if err != nil {
		t.Fatalf("Prices MSFT: %v", err)
	}
	if !empty.Empty || empty.Message != "No data available for MSFT." {
		t.Errorf("MSFT view = %+v, want empty", empty)
	}

	reports, err := c.Reports(ctx, "AAPL", "", 5)
	if err != nil {
		t.Fatalf("Reports: %v", err)
	}
	if reports.Ticker != "AAPL" || len(reports.Reports) != 0 {
		t.Errorf("reports = %+v, want none from the noop store", reports)
	}

	h, err := c.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "ok" || !h.Loaded {
		t.Errorf("health = %+v", h)
	}
}

func TestClientAPIError(t *testing.T) {
	srv := newServer(t)
	c := NewClient(srv.URL)

	_, err := c.Prices(context.Background(), "NFLX", "", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", apiErr.StatusCode)
	}
	if apiErr.Message == "" {
		t.Error("missing error message")
	}

	_, err = c.Prices(context.Background(), "AAPL", "not-a-date", "")
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("err = %v, want 400", err)
	}
}

func TestClientRetriesThrottled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tickers":["AAPL"]}`))
	}))
	defer srv.Close()

	tickers, err := NewClient(srv.URL).Tickers(context.Background())
	if err != nil {
		t.Fatalf("Tickers: %v", err)
	}
	if len(tickers) != 1 || calls.Load() != 2 {
		t.Errorf("tickers = %v after %d calls, want one retry", tickers, calls.Load())
	}
}
