package scheduler

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stockboard/internal/dataset"
	"stockboard/internal/store"
)

const pricesCSV = `Date,Ticker,Open,High,Low,Close,Volume
2024-01-02,AAPL,10,11,9,10,1000
2024-01-03,AAPL,20,21,19,20,1000
2024-01-02,MSFT,300,310,295,305,2000
`

const predictionsCSV = `Date,Ticker,Close,Predicted_Close
2024-01-02,AAPL,100,100
2024-01-03,AAPL,102,101
2024-01-04,AAPL,,104
2024-01-03,MSFT,,310
`

func setup(t *testing.T) (*dataset.Cache, *dataset.CSVSource, store.ReportStore) {
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
	reports, err := store.NewSQLiteReportStore(filepath.Join(dir, "reports.db"))
	if err != nil {
		t.Fatalf("NewSQLiteReportStore: %v", err)
	}
	t.Cleanup(func() { reports.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return dataset.NewCache(src, logger), src, reports
}

func TestRegister(t *testing.T) {
	cache, _, reports := setup(t)
	ctx := context.Background()

	s := New(ctx, cache, reports, []string{"AAPL"}, nil)
	if err := s.Register("0 */5 * * * *", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if s.Jobs() != 1 {
		t.Errorf("Jobs = %d, want 1", s.Jobs())
	}

	bad := New(ctx, cache, reports, []string{"AAPL"}, nil)
	if err := bad.Register("every five minutes", ""); err == nil {
		t.Error("expected error for invalid cron spec")
	}
	// Five-field specs lack the seconds column.
	if err := bad.Register("", "30 22 * * 1-5"); err == nil {
		t.Error("expected error for five-field spec")
	}
}

func TestSnapshotNow(t *testing.T) {
	cache, _, reports := setup(t)
	ctx := context.Background()
	s := New(ctx, cache, reports, []string{"AAPL", "MSFT", "TSLA"}, nil)

	n, err := s.SnapshotNow(ctx)
	if err != nil {
		t.Fatalf("SnapshotNow: %v", err)
	}
	// AAPL: prices + predictions. MSFT: prices only (a lone future row).
	// TSLA: nothing.
	if n != 3 {
		t.Errorf("recorded %d reports, want 3", n)
	}

	aapl, err := reports.ListReports(ctx, "AAPL", store.ReportPredictions, 10)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(aapl) != 1 {
		t.Fatalf("got %d AAPL prediction reports, want 1", len(aapl))
	}
	r := aapl[0]
	if r.MeanAbsoluteError == nil || *r.MeanAbsoluteError != 0.5 {
		t.Errorf("MAE = %v, want 0.5", r.MeanAbsoluteError)
	}
	if r.NextPrice == nil || *r.NextPrice != 104 {
		t.Errorf("NextPrice = %v, want 104", r.NextPrice)
	}
	if r.Count != 2 {
		t.Errorf("Count = %d, want 2", r.Count)
	}

	msft, err := reports.ListReports(ctx, "MSFT", "", 10)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(msft) != 1 || msft[0].Kind != store.ReportPrices {
		t.Errorf("MSFT reports = %+v, want one price report", msft)
	}
}

func TestSnapshotTickerWithoutHistory(t *testing.T) {
	cache, _, reports := setup(t)
	ctx := context.Background()
	s := New(ctx, cache, reports, []string{"TSLA"}, nil)

	for _, ticker := range []string{"TSLA", "MSFT"} {
		n, err := s.snapshotTicker(ctx, ticker)
		if err != nil {
			t.Fatalf("snapshotTicker(%s): %v", ticker, err)
		}
		want := 0
		if ticker == "MSFT" {
			want = 1 // prices only; its single prediction row is in the future
		}
		if n != want {
			t.Errorf("snapshotTicker(%s) = %d, want %d", ticker, n, want)
		}
	}
	tsla, err := reports.ListReports(ctx, "TSLA", "", 10)
	if err != nil || len(tsla) != 0 {
		t.Errorf("TSLA reports = %d, %v; want none", len(tsla), err)
	}
}

func TestSnapshotNowLoadError(t *testing.T) {
	cache, src, reports := setup(t)
	if err := os.Remove(src.PricesPath); err != nil {
		t.Fatal(err)
	}
	s := New(context.Background(), cache, reports, []string{"AAPL"}, nil)
	if _, err := s.SnapshotNow(context.Background()); err == nil {
		t.Error("expected error when the prices file is missing")
	}
}

func TestRefreshNow(t *testing.T) {
	cache, src, reports := setup(t)
	ctx := context.Background()
	s := New(ctx, cache, reports, []string{"AAPL"}, nil)

	changed, err := s.RefreshNow(ctx)
	if err != nil || !changed {
		t.Fatalf("first RefreshNow = %v, %v; want initial load", changed, err)
	}
	changed, err = s.RefreshNow(ctx)
	if err != nil || changed {
		t.Errorf("second RefreshNow = %v, %v; want no change", changed, err)
	}

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(src.PredictionsPath, later, later); err != nil {
		t.Fatal(err)
	}
	changed, err = s.RefreshNow(ctx)
	if err != nil || !changed {
		t.Errorf("RefreshNow after touch = %v, %v; want reload", changed, err)
	}
}

func TestStartStop(t *testing.T) {
	cache, _, reports := setup(t)
	s := New(context.Background(), cache, reports, nil, nil)
	if err := s.Register("* * * * * *", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	s.Start()
	time.Sleep(1100 * time.Millisecond)
	s.Stop()

	if !cache.Stats().Loaded {
		t.Error("refresh job should have loaded the dataset")
	}
}
