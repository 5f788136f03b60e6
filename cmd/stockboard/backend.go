package main

import (
	"context"
	"fmt"
	"time"

	"stockboard/internal/config"
	"stockboard/internal/dashboard"
	"stockboard/internal/dataset"
	"stockboard/internal/domain"
	"stockboard/internal/httpapi"
	"stockboard/internal/store"
	"stockboard/pkg/stockboard"
)

// backend answers CLI queries either from local files or from a server.
type backend interface {
	Prices(ctx context.Context, ticker, start, end string) (*dashboard.PriceView, error)
	Predictions(ctx context.Context, ticker, start, end string) (*dashboard.PredictionView, error)
	Reports(ctx context.Context, ticker, kind string, limit int) (*httpapi.ReportsResponse, error)
}

var (
	_ backend = (*stockboard.Client)(nil)
	_ backend = (*localBackend)(nil)
)

// openBackend returns the backend selected by --server and a function that
// releases it.
func openBackend(opts *options) (backend, func(), error) {
	if opts.serverURL != "" {
		return stockboard.NewClient(opts.serverURL), func() {}, nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	src, err := dataset.NewSource(cfg.Data)
	if err != nil {
		return nil, nil, err
	}
	reports, err := store.OpenReportStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	b := &localBackend{cfg: cfg, cache: dataset.NewCache(src, nil), reports: reports}
	return b, func() { reports.Close() }, nil
}

// localBackend computes views directly from the configured data source.
type localBackend struct {
	cfg     *config.Config
	cache   *dataset.Cache
	reports store.ReportStore
}

func (b *localBackend) ticker(s string) (string, error) {
	t := domain.NormalizeTicker(s)
	if !b.cfg.HasTicker(t) {
		return "", fmt.Errorf("unknown ticker %q (configured: %v)", t, b.cfg.Tickers)
	}
	return t, nil
}

func (b *localBackend) Prices(ctx context.Context, ticker, start, end string) (*dashboard.PriceView, error) {
	ticker, err := b.ticker(ticker)
	if err != nil {
		return nil, err
	}
	rng, err := dashboard.PriceRange(start, end, b.cfg.Defaults.StartDate, time.Now())
	if err != nil {
		return nil, err
	}
	rows, version, err := b.cache.Prices(ctx, ticker, rng)
	if err != nil {
		return nil, err
	}
	return dashboard.BuildPriceView(ticker, rng, rows, version)
}

func (b *localBackend) Predictions(ctx context.Context, ticker, start, end string) (*dashboard.PredictionView, error) {
	ticker, err := b.ticker(ticker)
	if err != nil {
		return nil, err
	}
	rng, err := domain.ParseDateRange(start, end)
	if err != nil {
		return nil, err
	}
	rows, version, err := b.cache.Predictions(ctx, ticker, rng)
	if err != nil {
		return nil, err
	}
	return dashboard.BuildPredictionView(ticker, rng, rows, version)
}

func (b *localBackend) Reports(ctx context.Context, ticker, kind string, limit int) (*httpapi.ReportsResponse, error) {
	ticker, err := b.ticker(ticker)
	if err != nil {
		return nil, err
	}
	k := store.ReportKind(kind)
	if k != "" && !k.Valid() {
		return nil, fmt.Errorf("invalid kind %q", kind)
	}
	reports, err := b.reports.ListReports(ctx, ticker, k, limit)
	if err != nil {
		return nil, err
	}
	resp := &httpapi.ReportsResponse{Ticker: ticker, Kind: kind, Reports: make([]httpapi.ReportJSON, 0, len(reports))}
	for _, r := range reports {
		resp.Reports = append(resp.Reports, httpapi.NewReportJSON(r))
	}
	return resp, nil
}
