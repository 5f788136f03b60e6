// Package store reads the externally produced price and prediction tables
// and persists derived data: columnar per-ticker snapshots of those tables
// and the history of computed dashboard reports.
package store

import (
	"context"

	"stockboard/internal/domain"
)

// TableStore persists and retrieves the price and prediction tables.
type TableStore interface {
	// WritePrices merges rows into storage, replacing rows with the same
	// (ticker, date).
	WritePrices(ctx context.Context, rows []domain.PricePoint) error

	// ReadPrices returns all price rows for ticker sorted by date.
	ReadPrices(ctx context.Context, ticker string) ([]domain.PricePoint, error)

	// WritePredictions merges rows into storage, replacing rows with the
	// same (ticker, date).
	WritePredictions(ctx context.Context, rows []domain.PredictionPoint) error

	// ReadPredictions returns all prediction rows for ticker sorted by date.
	ReadPredictions(ctx context.Context, ticker string) ([]domain.PredictionPoint, error)

	// ListTickers returns the tickers that have price data.
	ListTickers(ctx context.Context) ([]string, error)
}

// ReportStore persists computed dashboard reports.
type ReportStore interface {
	// SaveReport assigns an ID and creation time if missing and stores r.
	SaveReport(ctx context.Context, r *Report) error

	// ListReports returns the most recent reports for ticker, newest first.
	// An empty kind matches every kind.
	ListReports(ctx context.Context, ticker string, kind ReportKind, limit int) ([]Report, error)

	Close() error
}
