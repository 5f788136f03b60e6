package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"stockboard/internal/domain"
)

// Compile-time interface check.
var _ TableStore = (*ParquetStore)(nil)

// ParquetStore implements TableStore using one Parquet file per ticker and
// table on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// PriceRecord is the Parquet schema for daily price history.
type PriceRecord struct {
	Ticker      string  `parquet:"ticker"`
	Date        int64   `parquet:"date,timestamp(millisecond)"` // Unix ms, UTC midnight
	Open        float64 `parquet:"open"`
	High        float64 `parquet:"high"`
	Low         float64 `parquet:"low"`
	Close       float64 `parquet:"close"`
	Volume      int64   `parquet:"volume"`
	CompanyName string  `parquet:"company_name"`
	Sector      string  `parquet:"sector"`
}

// PredictionRecord is the Parquet schema for model predictions. A nil
// ActualClose marks the unrealized future row.
type PredictionRecord struct {
	Ticker         string   `parquet:"ticker"`
	Date           int64    `parquet:"date,timestamp(millisecond)"` // Unix ms, UTC midnight
	ActualClose    *float64 `parquet:"actual_close,optional"`
	PredictedClose float64  `parquet:"predicted_close"`
}

// ---------------------------------------------------------------------------
// Prices
// ---------------------------------------------------------------------------

// WritePrices writes price rows grouped by ticker, merging with any
// existing file. Each ticker produces a file at:
//
//	<DataDir>/prices/<TICKER>.parquet
func (s *ParquetStore) WritePrices(_ context.Context, rows []domain.PricePoint) error {
	groups := make(map[string][]PriceRecord)
	for _, p := range rows {
		groups[p.Ticker] = append(groups[p.Ticker], PriceRecord{
			Ticker:      p.Ticker,
			Date:        p.Date.UnixMilli(),
			Open:        p.Open,
			High:        p.High,
			Low:         p.Low,
			Close:       p.Close,
			Volume:      p.Volume,
			CompanyName: p.CompanyName,
			Sector:      p.Sector,
		})
	}

	for ticker, records := range groups {
		path := s.pricePath(ticker)
		existing, err := readParquetFile[PriceRecord](path)
		if err != nil {
			return fmt.Errorf("reading prices for %s: %w", ticker, err)
		}
		merged := mergeByDate(existing, records, func(r PriceRecord) int64 { return r.Date })
		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing prices for %s: %w", ticker, err)
		}
	}
	return nil
}

// ReadPrices reads all price rows for ticker. A missing file yields no rows.
func (s *ParquetStore) ReadPrices(_ context.Context, ticker string) ([]domain.PricePoint, error) {
	ticker = domain.NormalizeTicker(ticker)
	records, err := readParquetFile[PriceRecord](s.pricePath(ticker))
	if err != nil {
		return nil, fmt.Errorf("reading prices for %s: %w", ticker, err)
	}

	rows := make([]domain.PricePoint, 0, len(records))
	for _, r := range records {
		rows = append(rows, domain.PricePoint{
			Date:        time.UnixMilli(r.Date).UTC(),
			Ticker:      r.Ticker,
			Open:        r.Open,
			High:        r.High,
			Low:         r.Low,
			Close:       r.Close,
			Volume:      r.Volume,
			CompanyName: r.CompanyName,
			Sector:      r.Sector,
		})
	}
	return rows, nil
}

// ReadAllPrices reads the price rows of every stored ticker.
func (s *ParquetStore) ReadAllPrices(ctx context.Context) ([]domain.PricePoint, error) {
	tickers, err := s.ListTickers(ctx)
	if err != nil {
		return nil, err
	}
	var all []domain.PricePoint
	for _, t := range tickers {
		rows, err := s.ReadPrices(ctx, t)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}

// ---------------------------------------------------------------------------
// Predictions
// ---------------------------------------------------------------------------

// WritePredictions writes prediction rows grouped by ticker, merging with
// any existing file at <DataDir>/predictions/<TICKER>.parquet. After the
// merge only the latest row of a ticker may lack an actual close; older
// unrealized rows are superseded and dropped.
func (s *ParquetStore) WritePredictions(_ context.Context, rows []domain.PredictionPoint) error {
	groups := make(map[string][]PredictionRecord)
	for _, p := range rows {
		groups[p.Ticker] = append(groups[p.Ticker], PredictionRecord{
			Ticker:         p.Ticker,
			Date:           p.Date.UnixMilli(),
			ActualClose:    p.ActualClose,
			PredictedClose: p.PredictedClose,
		})
	}

	for ticker, records := range groups {
		path := s.predictionPath(ticker)
		existing, err := readParquetFile[PredictionRecord](path)
		if err != nil {
			return fmt.Errorf("reading predictions for %s: %w", ticker, err)
		}
		merged := mergeByDate(existing, records, func(r PredictionRecord) int64 { return r.Date })
		merged = dropStaleFuture(merged)
		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing predictions for %s: %w", ticker, err)
		}
	}
	return nil
}

// ReadPredictions reads all prediction rows for ticker.
func (s *ParquetStore) ReadPredictions(_ context.Context, ticker string) ([]domain.PredictionPoint, error) {
	ticker = domain.NormalizeTicker(ticker)
	records, err := readParquetFile[PredictionRecord](s.predictionPath(ticker))
	if err != nil {
		return nil, fmt.Errorf("reading predictions for %s: %w", ticker, err)
	}

	rows := make([]domain.PredictionPoint, 0, len(records))
	for _, r := range records {
		rows = append(rows, domain.PredictionPoint{
			Date:           time.UnixMilli(r.Date).UTC(),
			Ticker:         r.Ticker,
			ActualClose:    r.ActualClose,
			PredictedClose: r.PredictedClose,
		})
	}
	return rows, nil
}

// ReadAllPredictions reads the prediction rows of every ticker that has a
// predictions file.
func (s *ParquetStore) ReadAllPredictions(ctx context.Context) ([]domain.PredictionPoint, error) {
	tickers, err := s.listDir(TablePredictions)
	if err != nil {
		return nil, err
	}
	var all []domain.PredictionPoint
	for _, t := range tickers {
		rows, err := s.ReadPredictions(ctx, t)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}

// ListTickers lists all tickers that have price data.
func (s *ParquetStore) ListTickers(_ context.Context) ([]string, error) {
	return s.listDir(TablePrices)
}

// Table directory names under DataDir.
const (
	TablePrices      = "prices"
	TablePredictions = "predictions"
)

// Files returns the Parquet files of table, for change detection.
func (s *ParquetStore) Files(table string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(s.DataDir, table, "*.parquet"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (s *ParquetStore) listDir(table string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tickers []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".parquet"); ok && !e.IsDir() {
			tickers = append(tickers, name)
		}
	}
	sort.Strings(tickers)
	return tickers, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// pricePath returns <dataDir>/prices/<TICKER>.parquet.
func (s *ParquetStore) pricePath(ticker string) string {
	return filepath.Join(s.DataDir, TablePrices, strings.ToUpper(ticker)+".parquet")
}

// predictionPath returns <dataDir>/predictions/<TICKER>.parquet.
func (s *ParquetStore) predictionPath(ticker string) string {
	return filepath.Join(s.DataDir, TablePredictions, strings.ToUpper(ticker)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

// writeParquetFile writes to a temporary file and renames it into place so
// readers never observe a partial file.
func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, records); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// readParquetFile returns the records in path, or nil if it does not exist.
func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return parquet.ReadFile[T](path)
}

// mergeByDate deduplicates records by date, preferring incoming records
// over existing ones. The result is sorted by date.
func mergeByDate[T any](existing, incoming []T, date func(T) int64) []T {
	seen := make(map[int64]T, len(existing)+len(incoming))
	for _, r := range existing {
		seen[date(r)] = r
	}
	for _, r := range incoming {
		seen[date(r)] = r
	}

	merged := make([]T, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return date(merged[i]) < date(merged[j])
	})
	return merged
}

// dropStaleFuture removes unrealized rows other than the last one from
// date-sorted records.
func dropStaleFuture(records []PredictionRecord) []PredictionRecord {
	out := records[:0]
	for i, r := range records {
		if r.ActualClose == nil && i != len(records)-1 {
			continue
		}
		out = append(out, r)
	}
	return out
}
