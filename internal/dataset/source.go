// Package dataset owns the loaded price and prediction tables. It loads
// them from a Source, tracks the source's file versions, and caches
// filtered per-ticker views keyed by ticker, date range and version.
package dataset

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"

	"stockboard/internal/config"
	"stockboard/internal/domain"
	"stockboard/internal/store"
	"stockboard/internal/util"
)

// Source loads the two input tables and reports their versions. A version
// changes whenever the underlying data may have changed.
type Source interface {
	Name() string
	Versions(ctx context.Context) (prices, predictions int64, err error)
	LoadPrices(ctx context.Context) ([]domain.PricePoint, error)
	LoadPredictions(ctx context.Context) ([]domain.PredictionPoint, error)
}

// CSVSource reads the externally produced CSV files. Versions are the files'
// modification times.
type CSVSource struct {
	PricesPath      string
	PredictionsPath string
}

func (s *CSVSource) Name() string { return "csv" }

func (s *CSVSource) Versions(_ context.Context) (int64, int64, error) {
	p, err := modTime(s.PricesPath)
	if err != nil {
		return 0, 0, err
	}
	q, err := modTime(s.PredictionsPath)
	if err != nil {
		return 0, 0, err
	}
	return p, q, nil
}

func (s *CSVSource) LoadPrices(_ context.Context) ([]domain.PricePoint, error) {
	return store.LoadPriceHistory(s.PricesPath)
}

func (s *CSVSource) LoadPredictions(_ context.Context) ([]domain.PredictionPoint, error) {
	return store.LoadPredictions(s.PredictionsPath)
}

// ParquetSource reads per-ticker Parquet tables written by the import
// command. A table's version is a hash of its file names and modification
// times, so adding, rewriting or deleting a ticker's file changes it.
type ParquetSource struct {
	Store *store.ParquetStore
}

func (s *ParquetSource) Name() string { return "parquet" }

func (s *ParquetSource) Versions(_ context.Context) (int64, int64, error) {
	p, err := s.tableVersion(store.TablePrices)
	if err != nil {
		return 0, 0, err
	}
	q, err := s.tableVersion(store.TablePredictions)
	if err != nil {
		return 0, 0, err
	}
	return p, q, nil
}

func (s *ParquetSource) tableVersion(table string) (int64, error) {
	files, err := s.Store.Files(table)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, util.Permanent(fmt.Errorf("no %s tables under %s: %w", table, s.Store.DataDir, fs.ErrNotExist))
	}
	h := fnv.New64a()
	var buf [8]byte
	for _, f := range files {
		v, err := modTime(f)
		if err != nil {
			return 0, err
		}
		h.Write([]byte(f))
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	// Keep versions non-negative.
	return int64(h.Sum64() >> 1), nil
}

func (s *ParquetSource) LoadPrices(ctx context.Context) ([]domain.PricePoint, error) {
	return s.Store.ReadAllPrices(ctx)
}

func (s *ParquetSource) LoadPredictions(ctx context.Context) ([]domain.PredictionPoint, error) {
	rows, err := s.Store.ReadAllPredictions(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.CheckFutureRows(rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// modTime returns the file's modification time in Unix nanoseconds. A
// missing file is a permanent error.
func modTime(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, util.Permanent(fmt.Errorf("stat %s: %w", path, err))
		}
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.ModTime().UnixNano(), nil
}

// NewSource builds the Source selected by cfg.
func NewSource(cfg config.Data) (Source, error) {
	switch cfg.Source {
	case config.SourceCSV:
		return &CSVSource{PricesPath: cfg.PricesCSV, PredictionsPath: cfg.PredictionsCSV}, nil
	case config.SourceParquet:
		return &ParquetSource{Store: store.NewParquetStore(cfg.ParquetDir)}, nil
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.Source)
	}
}
