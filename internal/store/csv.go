package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"stockboard/internal/domain"
)

// ParseError reports a malformed value in an input CSV file.
type ParseError struct {
	File   string
	Line   int
	Column string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
	}
	return fmt.Sprintf("%s:%d: column %s: %v", e.File, e.Line, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	// ErrDuplicateRow is wrapped when a (ticker, date) pair appears twice.
	ErrDuplicateRow = errors.New("duplicate ticker/date row")

	// ErrFutureRow is wrapped when a ticker has more than one prediction
	// row without an actual close, or that row is not its latest.
	ErrFutureRow = errors.New("invalid future prediction row")
)

// Column names of merged_data.csv.
var priceColumns = []string{"Date", "Ticker", "Open", "High", "Low", "Close", "Volume"}

// Column names of ml_predictions_2.csv.
var predictionColumns = []string{"Date", "Ticker", "Close", "Predicted_Close"}

// LoadPriceHistory reads the merged price history CSV at path. Rows that
// violate Low <= Open, Close <= High are skipped and logged.
func LoadPriceHistory(path string) ([]domain.PricePoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening price history %s: %w", path, err)
	}
	defer f.Close()

	rows, skipped, err := ReadPriceHistory(f, path)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		slog.Warn("skipped price rows violating OHLC bounds", "path", path, "skipped", skipped)
	}
	return rows, nil
}

// LoadPredictions reads the prediction CSV at path.
func LoadPredictions(path string) ([]domain.PredictionPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening predictions %s: %w", path, err)
	}
	defer f.Close()
	return ReadPredictions(f, path)
}

// ReadPriceHistory parses price rows from r. name identifies the input in
// errors. It returns the rows in file order and the number of rows skipped
// for inconsistent OHLC values.
func ReadPriceHistory(r io.Reader, name string) ([]domain.PricePoint, int, error) {
	cr := newTableReader(r, name)
	cols, err := cr.header(priceColumns, "CompanyName", "Sector")
	if err != nil {
		return nil, 0, err
	}

	type key struct {
		ticker string
		date   time.Time
	}
	seen := make(map[key]int)
	var rows []domain.PricePoint
	skipped := 0

	for {
		rec, line, err := cr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}

		p := domain.PricePoint{}
		if p.Date, err = cr.date(rec, cols, "Date", line); err != nil {
			return nil, 0, err
		}
		if p.Ticker, err = cr.ticker(rec, cols, line); err != nil {
			return nil, 0, err
		}
		if p.Open, err = cr.float(rec, cols, "Open", line); err != nil {
			return nil, 0, err
		}
		if p.High, err = cr.float(rec, cols, "High", line); err != nil {
			return nil, 0, err
		}
		if p.Low, err = cr.float(rec, cols, "Low", line); err != nil {
			return nil, 0, err
		}
		if p.Close, err = cr.float(rec, cols, "Close", line); err != nil {
			return nil, 0, err
		}
		if p.Volume, err = cr.volume(rec, cols, line); err != nil {
			return nil, 0, err
		}
		p.CompanyName = cr.text(rec, cols, "CompanyName")
		p.Sector = cr.text(rec, cols, "Sector")

		k := key{p.Ticker, p.Date}
		if prev, ok := seen[k]; ok {
			return nil, 0, &ParseError{File: name, Line: line,
				Err: fmt.Errorf("%w: %s %s also on line %d", ErrDuplicateRow, p.Ticker, p.Date.Format(domain.DateLayout), prev)}
		}
		seen[k] = line

		if !p.Valid() {
			skipped++
			continue
		}
		rows = append(rows, p)
	}
	return rows, skipped, nil
}

// ReadPredictions parses prediction rows from r. An empty Close marks the
// unrealized future row; each ticker may have at most one and it must be
// the ticker's latest date.
func ReadPredictions(r io.Reader, name string) ([]domain.PredictionPoint, error) {
	cr := newTableReader(r, name)
	cols, err := cr.header(predictionColumns)
	if err != nil {
		return nil, err
	}

	type key struct {
		ticker string
		date   time.Time
	}
	seen := make(map[key]int)
	var rows []domain.PredictionPoint

	for {
		rec, line, err := cr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		p := domain.PredictionPoint{}
		if p.Date, err = cr.date(rec, cols, "Date", line); err != nil {
			return nil, err
		}
		if p.Ticker, err = cr.ticker(rec, cols, line); err != nil {
			return nil, err
		}
		if cr.text(rec, cols, "Close") != "" {
			v, err := cr.float(rec, cols, "Close", line)
			if err != nil {
				return nil, err
			}
			p.ActualClose = &v
		}
		if p.PredictedClose, err = cr.float(rec, cols, "Predicted_Close", line); err != nil {
			return nil, err
		}

		k := key{p.Ticker, p.Date}
		if prev, ok := seen[k]; ok {
			return nil, &ParseError{File: name, Line: line,
				Err: fmt.Errorf("%w: %s %s also on line %d", ErrDuplicateRow, p.Ticker, p.Date.Format(domain.DateLayout), prev)}
		}
		seen[k] = line
		rows = append(rows, p)
	}

	if err := CheckFutureRows(rows); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return rows, nil
}

// CheckFutureRows verifies that each ticker has at most one row without an
// actual close and that such a row is the ticker's chronologically last.
func CheckFutureRows(rows []domain.PredictionPoint) error {
	latest := make(map[string]time.Time)
	future := make(map[string]time.Time)
	for _, p := range rows {
		if p.Date.After(latest[p.Ticker]) {
			latest[p.Ticker] = p.Date
		}
		if !p.IsFuture() {
			continue
		}
		if prev, ok := future[p.Ticker]; ok {
			return fmt.Errorf("%w: %s has future rows on %s and %s", ErrFutureRow,
				p.Ticker, prev.Format(domain.DateLayout), p.Date.Format(domain.DateLayout))
		}
		future[p.Ticker] = p.Date
	}

	tickers := make([]string, 0, len(future))
	for t := range future {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	for _, t := range tickers {
		if future[t].Before(latest[t]) {
			return fmt.Errorf("%w: %s future row %s precedes %s", ErrFutureRow,
				t, future[t].Format(domain.DateLayout), latest[t].Format(domain.DateLayout))
		}
	}
	return nil
}

// tableReader wraps csv.Reader with header-indexed field access and
// line-numbered errors.
type tableReader struct {
	r    *csv.Reader
	name string
}

func newTableReader(r io.Reader, name string) *tableReader {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	return &tableReader{r: cr, name: name}
}

// header reads the header row and maps column names to indices. Every
// required column must be present; optional columns may be absent. Column
// names match case-insensitively.
func (t *tableReader) header(required []string, optional ...string) (map[string]int, error) {
	rec, err := t.r.Read()
	if err == io.EOF {
		return nil, &ParseError{File: t.name, Line: 1, Err: errors.New("missing header row")}
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s header: %w", t.name, err)
	}

	byName := make(map[string]int, len(rec))
	for i, col := range rec {
		col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		byName[strings.ToLower(col)] = i
	}

	cols := make(map[string]int, len(required)+len(optional))
	for _, name := range required {
		i, ok := byName[strings.ToLower(name)]
		if !ok {
			return nil, &ParseError{File: t.name, Line: 1, Column: name, Err: errors.New("missing column")}
		}
		cols[name] = i
	}
	for _, name := range optional {
		if i, ok := byName[strings.ToLower(name)]; ok {
			cols[name] = i
		}
	}
	return cols, nil
}

func (t *tableReader) next() ([]string, int, error) {
	rec, err := t.r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, 0, io.EOF
		}
		return nil, 0, fmt.Errorf("reading %s: %w", t.name, err)
	}
	line, _ := t.r.FieldPos(0)
	return rec, line, nil
}

func (t *tableReader) text(rec []string, cols map[string]int, col string) string {
	i, ok := cols[col]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func (t *tableReader) fail(line int, col string, err error) error {
	return &ParseError{File: t.name, Line: line, Column: col, Err: err}
}

func (t *tableReader) date(rec []string, cols map[string]int, col string, line int) (time.Time, error) {
	d, err := domain.ParseDate(t.text(rec, cols, col))
	if err != nil {
		return time.Time{}, t.fail(line, col, err)
	}
	return d, nil
}

func (t *tableReader) ticker(rec []string, cols map[string]int, line int) (string, error) {
	s := domain.NormalizeTicker(t.text(rec, cols, "Ticker"))
	if s == "" {
		return "", t.fail(line, "Ticker", errors.New("empty ticker"))
	}
	return s, nil
}

func (t *tableReader) float(rec []string, cols map[string]int, col string, line int) (float64, error) {
	v, err := strconv.ParseFloat(t.text(rec, cols, col), 64)
	if err != nil {
		return 0, t.fail(line, col, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, t.fail(line, col, fmt.Errorf("non-finite value %v", v))
	}
	return v, nil
}

// volume accepts integer or integral float text ("1200" or "1200.0").
func (t *tableReader) volume(rec []string, cols map[string]int, line int) (int64, error) {
	s := t.text(rec, cols, "Volume")
	if v, err := strconv.ParseInt(s, 10, 64); err == nil && v >= 0 {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, t.fail(line, "Volume", err)
	}
	if f != math.Trunc(f) || f < 0 {
		return 0, t.fail(line, "Volume", fmt.Errorf("volume %q is not a non-negative integer", s))
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if f >= math.MaxInt64 {
		return 0, t.fail(line, "Volume", fmt.Errorf("volume %q overflows int64", s))
	}
	return int64(f), nil
}
