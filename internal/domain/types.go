// Package domain defines the core tables served by the dashboard: daily
// price history and model predictions, plus the ticker universe and date
// ranges used to filter them.
package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used on the wire and in CSV files.
const DateLayout = "2006-01-02"

// DefaultTickers is the recognised ticker universe when configuration does
// not override it.
var DefaultTickers = []string{"AAPL", "MSFT", "AMZN", "TSLA", "META"}

// PricePoint is one row of the merged historical OHLCV dataset.
type PricePoint struct {
	Date        time.Time
	Ticker      string
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      int64
	CompanyName string
	Sector      string
}

// Valid reports whether the row satisfies Low <= Open, Close <= High.
func (p PricePoint) Valid() bool {
	return p.Low <= p.Open && p.Low <= p.Close &&
		p.Open <= p.High && p.Close <= p.High
}

// PredictionPoint is one row of the prediction dataset. ActualClose is nil
// for the single unrealized future trading day of a ticker.
type PredictionPoint struct {
	Date           time.Time
	Ticker         string
	ActualClose    *float64
	PredictedClose float64
}

// IsFuture reports whether the row has no realized close yet.
func (p PredictionPoint) IsFuture() bool {
	return p.ActualClose == nil
}

// Float returns a pointer to v, for building PredictionPoint literals.
func Float(v float64) *float64 {
	return &v
}

// DateRange is an inclusive calendar range. A zero Start or End leaves that
// side unbounded.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// String renders the range as "start..end" with empty sides for unbounded.
func (r DateRange) String() string {
	return formatDate(r.Start) + ".." + formatDate(r.End)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseDateRange parses optional start and end dates in DateLayout. Empty
// strings leave that side unbounded. An end before start is rejected.
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	var err error
	if start != "" {
		if r.Start, err = ParseDate(start); err != nil {
			return DateRange{}, fmt.Errorf("invalid start date %q: %w", start, err)
		}
	}
	if end != "" {
		if r.End, err = ParseDate(end); err != nil {
			return DateRange{}, fmt.Errorf("invalid end date %q: %w", end, err)
		}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return DateRange{}, fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return r, nil
}

// dateLayouts lists the accepted Date column formats, most common first.
var dateLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseDate parses a calendar date and truncates it to UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return Day(t), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NormalizeTicker upper-cases and trims a ticker symbol.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// FilterPrices returns the rows for ticker within r, sorted by date. The
// input slice is not modified.
func FilterPrices(rows []PricePoint, ticker string, r DateRange) []PricePoint {
	var out []PricePoint
	for i := range rows {
		if rows[i].Ticker == ticker && r.Contains(rows[i].Date) {
			out = append(out, rows[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// FilterPredictions returns the rows for ticker within r, sorted by date.
func FilterPredictions(rows []PredictionPoint, ticker string, r DateRange) []PredictionPoint {
	var out []PredictionPoint
	for i := range rows {
		if rows[i].Ticker == ticker && r.Contains(rows[i].Date) {
			out = append(out, rows[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
