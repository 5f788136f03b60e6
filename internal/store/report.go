package store

import (
	"time"

	"stockboard/internal/domain"
	"stockboard/internal/metrics"
)

// ReportKind names the dashboard page a report was computed for.
type ReportKind string

const (
	ReportPrices      ReportKind = "prices"
	ReportPredictions ReportKind = "predictions"
)

// Valid reports whether k is a known kind.
func (k ReportKind) Valid() bool {
	return k == ReportPrices || k == ReportPredictions
}

// Report is one recorded metrics computation. Price reports fill Min, Max
// and Mean; prediction reports fill the comparison fields. Count is the
// number of rows the metrics were computed over.
type Report struct {
	ID          string
	Ticker      string
	Kind        ReportKind
	Range       domain.DateRange
	DataVersion int64
	CreatedAt   time.Time
	Count       int

	Min  *float64
	Max  *float64
	Mean *float64

	MeanAbsoluteError *float64
	DirectionAccuracy *float64
	Correlation       *float64
	NextDate          *time.Time
	NextPrice         *float64
}

// NewPriceReport builds a report from a closing-price summary.
func NewPriceReport(ticker string, r domain.DateRange, version int64, s metrics.PriceSummary) *Report {
	return &Report{
		Ticker:      ticker,
		Kind:        ReportPrices,
		Range:       r,
		DataVersion: version,
		Count:       s.Count,
		Min:         domain.Float(s.Min),
		Max:         domain.Float(s.Max),
		Mean:        domain.Float(s.Mean),
	}
}

// NewPredictionReport builds a report from a prediction comparison.
func NewPredictionReport(ticker string, r domain.DateRange, version int64, p metrics.PredictionReport) *Report {
	rep := &Report{
		Ticker:            ticker,
		Kind:              ReportPredictions,
		Range:             r,
		DataVersion:       version,
		Count:             p.Observations,
		MeanAbsoluteError: domain.Float(p.MeanAbsoluteError),
		DirectionAccuracy: p.DirectionAccuracy,
		Correlation:       p.Correlation,
	}
	if p.Next != nil {
		d := p.Next.Date
		rep.NextDate = &d
		rep.NextPrice = domain.Float(p.Next.Price)
	}
	return rep
}
