// Package httpapi provides the HTTP REST API of the dashboard: closing-price
// and prediction views per ticker, report history and health.
package httpapi

import (
	"time"

	"stockboard/internal/domain"
	"stockboard/internal/store"
)

// TickersResponse lists the ticker universe.
type TickersResponse struct {
	Tickers []string `json:"tickers"`
}

// ReportJSON is the JSON representation of a recorded report.
type ReportJSON struct {
	ID          string `json:"id"`
	Ticker      string `json:"ticker"`
	Kind        string `json:"kind"`
	Start       string `json:"start"`
	End         string `json:"end"`
	DataVersion int64  `json:"data_version"`
	CreatedAt   string `json:"created_at"`
	Count       int    `json:"count"`

	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Mean *float64 `json:"mean,omitempty"`

	MeanAbsoluteError *float64 `json:"mean_absolute_error,omitempty"`
	DirectionAccuracy *float64 `json:"direction_accuracy,omitempty"`
	Correlation       *float64 `json:"correlation,omitempty"`
	NextDate          *string  `json:"next_date,omitempty"`
	NextPrice         *float64 `json:"next_price,omitempty"`
}

// ReportsResponse wraps the report history of a ticker, newest first.
type ReportsResponse struct {
	Ticker  string       `json:"ticker"`
	Kind    string       `json:"kind,omitempty"`
	Reports []ReportJSON `json:"reports"`
}

// HealthResponse reports the loaded dataset versions.
type HealthResponse struct {
	Status             string `json:"status"`
	Source             string `json:"source"`
	Loaded             bool   `json:"loaded"`
	PriceRows          int    `json:"price_rows"`
	PredictionRows     int    `json:"prediction_rows"`
	PricesVersion      int64  `json:"prices_version"`
	PredictionsVersion int64  `json:"predictions_version"`
	LoadedAt           string `json:"loaded_at,omitempty"`
}

// NewReportJSON converts a stored report to its JSON representation.
func NewReportJSON(r store.Report) ReportJSON {
	out := ReportJSON{
		ID:                r.ID,
		Ticker:            r.Ticker,
		Kind:              string(r.Kind),
		Start:             dateString(r.Range.Start),
		End:               dateString(r.Range.End),
		DataVersion:       r.DataVersion,
		CreatedAt:         r.CreatedAt.UTC().Format(time.RFC3339),
		Count:             r.Count,
		Min:               r.Min,
		Max:               r.Max,
		Mean:              r.Mean,
		MeanAbsoluteError: r.MeanAbsoluteError,
		DirectionAccuracy: r.DirectionAccuracy,
		Correlation:       r.Correlation,
		NextPrice:         r.NextPrice,
	}
	if r.NextDate != nil {
		d := r.NextDate.Format(domain.DateLayout)
		out.NextDate = &d
	}
	return out
}

func dateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(domain.DateLayout)
}
