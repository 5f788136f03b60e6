// Package dashboard turns filtered tables and metrics results into the view
// models rendered by the dashboard front end: metric cards, chart series
// and model-performance insights.
package dashboard

import (
	"fmt"
	"time"

	"stockboard/internal/domain"
	"stockboard/internal/metrics"
)

// Delta colouring of a card, matching the front end's metric widget.
const (
	DeltaNormal  = "normal"
	DeltaInverse = "inverse"
)

// Insight thresholds.
const (
	maeThreshold         = 2.00
	directionThreshold   = 0.70
	correlationThreshold = 0.85
)

// Card is one metric widget.
type Card struct {
	Label        string   `json:"label"`
	Value        *float64 `json:"value"`
	Display      string   `json:"display"`
	Delta        *float64 `json:"delta,omitempty"`
	DeltaDisplay string   `json:"delta_display,omitempty"`
	DeltaColor   string   `json:"delta_color,omitempty"`
	Help         string   `json:"help,omitempty"`
}

// ClosePoint is one point of the closing-price chart.
type ClosePoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// ComparePoint is one point of the actual-vs-predicted chart. Actual is
// null on the future row.
type ComparePoint struct {
	Date      string   `json:"date"`
	Actual    *float64 `json:"actual"`
	Predicted float64  `json:"predicted"`
}

// Insight states whether a model-performance rule of thumb holds. Met is
// null when the metric could not be computed.
type Insight struct {
	Metric    string  `json:"metric"`
	Rule      string  `json:"rule"`
	Threshold float64 `json:"threshold"`
	Met       *bool   `json:"met"`
	Message   string  `json:"message"`
}

// NextView is the forecast for the unrealized trading day.
type NextView struct {
	Date    string  `json:"date"`
	Price   float64 `json:"price"`
	Display string  `json:"display"`
}

// PriceView backs the closing-price page of one ticker.
type PriceView struct {
	Ticker      string       `json:"ticker"`
	CompanyName string       `json:"company_name,omitempty"`
	Sector      string       `json:"sector,omitempty"`
	Start       string       `json:"start"`
	End         string       `json:"end"`
	Empty       bool         `json:"empty"`
	Message     string       `json:"message,omitempty"`
	Title       string       `json:"title"`
	Cards       []Card       `json:"cards"`
	Series      []ClosePoint `json:"series"`
	Rows        int          `json:"rows"`
	DataVersion int64        `json:"data_version"`

	Summary *metrics.PriceSummary `json:"-"`
}

// PredictionView backs the actual-vs-predicted page of one ticker.
type PredictionView struct {
	Ticker       string         `json:"ticker"`
	Start        string         `json:"start"`
	End          string         `json:"end"`
	Empty        bool           `json:"empty"`
	Message      string         `json:"message,omitempty"`
	Title        string         `json:"title"`
	Cards        []Card         `json:"cards"`
	Insights     []Insight      `json:"insights"`
	Series       []ComparePoint `json:"series"`
	Next         *NextView      `json:"next"`
	Observations int            `json:"observations"`
	Comparisons  int            `json:"comparisons"`
	Note         string         `json:"note"`
	DataVersion  int64          `json:"data_version"`

	Report *metrics.PredictionReport `json:"-"`
}

// NoDataMessage is shown when a ticker has no rows in the selected range.
func NoDataMessage(ticker string) string {
	return fmt.Sprintf("No data available for %s.", ticker)
}

// BuildPriceView summarizes rows, which must already be filtered to ticker
// and r and sorted by date. Empty rows yield an empty view without
// invoking the metrics engine.
func BuildPriceView(ticker string, r domain.DateRange, rows []domain.PricePoint, version int64) (*PriceView, error) {
	v := &PriceView{
		Ticker:      ticker,
		Start:       formatBound(r.Start),
		End:         formatBound(r.End),
		Title:       fmt.Sprintf("%s Closing Prices Over Time", ticker),
		Cards:       []Card{},
		Series:      make([]ClosePoint, 0, len(rows)),
		Rows:        len(rows),
		DataVersion: version,
	}
	if len(rows) == 0 {
		v.Empty = true
		v.Message = NoDataMessage(ticker)
		return v, nil
	}

	s, err := metrics.SummarizePrices(rows)
	if err != nil {
		return nil, fmt.Errorf("summarizing %s prices: %w", ticker, err)
	}
	v.Summary = &s

	for _, p := range rows {
		v.Series = append(v.Series, ClosePoint{Date: p.Date.Format(domain.DateLayout), Close: p.Close})
		if p.CompanyName != "" {
			v.CompanyName = p.CompanyName
		}
		if p.Sector != "" {
			v.Sector = p.Sector
		}
	}

	low, high := s.LowDelta(), s.HighDelta()
	v.Cards = []Card{
		{
			Label:        "Low",
			Value:        domain.Float(s.Min),
			Display:      FormatMoney(s.Min),
			Delta:        &low,
			DeltaDisplay: FormatDelta(low),
			DeltaColor:   DeltaInverse,
		},
		{
			Label:   "Mean",
			Value:   domain.Float(s.Mean),
			Display: FormatMoney(s.Mean),
		},
		{
			Label:        "High",
			Value:        domain.Float(s.Max),
			Display:      FormatMoney(s.Max),
			Delta:        &high,
			DeltaDisplay: FormatDelta(high),
			DeltaColor:   DeltaNormal,
		},
	}
	return v, nil
}

// BuildPredictionView compares predicted and actual closes in rows, which
// must already be filtered to ticker and r. When no row has an actual
// close the view is empty and the metrics engine is not invoked.
func BuildPredictionView(ticker string, r domain.DateRange, rows []domain.PredictionPoint, version int64) (*PredictionView, error) {
	v := &PredictionView{
		Ticker:      ticker,
		Start:       formatBound(r.Start),
		End:         formatBound(r.End),
		Title:       fmt.Sprintf("%s Actual vs Predicted Closing Prices", ticker),
		Cards:       []Card{},
		Insights:    []Insight{},
		Series:      make([]ComparePoint, 0, len(rows)),
		Note:        "Metrics calculated for the selected date range and ticker only",
		DataVersion: version,
	}
	for _, p := range rows {
		v.Series = append(v.Series, ComparePoint{
			Date:      p.Date.Format(domain.DateLayout),
			Actual:    p.ActualClose,
			Predicted: p.PredictedClose,
		})
	}

	if !hasHistory(rows) {
		v.Empty = true
		v.Message = NoDataMessage(ticker)
		return v, nil
	}

	rep, err := metrics.ComparePredictions(rows)
	if err != nil {
		return nil, fmt.Errorf("comparing %s predictions: %w", ticker, err)
	}
	v.Report = &rep
	v.Observations = rep.Observations
	v.Comparisons = rep.Comparisons

	if rep.Next != nil {
		v.Next = &NextView{
			Date:    rep.Next.Date.Format(domain.DateLayout),
			Price:   rep.Next.Price,
			Display: FormatMoney(rep.Next.Price),
		}
	}

	v.Cards = []Card{
		{
			Label:   "Mean Absolute Error",
			Value:   finiteOrNil(rep.MeanAbsoluteError),
			Display: FormatMoney(rep.MeanAbsoluteError),
			Help:    "Average dollar difference between predicted and actual prices",
		},
		{
			Label:   "Direction Accuracy",
			Value:   rep.DirectionAccuracy,
			Display: FormatOptional(rep.DirectionAccuracy, FormatPercent),
			Help:    "Percentage of correct up/down predictions",
		},
		{
			Label:   "Price Correlation",
			Value:   rep.Correlation,
			Display: FormatOptional(rep.Correlation, FormatRatio),
			Help:    "Strength of relationship between predictions and reality (1 = perfect)",
		},
	}
	v.Insights = insights(rep)
	return v, nil
}

// finiteOrNil drops values JSON cannot encode.
func finiteOrNil(v float64) *float64 {
	if !finite(v) {
		return nil
	}
	return &v
}

func hasHistory(rows []domain.PredictionPoint) bool {
	for _, p := range rows {
		if !p.IsFuture() {
			return true
		}
	}
	return false
}

func insights(rep metrics.PredictionReport) []Insight {
	met := func(ok bool) *bool { return &ok }

	mae := Insight{
		Metric:    "mean_absolute_error",
		Rule:      "MAE < $2.00",
		Threshold: maeThreshold,
		Met:       met(rep.MeanAbsoluteError < maeThreshold),
		Message:   "The model predictions are very close to actual market prices",
	}
	if !finite(rep.MeanAbsoluteError) {
		mae.Met = nil
	}
	dir := Insight{
		Metric:    "direction_accuracy",
		Rule:      "Direction Accuracy > 70%",
		Threshold: directionThreshold,
		Message:   "The model reliably predicts price movement direction",
	}
	if rep.DirectionAccuracy != nil {
		dir.Met = met(*rep.DirectionAccuracy > directionThreshold)
	}
	corr := Insight{
		Metric:    "correlation",
		Rule:      "Correlation > 0.85",
		Threshold: correlationThreshold,
		Message:   "Strong linear relationship between predictions and actuals",
	}
	if rep.Correlation != nil {
		corr.Met = met(*rep.Correlation > correlationThreshold)
	}
	return []Insight{mae, dir, corr}
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(domain.DateLayout)
}

// PriceRange parses the closing-price page range. An empty start falls back
// to defaultStart and an empty end to today's date.
func PriceRange(start, end, defaultStart string, today time.Time) (domain.DateRange, error) {
	if start == "" {
		start = defaultStart
	}
	if end == "" {
		end = today.Format(domain.DateLayout)
	}
	return domain.ParseDateRange(start, end)
}
