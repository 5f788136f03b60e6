// Package metrics computes the descriptive statistics shown on the
// dashboard: closing-price summaries over a date range and the accuracy of
// model predictions against realized closes. Every function is pure.
package metrics

import (
	"errors"
	"math"
	"sort"
	"time"

	"stockboard/internal/domain"
)

var (
	// ErrEmptyInput is returned when there are no rows (or no historical
	// prediction rows) to compute over. Callers should check for an empty
	// filtered range and report "no data" instead.
	ErrEmptyInput = errors.New("metrics: empty input")

	// ErrMultipleFuture is returned when more than one prediction row lacks
	// an actual close.
	ErrMultipleFuture = errors.New("metrics: more than one future prediction row")
)

// PriceSummary holds closing-price statistics for one ticker and range.
type PriceSummary struct {
	Min   float64
	Max   float64
	Mean  float64
	Count int
}

// LowDelta is the distance from the mean down to the minimum (<= 0).
func (s PriceSummary) LowDelta() float64 { return s.Min - s.Mean }

// HighDelta is the distance from the mean up to the maximum (>= 0).
func (s PriceSummary) HighDelta() float64 { return s.Max - s.Mean }

// NextPrediction is the model's forecast for the unrealized trading day.
type NextPrediction struct {
	Date  time.Time
	Price float64
}

// PredictionReport compares predicted and actual closes for one ticker.
// DirectionAccuracy is nil when there are fewer than two historical rows;
// Correlation is nil when either series has zero variance.
type PredictionReport struct {
	MeanAbsoluteError float64
	DirectionAccuracy *float64
	Correlation       *float64
	Observations      int // historical rows
	Comparisons       int // day-over-day direction comparisons
	Next              *NextPrediction
}

// SummarizePrices returns min, max and mean of the Close field.
func SummarizePrices(rows []domain.PricePoint) (PriceSummary, error) {
	if len(rows) == 0 {
		return PriceSummary{}, ErrEmptyInput
	}
	s := PriceSummary{
		Min:   math.Inf(1),
		Max:   math.Inf(-1),
		Count: len(rows),
	}
	closes := make([]float64, len(rows))
	for i, r := range rows {
		closes[i] = r.Close
		if r.Close < s.Min {
			s.Min = r.Close
		}
		if r.Close > s.Max {
			s.Max = r.Close
		}
	}
	// Summation rounding can land the mean a ulp outside [Min, Max].
	s.Mean = math.Max(s.Min, math.Min(s.Max, mean(closes)))
	return s, nil
}

// ComparePredictions splits rows into historical and future, then computes
// error metrics over the historical rows in date order. The result does not
// depend on the order of rows.
func ComparePredictions(rows []domain.PredictionPoint) (PredictionReport, error) {
	var historical []domain.PredictionPoint
	var future []domain.PredictionPoint
	for _, r := range rows {
		if r.IsFuture() {
			future = append(future, r)
		} else {
			historical = append(historical, r)
		}
	}
	if len(future) > 1 {
		return PredictionReport{}, ErrMultipleFuture
	}
	if len(historical) == 0 {
		return PredictionReport{}, ErrEmptyInput
	}

	sort.SliceStable(historical, func(i, j int) bool {
		return historical[i].Date.Before(historical[j].Date)
	})

	actual := make([]float64, len(historical))
	predicted := make([]float64, len(historical))
	for i, r := range historical {
		actual[i] = *r.ActualClose
		predicted[i] = r.PredictedClose
	}

	rep := PredictionReport{
		MeanAbsoluteError: meanAbsoluteError(actual, predicted),
		Observations:      len(historical),
	}
	if acc, n := directionAccuracy(actual, predicted); n > 0 {
		rep.DirectionAccuracy = &acc
		rep.Comparisons = n
	}
	if c := pearson(actual, predicted); !math.IsNaN(c) {
		rep.Correlation = &c
	}
	if len(future) == 1 {
		rep.Next = &NextPrediction{
			Date:  future[0].Date,
			Price: future[0].PredictedClose,
		}
	}
	return rep, nil
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func meanAbsoluteError(actual, predicted []float64) float64 {
	sum := 0.0
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual))
}

// directionAccuracy compares the "up" flags of consecutive differences. A
// zero change counts as not up. Returns the agreement fraction and the
// number of comparisons (len-1).
func directionAccuracy(actual, predicted []float64) (float64, int) {
	n := len(actual) - 1
	if n <= 0 {
		return 0, 0
	}
	agree := 0
	for i := 1; i < len(actual); i++ {
		actualUp := actual[i]-actual[i-1] > 0
		predictedUp := predicted[i]-predicted[i-1] > 0
		if actualUp == predictedUp {
			agree++
		}
	}
	return float64(agree) / float64(n), n
}

// pearson returns the Pearson correlation coefficient, or NaN when either
// series has zero variance.
func pearson(xs, ys []float64) float64 {
	// The float mean of a constant series can differ from the constant, so
	// check the values rather than the sums of squares.
	if len(xs) < 2 || constant(xs) || constant(ys) {
		return math.NaN()
	}
	mx, my := mean(xs), mean(ys)
	var sxy, sxx, syy float64
	for i := range xs {
		dx := xs[i] - mx
		dy := ys[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}
	r := sxy / math.Sqrt(sxx*syy)
	// Rounding can push |r| marginally past 1.
	return math.Max(-1, math.Min(1, r))
}

func constant(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}
