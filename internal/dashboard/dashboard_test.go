package dashboard

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"stockboard/internal/domain"
)

func TestFormatInt(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{45000000, "45,000,000"},
		{-1234, "-1,234"},
		{math.MinInt64, "-9,223,372,036,854,775,808"},
		{math.MaxInt64, "9,223,372,036,854,775,807"},
	}
	for _, tt := range tests {
		if got := FormatInt(tt.n); got != tt.want {
			t.Errorf("FormatInt(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{185.5, "$185.50"},
		{1.005, "$1.01"},
		{3342.876, "$3,342.88"},
		{-10, "-$10.00"},
		{-0.001, "$0.00"},
		{1e21, "$1,000,000,000,000,000,000,000.00"},
	}
	for _, tt := range tests {
		if got := FormatMoney(tt.v); got != tt.want {
			t.Errorf("FormatMoney(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestFormatDelta(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{10, "+$10.00"},
		{-10, "-$10.00"},
		{0.001, "$0.00"},
	}
	for _, tt := range tests {
		if got := FormatDelta(tt.v); got != tt.want {
			t.Errorf("FormatDelta(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestFormatPercentAndRatio(t *testing.T) {
	if got := FormatPercent(0.5); got != "50.0%" {
		t.Errorf("FormatPercent(0.5) = %q, want 50.0%%", got)
	}
	if got := FormatPercent(2.0 / 3.0); got != "66.7%" {
		t.Errorf("FormatPercent(2/3) = %q, want 66.7%%", got)
	}
	if got := FormatRatio(0.9749); got != "0.97" {
		t.Errorf("FormatRatio(0.9749) = %q, want 0.97", got)
	}
	if got := FormatOptional(nil, FormatRatio); got != NotAvailable {
		t.Errorf("FormatOptional(nil) = %q, want %q", got, NotAvailable)
	}
}

func TestFormatNonFinite(t *testing.T) {
	formats := map[string]func(float64) string{
		"FormatMoney":   FormatMoney,
		"FormatDelta":   FormatDelta,
		"FormatPercent": FormatPercent,
		"FormatRatio":   FormatRatio,
	}
	for name, format := range formats {
		for _, v := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
			if got := format(v); got != NotAvailable {
				t.Errorf("%s(%v) = %q, want %q", name, v, got, NotAvailable)
			}
		}
	}
}

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

func TestBuildPriceView(t *testing.T) {
	rows := []domain.PricePoint{
		{Date: day(2), Ticker: "AAPL", Close: 10, CompanyName: "Apple Inc.", Sector: "Technology"},
		{Date: day(3), Ticker: "AAPL", Close: 20},
		{Date: day(4), Ticker: "AAPL", Close: 30},
	}
	r := domain.DateRange{Start: day(1), End: day(31)}
	v, err := BuildPriceView("AAPL", r, rows, 7)
	if err != nil {
		t.Fatalf("BuildPriceView: %v", err)
	}
	if v.Empty {
		t.Fatal("view should not be empty")
	}
	if v.Start != "2024-01-01" || v.End != "2024-01-31" {
		t.Errorf("range = %s..%s", v.Start, v.End)
	}
	if len(v.Cards) != 3 {
		t.Fatalf("got %d cards, want 3", len(v.Cards))
	}

	low, mean, high := v.Cards[0], v.Cards[1], v.Cards[2]
	if low.Display != "$10.00" || low.DeltaDisplay != "-$10.00" || low.DeltaColor != DeltaInverse {
		t.Errorf("low card = %+v", low)
	}
	if mean.Display != "$20.00" || mean.Delta != nil {
		t.Errorf("mean card = %+v", mean)
	}
	if high.Display != "$30.00" || high.DeltaDisplay != "+$10.00" || high.DeltaColor != DeltaNormal {
		t.Errorf("high card = %+v", high)
	}
	if len(v.Series) != 3 || v.Series[0].Date != "2024-01-02" || v.Series[2].Close != 30 {
		t.Errorf("series = %+v", v.Series)
	}
	if v.CompanyName != "Apple Inc." || v.Sector != "Technology" {
		t.Errorf("company/sector = %q/%q", v.CompanyName, v.Sector)
	}
	if v.Summary == nil || v.Summary.Mean != 20 {
		t.Errorf("Summary = %+v", v.Summary)
	}
	if v.Title != "AAPL Closing Prices Over Time" {
		t.Errorf("Title = %q", v.Title)
	}
}

func TestBuildPriceViewEmpty(t *testing.T) {
	v, err := BuildPriceView("TSLA", domain.DateRange{}, nil, 1)
	if err != nil {
		t.Fatalf("BuildPriceView: %v", err)
	}
	if !v.Empty || v.Message != "No data available for TSLA." {
		t.Errorf("view = %+v, want empty with message", v)
	}
	if v.Summary != nil {
		t.Error("empty view should not carry a summary")
	}

	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"cards":[]`) || !strings.Contains(string(b), `"series":[]`) {
		t.Errorf("json = %s, want empty arrays rather than null", b)
	}
}

func predictionRows() []domain.PredictionPoint {
	return []domain.PredictionPoint{
		{Date: day(2), Ticker: "AAPL", ActualClose: domain.Float(100), PredictedClose: 100},
		{Date: day(3), Ticker: "AAPL", ActualClose: domain.Float(102), PredictedClose: 101},
		{Date: day(4), Ticker: "AAPL", ActualClose: domain.Float(101), PredictedClose: 103},
		{Date: day(5), Ticker: "AAPL", PredictedClose: 104},
	}
}

func TestBuildPredictionView(t *testing.T) {
	v, err := BuildPredictionView("AAPL", domain.DateRange{}, predictionRows(), 9)
	if err != nil {
		t.Fatalf("BuildPredictionView: %v", err)
	}
	if v.Empty {
		t.Fatal("view should not be empty")
	}
	if v.Observations != 3 || v.Comparisons != 2 {
		t.Errorf("observations/comparisons = %d/%d, want 3/2", v.Observations, v.Comparisons)
	}

	mae, dir, corr := v.Cards[0], v.Cards[1], v.Cards[2]
	if mae.Display != "$1.00" {
		t.Errorf("MAE display = %q, want $1.00", mae.Display)
	}
	if dir.Display != "50.0%" {
		t.Errorf("direction display = %q, want 50.0%%", dir.Display)
	}
	if corr.Value == nil || corr.Display == NotAvailable {
		t.Errorf("correlation card = %+v, want a value", corr)
	}
	if mae.Help == "" || dir.Help == "" || corr.Help == "" {
		t.Error("every metric card should carry help text")
	}

	if v.Next == nil || v.Next.Date != "2024-01-05" || v.Next.Display != "$104.00" {
		t.Errorf("Next = %+v", v.Next)
	}
	if len(v.Series) != 4 || v.Series[3].Actual != nil {
		t.Errorf("series = %+v, want 4 points ending with a null actual", v.Series)
	}

	if len(v.Insights) != 3 {
		t.Fatalf("got %d insights, want 3", len(v.Insights))
	}
	if v.Insights[0].Met == nil || !*v.Insights[0].Met {
		t.Error("MAE of $1.00 should meet the < $2.00 rule")
	}
	if v.Insights[1].Met == nil || *v.Insights[1].Met {
		t.Error("direction accuracy of 50% should not meet the > 70% rule")
	}
}

func TestBuildPredictionViewDegenerate(t *testing.T) {
	rows := []domain.PredictionPoint{
		{Date: day(2), Ticker: "META", ActualClose: domain.Float(300), PredictedClose: 301},
	}
	v, err := BuildPredictionView("META", domain.DateRange{}, rows, 1)
	if err != nil {
		t.Fatalf("BuildPredictionView: %v", err)
	}
	if v.Cards[1].Display != NotAvailable || v.Cards[2].Display != NotAvailable {
		t.Errorf("cards = %+v, want n/a for direction and correlation", v.Cards)
	}
	if v.Insights[1].Met != nil || v.Insights[2].Met != nil {
		t.Error("insights over absent metrics should have a null Met")
	}
	if v.Next != nil {
		t.Errorf("Next = %+v, want nil without a future row", v.Next)
	}
}

func TestBuildPredictionViewOnlyFuture(t *testing.T) {
	rows := []domain.PredictionPoint{{Date: day(5), Ticker: "AMZN", PredictedClose: 150}}
	v, err := BuildPredictionView("AMZN", domain.DateRange{}, rows, 1)
	if err != nil {
		t.Fatalf("BuildPredictionView: %v", err)
	}
	if !v.Empty || v.Message != "No data available for AMZN." {
		t.Errorf("view = %+v, want empty", v)
	}
	if v.Report != nil {
		t.Error("empty view should not carry a report")
	}
}

func TestBuildPredictionViewOverflowingError(t *testing.T) {
	rows := []domain.PredictionPoint{
		{Date: day(2), Ticker: "AAPL", ActualClose: domain.Float(1.7e308), PredictedClose: -1.7e308},
		{Date: day(3), Ticker: "AAPL", ActualClose: domain.Float(1.7e308), PredictedClose: -1.7e308},
	}
	v, err := BuildPredictionView("AAPL", domain.DateRange{}, rows, 1)
	if err != nil {
		t.Fatalf("BuildPredictionView: %v", err)
	}
	if v.Cards[0].Display != NotAvailable || v.Cards[0].Value != nil {
		t.Errorf("MAE card = %+v, want n/a without a value", v.Cards[0])
	}
	if v.Insights[0].Met != nil {
		t.Error("MAE insight should have a null Met when the error is not finite")
	}
	if _, err := json.Marshal(v); err != nil {
		t.Errorf("marshal: %v", err)
	}
}

func TestBuildPredictionViewConstantPredictions(t *testing.T) {
	var rows []domain.PredictionPoint
	for i := 0; i < 11; i++ {
		rows = append(rows, domain.PredictionPoint{
			Date:           day(i + 1),
			Ticker:         "AAPL",
			ActualClose:    domain.Float(100 + float64(i)),
			PredictedClose: 101.37,
		})
	}
	v, err := BuildPredictionView("AAPL", domain.DateRange{}, rows, 1)
	if err != nil {
		t.Fatalf("BuildPredictionView: %v", err)
	}
	if v.Cards[2].Display != NotAvailable || v.Cards[2].Value != nil {
		t.Errorf("correlation card = %+v, want n/a", v.Cards[2])
	}
	if v.Insights[2].Met != nil {
		t.Error("correlation insight should have a null Met for constant predictions")
	}
}

func TestPriceRange(t *testing.T) {
	today := time.Date(2024, 6, 1, 18, 30, 0, 0, time.UTC)

	r, err := PriceRange("", "", "2020-01-01", today)
	if err != nil {
		t.Fatalf("PriceRange: %v", err)
	}
	if r.String() != "2020-01-01..2024-06-01" {
		t.Errorf("default range = %s", r)
	}

	r, err = PriceRange("2024-01-01", "2024-02-01", "2020-01-01", today)
	if err != nil || r.String() != "2024-01-01..2024-02-01" {
		t.Errorf("explicit range = %s, %v", r, err)
	}

	if _, err := PriceRange("", "2019-01-01", "2020-01-01", today); err == nil {
		t.Error("expected error for end before the default start")
	}
}
