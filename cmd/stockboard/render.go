package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"stockboard/internal/dashboard"
	"stockboard/internal/httpapi"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	subtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	cardStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2).
			Width(24)

	valueStyle = lipgloss.NewStyle().Bold(true)
	upStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	downStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6"))
)

// seriesTail is the number of trailing chart points printed.
const seriesTail = 5

func renderCards(cards []dashboard.Card) string {
	boxes := make([]string, 0, len(cards))
	for _, c := range cards {
		lines := []string{subtleStyle.Render(c.Label), valueStyle.Render(c.Display)}
		if c.DeltaDisplay != "" {
			lines = append(lines, deltaStyle(c).Render(c.DeltaDisplay))
		}
		boxes = append(boxes, cardStyle.Render(strings.Join(lines, "\n")))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

// deltaStyle colours a delta green when it is favourable. Inverse cards
// treat a decrease as favourable.
func deltaStyle(c dashboard.Card) lipgloss.Style {
	if c.Delta == nil || *c.Delta == 0 || c.DeltaDisplay == "$0.00" {
		return subtleStyle
	}
	up := *c.Delta > 0
	if c.DeltaColor == dashboard.DeltaInverse {
		up = !up
	}
	if up {
		return upStyle
	}
	return downStyle
}

func renderPriceView(v *dashboard.PriceView) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(v.Title))
	b.WriteString("\n")
	if v.CompanyName != "" || v.Sector != "" {
		b.WriteString(subtleStyle.Render(strings.TrimSpace(v.CompanyName + "  " + v.Sector)))
		b.WriteString("\n")
	}
	b.WriteString(subtleStyle.Render(fmt.Sprintf("%s to %s", orOpen(v.Start), orOpen(v.End))))
	b.WriteString("\n")
	if v.Empty {
		b.WriteString(v.Message)
		return b.String()
	}

	b.WriteString(renderCards(v.Cards))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("Latest closes (%s trading days)", dashboard.FormatInt(int64(v.Rows)))))
	b.WriteString("\n")
	for _, p := range tail(v.Series, seriesTail) {
		fmt.Fprintf(&b, "  %s  %12s\n", p.Date, dashboard.FormatMoney(p.Close))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderPredictionView(v *dashboard.PredictionView) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(v.Title))
	b.WriteString("\n")
	b.WriteString(subtleStyle.Render(fmt.Sprintf("%s to %s", orOpen(v.Start), orOpen(v.End))))
	b.WriteString("\n")
	if v.Empty {
		b.WriteString(v.Message)
		return b.String()
	}

	b.WriteString(renderCards(v.Cards))
	b.WriteString("\n")
	if v.Next != nil {
		fmt.Fprintf(&b, "%s %s on %s\n", headerStyle.Render("Next predicted close:"), valueStyle.Render(v.Next.Display), v.Next.Date)
	}

	b.WriteString(headerStyle.Render("Model performance insights"))
	b.WriteString("\n")
	for _, in := range v.Insights {
		mark, style := "-", subtleStyle
		switch {
		case in.Met == nil:
		case *in.Met:
			mark, style = "✓", upStyle
		default:
			mark, style = "✗", downStyle
		}
		fmt.Fprintf(&b, "  %s %-26s %s\n", style.Render(mark), in.Rule, in.Message)
	}

	b.WriteString(headerStyle.Render("Actual vs predicted"))
	b.WriteString("\n")
	for _, p := range tail(v.Series, seriesTail) {
		actual := dashboard.NotAvailable
		if p.Actual != nil {
			actual = dashboard.FormatMoney(*p.Actual)
		}
		fmt.Fprintf(&b, "  %s  %12s  %12s\n", p.Date, actual, dashboard.FormatMoney(p.Predicted))
	}
	b.WriteString(subtleStyle.Render(fmt.Sprintf("%s (%d observations)", v.Note, v.Observations)))
	return b.String()
}

func renderReports(resp *httpapi.ReportsResponse) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(resp.Ticker + " reports"))
	b.WriteString("\n")
	if len(resp.Reports) == 0 {
		b.WriteString("No reports recorded.")
		return b.String()
	}
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-20s  %-11s  %-23s  %6s  %s", "CREATED", "KIND", "RANGE", "ROWS", "METRICS")))
	b.WriteString("\n")
	for _, r := range resp.Reports {
		rng := orOpen(r.Start) + ".." + orOpen(r.End)
		fmt.Fprintf(&b, "%-20s  %-11s  %-23s  %6d  %s\n", r.CreatedAt, r.Kind, rng, r.Count, reportMetrics(r))
	}
	return strings.TrimRight(b.String(), "\n")
}

func reportMetrics(r httpapi.ReportJSON) string {
	if r.Kind == "prices" {
		return fmt.Sprintf("low %s  mean %s  high %s",
			optMoney(r.Min), optMoney(r.Mean), optMoney(r.Max))
	}
	s := fmt.Sprintf("mae %s  dir %s  corr %s",
		optMoney(r.MeanAbsoluteError),
		dashboard.FormatOptional(r.DirectionAccuracy, dashboard.FormatPercent),
		dashboard.FormatOptional(r.Correlation, dashboard.FormatRatio))
	if r.NextDate != nil && r.NextPrice != nil {
		s += fmt.Sprintf("  next %s %s", *r.NextDate, dashboard.FormatMoney(*r.NextPrice))
	}
	return s
}

func optMoney(v *float64) string {
	return dashboard.FormatOptional(v, dashboard.FormatMoney)
}

func orOpen(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

func tail[T any](xs []T, n int) []T {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}
