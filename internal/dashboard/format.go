package dashboard

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// NotAvailable is shown for metrics that could not be computed.
const NotAvailable = "n/a"

// FormatInt formats an integer with comma separators.
func FormatInt(n int64) string {
	s := strconv.FormatInt(n, 10)
	if digits, ok := strings.CutPrefix(s, "-"); ok {
		return "-" + groupDigits(digits)
	}
	return groupDigits(s)
}

// FormatMoney formats a dollar amount as "$1,234.56", rounding cents half
// away from zero. Negative amounts render as "-$3.00".
func FormatMoney(v float64) string {
	if !finite(v) {
		return NotAvailable
	}
	d := decimal.NewFromFloat(v).Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	return sign + "$" + groupFixed(d, 2)
}

// FormatDelta formats a signed dollar change as "+$3.00" or "-$3.00". A
// change that rounds to zero has no sign.
func FormatDelta(v float64) string {
	if !finite(v) {
		return NotAvailable
	}
	d := decimal.NewFromFloat(v).Round(2)
	if d.IsPositive() {
		return "+" + FormatMoney(v)
	}
	if d.IsZero() {
		return "$0.00"
	}
	return FormatMoney(v)
}

// FormatPercent formats a fraction as a percentage with one decimal,
// e.g. 0.5 -> "50.0%".
func FormatPercent(v float64) string {
	if !finite(v) {
		return NotAvailable
	}
	return decimal.NewFromFloat(v).Mul(decimal.New(100, 0)).StringFixed(1) + "%"
}

// FormatRatio formats a coefficient with two decimals, e.g. "0.97".
func FormatRatio(v float64) string {
	if !finite(v) {
		return NotAvailable
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

// FormatOptional applies format to *v, or returns NotAvailable for nil.
func FormatOptional(v *float64, format func(float64) string) string {
	if v == nil {
		return NotAvailable
	}
	return format(*v)
}

// groupFixed renders a non-negative decimal with places decimals and comma
// separators in the integer part.
func groupFixed(d decimal.Decimal, places int32) string {
	intPart, frac, _ := strings.Cut(d.StringFixed(places), ".")
	out := groupDigits(intPart)
	if frac != "" {
		out += "." + frac
	}
	return out
}

// groupDigits inserts a comma every three digits from the right.
func groupDigits(s string) string {
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
