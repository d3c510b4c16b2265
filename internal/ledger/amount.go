package ledger

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	amountCharsRe  = regexp.MustCompile(`[^0-9.,-]`)
	amountPrefixRe = regexp.MustCompile(`^-?(\d+(\.\d*)?|\.\d+)`)
)

// ParseAmount converts a locale formatted amount ("1.234,56", "1,234.56", "12,50 €")
// into a number. It never fails: anything it cannot read is 0.
//
// When both separators appear, whichever comes last is the decimal separator.
// A lone comma is always read as decimal, so "1,000" is 1.
func ParseAmount(raw string) float64 {
	clean := amountCharsRe.ReplaceAllString(raw, "")

	lastComma := strings.LastIndex(clean, ",")
	lastDot := strings.LastIndex(clean, ".")

	switch {
	case lastComma > -1 && lastDot > -1:
		if lastComma > lastDot {
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case lastComma > -1:
		clean = strings.Replace(clean, ",", ".", 1)
	}

	// Only the leading numeric part counts, trailing junk like "12.50-" is ignored
	prefix := amountPrefixRe.FindString(clean)
	if prefix == "" {
		return 0
	}
	value, err := strconv.ParseFloat(prefix, 64)
	if err != nil {
		return 0
	}
	return value
}

// ComputeTotal sums the parsed amount of every record in order
func ComputeTotal(records []*Record) float64 {
	var total float64
	for _, r := range records {
		total += ParseAmount(r.Amount)
	}
	return total
}

// FormatTotal renders a total with exactly two decimal digits. Halves round away
// from zero on the shortest decimal form of total, so 1.005 renders as "1.01".
// Totals that overflowed render as "Infinity" or "-Infinity".
func FormatTotal(total float64) string {
	switch {
	case math.IsInf(total, 1):
		return "Infinity"
	case math.IsInf(total, -1):
		return "-Infinity"
	case math.IsNaN(total):
		return "NaN"
	}
	return decimal.NewFromFloat(total).StringFixed(2)
}
