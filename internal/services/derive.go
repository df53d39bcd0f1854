package services

import (
	"math"
	"strconv"
	"strings"

	"sales-dashboard/internal/models"
)

// coercion is the outcome of reading one numeric cell.
type coercion int

const (
	coerced coercion = iota
	// notNumeric covers blank and unparseable cells.
	notNumeric
	// outOfRange covers numbers that are not a usable price or volume:
	// negatives, fractional volumes and values too large to hold.
	outOfRange
)

// DeriveRevenue sets Revenue = Price * SalesVolume on every record in place.
// Callers pass records they own; inputs are already validated numerics.
func DeriveRevenue(records []models.Record) {
	for i := range records {
		records[i].Revenue = records[i].Price * float64(records[i].SalesVolume)
	}
}

// parsePrice coerces a price cell. Prices must be finite and non-negative.
func parsePrice(s string) (float64, coercion) {
	v, ok := parseNumber(s)
	switch {
	case !ok:
		return 0, notNumeric
	case math.IsInf(v, 0) || v < 0:
		return 0, outOfRange
	}
	return v, coerced
}

// parseVolume coerces a sales volume cell. Values must be whole,
// non-negative and below 2^63; "12.0" is accepted as 12.
func parseVolume(s string) (int64, coercion) {
	v, ok := parseNumber(s)
	switch {
	case !ok:
		return 0, notNumeric
	case math.IsInf(v, 0) || v < 0 || v != math.Trunc(v) || v >= math.MaxInt64:
		// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
		return 0, outOfRange
	}
	return int64(v), coerced
}

// parseNumber reads a decimal cell. Overflowing literals such as "1e400"
// parse as infinities and are left to the caller's range check.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && !math.IsInf(v, 0) {
		return 0, false
	}
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
