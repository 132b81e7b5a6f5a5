// Package money centralizes the float64<->decimal.Decimal conversion
// at the persistence boundary (spec.md §9: float-for-money is fine in
// computation, never as the binary representation written to a
// table). Computation throughout the pipeline stays in float64, the
// way the teacher does it; only storage/results.go and
// storage/positions.go call these.
package money

import "github.com/shopspring/decimal"

// ToString renders f as a fixed-precision decimal string suitable for
// a TEXT column. 8 places covers tick/step precision on any linear
// perpetual traded on the venue.
func ToString(f float64) string {
	return decimal.NewFromFloat(f).Round(8).String()
}

// FromString parses a column value back into float64 for computation.
// An empty or malformed string yields 0 rather than erroring — a
// missing monetary field is a data gap, not a parse failure to
// propagate as a hard error.
func FromString(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}
