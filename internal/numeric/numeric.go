// Package numeric holds the small normalization helpers shared by the quote and
// allocation code: suffix comparison, non-negative clamping and cent rounding.
package numeric

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Tolerance is the smallest difference treated as a material change between two
// money or hour values.
const Tolerance = 0.01

// NormalizeSuffix strips surrounding whitespace and any leading separator so
// that "01" and "-01" name the same variant.
func NormalizeSuffix(suffix string) string {
	return strings.TrimLeft(strings.TrimSpace(suffix), "-")
}

// SameSuffix reports whether two variant suffixes denote the same variant.
func SameSuffix(a, b string) bool {
	return NormalizeSuffix(a) == NormalizeSuffix(b)
}

// SafeQuantity clamps negative and non-finite values to zero.
func SafeQuantity(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// ParseQuantity reads a free-form quantity string such as "12", " 4.5 " or
// "10 pcs". Anything unparseable yields zero.
func ParseQuantity(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if fields := strings.Fields(raw); len(fields) > 0 {
		raw = fields[0]
	}
	raw = strings.ReplaceAll(raw, ",", "")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return SafeQuantity(v)
}
