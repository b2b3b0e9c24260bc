package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// fixedThreshold is the smallest price rendered with fixed decimal places.
var fixedThreshold = decimal.RequireFromString("0.001")

const significantDigits = 3

// FormatPrice renders a price as a plain decimal string. Prices at or above
// 0.001 get decimals fixed places, smaller prices get three significant
// digits. The result never uses scientific notation, carries no trailing
// zeros and never ends in a bare ".". A negative decimals panics.
func FormatPrice(price decimal.Decimal, decimals int32) string {
	if decimals < 0 {
		panic(fmt.Sprintf("pricing: negative decimals %d", decimals))
	}
	if price.IsZero() {
		return "0"
	}

	if price.Abs().GreaterThanOrEqual(fixedThreshold) {
		return TrimDecimal(price.StringFixed(decimals))
	}
	return TrimDecimal(price.StringFixed(significantPlaces(price, significantDigits)))
}

// significantPlaces returns the number of fractional places that keep n
// significant digits of d.
func significantPlaces(d decimal.Decimal, n int32) int32 {
	coef := d.Coefficient()
	coef.Abs(coef)
	digits := int32(len(coef.String()))
	order := digits + d.Exponent() - 1
	return max(0, n-1-order)
}

// TrimDecimal strips trailing fractional zeros and a dangling decimal
// point, and left-pads a bare leading "." with "0".
func TrimDecimal(s string) string {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	if s == "" {
		s = "0"
	}
	if neg && s != "0" {
		s = "-" + s
	}
	return s
}
