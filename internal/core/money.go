package core

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MaxAmountPlaces is the finest fraction an amount may carry.
	MaxAmountPlaces = 4
	// maxExponent bounds exponent notation such as "1e999" at parse time.
	maxExponent = 64
)

// MaxAmount is the exclusive upper bound of an amount. Together with
// MaxAmountPlaces it keeps amounts within 15 significant digits, which a
// float64 REAL column stores and returns unchanged.
var MaxAmount = decimal.New(1, 11)

// ParseAmount parses a user supplied amount. Both "12.50" and "12,50" are
// accepted. It rejects anything that is not a decimal number with a modest
// exponent; range checks belong to Validate.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if exp := d.Exponent(); exp > maxExponent || exp < -maxExponent {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// AmountInRange reports whether d fits MaxAmount and MaxAmountPlaces.
func AmountInRange(d decimal.Decimal) bool {
	return d.Abs().LessThan(MaxAmount) && d.Equal(d.Round(MaxAmountPlaces))
}

// ParseAmountValue is ParseAmount for values decoded from JSON, where the
// client may send either a number or a string.
func ParseAmountValue(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case json.Number:
		return ParseAmount(x.String())
	case float64:
		if math.IsInf(x, 0) || math.IsNaN(x) {
			return decimal.Zero, ErrInvalidAmount
		}
		return decimal.NewFromFloat(x), nil
	case string:
		return ParseAmount(x)
	default:
		return decimal.Zero, ErrInvalidAmount
	}
}

// AmountOrZero converts a loosely typed stored value to an amount. Missing,
// non-numeric and non-finite values count as zero so that one bad row never
// breaks a report.
func AmountOrZero(v any) decimal.Decimal {
	switch x := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return x
	case float64:
		if math.IsInf(x, 0) || math.IsNaN(x) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(x)
	case float32:
		if math.IsInf(float64(x), 0) || math.IsNaN(float64(x)) {
			return decimal.Zero
		}
		return decimal.NewFromFloat32(x)
	case int64:
		return decimal.NewFromInt(x)
	case int:
		return decimal.NewFromInt(int64(x))
	case []byte:
		return AmountOrZero(string(x))
	case string:
		d, err := ParseAmount(x)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}
