package extractor

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Currencies published by the source. Anything else matching CODE/HOME is
// treated as noise.
var allowedCodes = map[string]struct{}{
	"USD": {}, "AED": {}, "AUD": {}, "BDT": {}, "BHD": {}, "CAD": {}, "CHF": {}, "CNY": {},
	"DKK": {}, "EUR": {}, "GBP": {}, "HKD": {}, "IDR": {}, "JPY": {}, "KES": {}, "KRW": {},
	"KWD": {}, "LKR": {}, "MYR": {}, "NOK": {}, "NZD": {}, "OMR": {}, "PKR": {}, "QAR": {},
	"RUB": {}, "SAR": {}, "SEK": {}, "SGD": {}, "THB": {}, "TRY": {}, "ZAR": {},
}

// Currencies quoted per 100 units in the free-text layout.
var hundredUnitCodes = map[string]struct{}{
	"JPY": {}, "IDR": {}, "THB": {}, "KRW": {},
}

var (
	hundred       = decimal.NewFromInt(100)
	numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

// ratePlaces is the precision kept after per-100 normalization.
const ratePlaces = 6

// IsAllowed reports whether code is a currency the source publishes.
func IsAllowed(code string) bool {
	_, ok := allowedCodes[code]
	return ok
}

// IsHundredUnit reports whether code is quoted per 100 units.
func IsHundredUnit(code string) bool {
	_, ok := hundredUnitCodes[code]
	return ok
}

// NormalizeRate converts a per-100 quote into a per-unit rate.
func NormalizeRate(code string, rate decimal.Decimal) decimal.Decimal {
	if IsHundredUnit(code) {
		return rate.Div(hundred).Round(ratePlaces)
	}
	return rate
}

// parseNumber strips thousands separators and returns the first
// decimal-number substring of raw.
func parseNumber(raw string) (decimal.Decimal, bool) {
	if raw == "" {
		return decimal.Decimal{}, false
	}
	match := numberPattern.FindString(strings.ReplaceAll(raw, ",", ""))
	if match == "" {
		return decimal.Decimal{}, false
	}
	value, err := decimal.NewFromString(match)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return value, true
}
