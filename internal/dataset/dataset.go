// Package dataset defines the stored per-date records and the views derived
// from them.
package dataset

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// Rates are published as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// DateRecord is the durable unit of extracted data, one per publication date.
type DateRecord struct {
	Date       string                     `json:"date"`
	SourcePath string                     `json:"sourcePath"`
	Rates      map[string]decimal.Decimal `json:"rates"`
}

// Valid reports whether r may be persisted.
func (r DateRecord) Valid() bool {
	return r.Date != "" && len(r.Rates) > 0
}

// Point is one observation in a currency series.
type Point struct {
	Date string          `json:"date"`
	Rate decimal.Decimal `json:"rate"`
}

// Records is the in-memory image of the date record store, keyed by date.
type Records map[string]DateRecord

// Dates returns the stored dates in ascending order.
func (r Records) Dates() []string {
	dates := make([]string, 0, len(r))
	for d := range r {
		dates = append(dates, d)
	}
	slices.Sort(dates)
	return dates
}

// HighWater returns the latest stored date, or "" when empty.
func (r Records) HighWater() string {
	high := ""
	for d := range r {
		if d > high {
			high = d
		}
	}
	return high
}

// Series maps a currency code to its chronologically ordered points.
type Series map[string][]Point

// Codes returns the currency codes in ascending order.
func (s Series) Codes() []string {
	codes := make([]string, 0, len(s))
	for code := range s {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

// Snapshot maps a currency code to its most recent point.
type Snapshot map[string]Point

// Rebuild derives every currency series and the latest snapshot from the full
// record set. It never mutates records.
func Rebuild(records Records) (Series, Snapshot) {
	series := Series{}
	for _, date := range records.Dates() {
		for code, rate := range records[date].Rates {
			series[code] = append(series[code], Point{Date: date, Rate: rate})
		}
	}

	latest := Snapshot{}
	for code, points := range series {
		slices.SortStableFunc(points, func(a, b Point) int { return strings.Compare(a.Date, b.Date) })
		if len(points) > 0 {
			latest[code] = points[len(points)-1]
		}
	}

	return series, latest
}
