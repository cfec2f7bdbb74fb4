// Package extractor turns converter output into currency → TT buying rate mappings.
package extractor

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Format identifies the shape of converter output.
type Format string

const (
	// FormatAuto asks the extractor to classify the input itself.
	FormatAuto Format = "auto"
	// FormatText is free-form text as produced by pdftotext.
	FormatText Format = "text"
	// FormatTable is CSV-like output as produced by a table extractor.
	FormatTable Format = "table"
)

// ParseFormat validates a user supplied format name.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatText:
		return FormatText, nil
	case FormatTable, "csv", "tabular":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown input format %q (expected auto, text or table)", raw)
	}
}

// Rates maps an upper-case currency code to its TT buying rate.
type Rates map[string]decimal.Decimal

// Codes returns the currency codes present in r.
func (r Rates) Codes() []string {
	codes := make([]string, 0, len(r))
	for code := range r {
		codes = append(codes, code)
	}
	return codes
}

// Extractor produces rates from raw converter output. Implementations never
// fail: unrecognised input yields an empty mapping.
type Extractor interface {
	Extract(raw string) Rates
}

// Options tune both extraction strategies.
type Options struct {
	// HomeCurrency is the quote currency printed after the slash, INR by default.
	HomeCurrency string
	// TabularHundredUnits applies per-100 normalization to table output too.
	TabularHundredUnits bool
}

// Set holds one instance of each strategy and dispatches by format.
type Set struct {
	text  *TextExtractor
	table *TableExtractor
}

// New builds both strategies from opts.
func New(opts Options) *Set {
	return &Set{
		text:  NewTextExtractor(opts.HomeCurrency),
		table: NewTableExtractor(opts.TabularHundredUnits),
	}
}

// For returns the strategy that handles format. FormatAuto inspects raw.
func (s *Set) For(format Format, raw string) (Extractor, Format) {
	if format == FormatAuto || format == "" {
		format = DetectFormat(raw)
	}
	if format == FormatTable {
		return s.table, FormatTable
	}
	return s.text, FormatText
}

// Extract runs the strategy matching format and reports which one was used.
func (s *Set) Extract(raw string, format Format) (Rates, Format) {
	ex, resolved := s.For(format, raw)
	return ex.Extract(raw), resolved
}
