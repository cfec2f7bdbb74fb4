package extractor

import (
	"regexp"
	"strings"
)

const defaultHomeCurrency = "INR"

// TextExtractor scans pdftotext output for CODE/HOME markers. The first number
// after a marker is the TT buying rate in the statement layout.
type TextExtractor struct {
	home    string
	pattern *regexp.Regexp
}

// NewTextExtractor builds a scanner for pairs quoted against home.
func NewTextExtractor(home string) *TextExtractor {
	home = strings.ToUpper(strings.TrimSpace(home))
	if home == "" {
		home = defaultHomeCurrency
	}
	return &TextExtractor{
		home:    home,
		pattern: regexp.MustCompile(`\b([A-Z]{3})/` + regexp.QuoteMeta(home) + `\b`),
	}
}

// Extract implements Extractor.
func (e *TextExtractor) Extract(raw string) Rates {
	rates := Rates{}
	text := strings.ToUpper(raw)
	if strings.TrimSpace(text) == "" {
		return rates
	}

	matches := e.pattern.FindAllStringSubmatchIndex(text, -1)
	for i, m := range matches {
		code := text[m[2]:m[3]]
		if !IsAllowed(code) {
			continue
		}

		// The window ends at the next marker, allowed or not.
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}

		rate, ok := parseNumber(text[m[1]:end])
		if !ok || rate.IsNegative() {
			continue
		}
		rates[code] = NormalizeRate(code, rate)
	}

	return rates
}

var _ Extractor = (*TextExtractor)(nil)
