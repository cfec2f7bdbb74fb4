package extractor

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	currencyHeader = regexp.MustCompile(`(?i)currency`)
	ttHeader       = regexp.MustCompile(`(?i)tt`)
	buyingHeader   = regexp.MustCompile(`(?i)buying`)
	buyHeader      = regexp.MustCompile(`(?i)buy`)
	codeCell       = regexp.MustCompile(`\b([A-Z]{3})\b`)
	digitCell      = regexp.MustCompile(`\d`)
)

// TableExtractor reads CSV-like table extractor output whose header position
// and column order vary between documents.
type TableExtractor struct {
	normalize bool
}

// NewTableExtractor builds a table scanner. When normalize is set, per-100
// currencies are converted the same way the text scanner converts them.
func NewTableExtractor(normalize bool) *TableExtractor {
	return &TableExtractor{normalize: normalize}
}

// Extract implements Extractor.
func (e *TableExtractor) Extract(raw string) Rates {
	rates := Rates{}
	rows := splitRows(raw)
	if len(rows) == 0 {
		return rates
	}

	codeCol, buyCol := 0, -1
	data := rows
	if idx := findHeader(rows, 1); idx >= 0 {
		codeCol, buyCol = resolveColumns(rows[idx])
		data = rows[idx+1:]
	}

	for _, row := range data {
		cells := unquoteCells(row)
		code, ok := rowCode(cells, codeCol)
		if !ok {
			continue
		}
		rate, ok := rowRate(cells, buyCol)
		if !ok || rate.IsNegative() {
			continue
		}
		if e.normalize {
			rate = NormalizeRate(code, rate)
		}
		rates[code] = rate
	}

	return rates
}

// findHeader returns the index of the first row holding both a currency cell
// and a TT/buying cell, or -1. Rows with fewer than minCells cells are skipped.
func findHeader(rows [][]string, minCells int) int {
	for i, row := range rows {
		if len(row) < minCells {
			continue
		}
		if anyCell(row, currencyHeader.MatchString) &&
			anyCell(row, func(c string) bool { return ttHeader.MatchString(c) || buyingHeader.MatchString(c) }) {
			return i
		}
	}
	return -1
}

func resolveColumns(header []string) (codeCol, buyCol int) {
	codeCol, buyCol = -1, -1
	for i, cell := range header {
		if codeCol < 0 && currencyHeader.MatchString(cell) {
			codeCol = i
		}
		if buyCol < 0 && ttHeader.MatchString(cell) && buyHeader.MatchString(cell) {
			buyCol = i
		}
	}
	if codeCol < 0 {
		codeCol = 0
	}
	return codeCol, buyCol
}

func rowCode(cells []string, codeCol int) (string, bool) {
	if len(cells) == 0 {
		return "", false
	}
	if codeCol < len(cells) {
		if m := codeCell.FindStringSubmatch(cells[codeCol]); m != nil {
			return m[1], true
		}
	}
	if m := codeCell.FindStringSubmatch(cells[0]); m != nil {
		return m[1], true
	}
	return "", false
}

func rowRate(cells []string, buyCol int) (decimal.Decimal, bool) {
	if buyCol >= 0 {
		if buyCol >= len(cells) {
			return decimal.Decimal{}, false
		}
		return parseNumber(cells[buyCol])
	}
	for _, cell := range cells {
		if digitCell.MatchString(cell) {
			return parseNumber(cell)
		}
	}
	return decimal.Decimal{}, false
}

func anyCell(row []string, match func(string) bool) bool {
	for _, cell := range row {
		if match(cell) {
			return true
		}
	}
	return false
}

func unquoteCells(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		cell = strings.TrimSpace(cell)
		cell = strings.TrimPrefix(cell, `"`)
		cell = strings.TrimSuffix(cell, `"`)
		out[i] = strings.TrimSpace(cell)
	}
	return out
}

// splitRows parses every non-empty line of raw into fields.
func splitRows(raw string) [][]string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rows = append(rows, splitLine(line, ','))
	}
	return rows
}

// splitLine splits one delimited line. Quoted fields may contain the
// delimiter and a doubled quote inside quotes is a literal quote.
func splitLine(line string, delim rune) []string {
	var (
		fields   []string
		cur      strings.Builder
		inQuotes bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				cur.WriteRune('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case ch == delim && !inQuotes:
			fields = append(fields, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(ch)
		}
	}
	return append(fields, strings.TrimSpace(cur.String()))
}

var _ Extractor = (*TableExtractor)(nil)
