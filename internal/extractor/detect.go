package extractor

// minTableFields is the field count a line needs to look like a table row.
const minTableFields = 3

// DetectFormat classifies raw converter output. Text is tabular when it
// carries a multi-column rate header or when most lines split into several
// comma-delimited fields.
func DetectFormat(raw string) Format {
	rows := splitRows(raw)
	if len(rows) == 0 {
		return FormatText
	}
	if findHeader(rows, 2) >= 0 {
		return FormatTable
	}

	wide := 0
	for _, row := range rows {
		if len(row) >= minTableFields {
			wide++
		}
	}
	if wide*2 > len(rows) {
		return FormatTable
	}
	return FormatText
}
