package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"

	"tt-rates-dataset/internal/dataset"
	"tt-rates-dataset/internal/selector"
)

// ExportOptions select which series to export and where.
type ExportOptions struct {
	Currency string
	CSVPath  string
	From     string
	To       string
}

type exportRow struct {
	Currency string `csv:"currency"`
	Date     string `csv:"date"`
	Rate     string `csv:"rate"`
}

// Export writes one series, or every series in long form, as CSV.
func (a *App) Export(_ context.Context, opts ExportOptions) error {
	for _, bound := range []string{opts.From, opts.To} {
		if bound != "" && !selector.IsISODate(bound) {
			return fmt.Errorf("date bound must be YYYY-MM-DD, got %q", bound)
		}
	}
	if opts.From != "" && opts.To != "" && opts.From > opts.To {
		return errors.New("from must not be after to")
	}

	store := a.newFileStore(a.Logger)

	codes := []string{strings.ToUpper(strings.TrimSpace(opts.Currency))}
	if codes[0] == "" {
		all, err := store.SeriesCodes()
		if err != nil {
			return err
		}
		codes = all
	}

	rows := make([]exportRow, 0)
	for _, code := range codes {
		points, err := store.ReadSeries(code)
		if err != nil {
			return fmt.Errorf("read series %s: %w", code, err)
		}
		for _, point := range filterPoints(points, opts.From, opts.To) {
			rows = append(rows, exportRow{Currency: code, Date: point.Date, Rate: point.Rate.String()})
		}
	}

	a.Logger.Info().Int("currencies", len(codes)).Int("rows", len(rows)).Msg("exporting series")

	if opts.CSVPath == "" {
		return gocsv.Marshal(&rows, a.Out)
	}
	return writeRowsCSV(opts.CSVPath, rows)
}

// filterPoints keeps points with from <= date <= to; empty bounds are open.
func filterPoints(points []dataset.Point, from, to string) []dataset.Point {
	out := make([]dataset.Point, 0, len(points))
	for _, point := range points {
		if from != "" && point.Date < from {
			continue
		}
		if to != "" && point.Date > to {
			continue
		}
		out = append(out, point)
	}
	return out
}

func writeRowsCSV(path string, rows []exportRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := gocsv.Marshal(&rows, file); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
