package app

import (
	"context"
	"fmt"
	"os"

	"tt-rates-dataset/internal/extractor"
)

// ExtractOptions configure a one-off extraction.
type ExtractOptions struct {
	Path   string
	Format string
	Raw    bool
}

// ExtractResult is printed by Extract.
type ExtractResult struct {
	Path   string           `json:"path"`
	Format extractor.Format `json:"format"`
	Rates  extractor.Rates  `json:"rates"`
}

// Extract converts (unless Raw) and parses a single local document.
func (a *App) Extract(ctx context.Context, opts ExtractOptions) error {
	format, err := extractor.ParseFormat(opts.Format)
	if err != nil {
		return err
	}

	var raw string
	if opts.Raw {
		content, err := os.ReadFile(opts.Path)
		if err != nil {
			return fmt.Errorf("read %s: %w", opts.Path, err)
		}
		raw = string(content)
	} else {
		toolFormat := format
		if toolFormat == extractor.FormatAuto {
			toolFormat = a.Config.ConverterFormat()
		}
		raw, format, err = a.newConverter(toolFormat, a.Logger).Convert(ctx, opts.Path)
		if err != nil {
			return err
		}
	}

	rates, used := a.newExtractors().Extract(raw, format)
	if rates == nil {
		rates = extractor.Rates{}
	}
	a.Logger.Debug().Str("path", opts.Path).Str("format", string(used)).Int("currencies", len(rates)).Msg("extracted")

	return a.printJSON(ExtractResult{Path: opts.Path, Format: used, Rates: rates})
}
