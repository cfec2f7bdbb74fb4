package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"tt-rates-dataset/internal/converter"
	"tt-rates-dataset/internal/dataset"
	"tt-rates-dataset/internal/extractor"
	"tt-rates-dataset/internal/selector"
	"tt-rates-dataset/internal/storage"
	"tt-rates-dataset/internal/upstream"
)

var (
	// ErrNoRates marks a date whose every candidate yielded nothing.
	ErrNoRates = errors.New("no rates extracted")
	// ErrLocked is returned when another build holds the advisory lock.
	ErrLocked = errors.New("another build holds the dataset lock")
)

// Options carry the per-run parameters.
type Options struct {
	RunID               string
	Mode                selector.Mode
	StartDate           string
	MaxFiles            int
	Repo                string
	Ref                 string
	KeepScratch         bool
	TabularHundredUnits bool
	LockKey             int64
}

// Dependencies are the collaborators a build needs. Mirror and Locker are optional.
type Dependencies struct {
	Discoverer upstream.Discoverer
	Fetcher    upstream.Fetcher
	Converter  converter.Converter
	Extractors *extractor.Set
	Records    storage.RecordStore
	Dataset    storage.DatasetWriter
	Mirror     storage.RateMirror
	Locker     storage.AdvisoryLocker
}

// Summary is printed once a build finishes.
type Summary struct {
	RunID             string   `json:"runId"`
	Mode              string   `json:"mode"`
	UpstreamRepo      string   `json:"upstreamRepo"`
	UpstreamRef       string   `json:"upstreamRef"`
	StartDate         *string  `json:"startDate"`
	MaxFiles          int      `json:"maxFiles"`
	ProcessedNewDates int      `json:"processedNewDates"`
	FailedDates       []string `json:"failedDates"`
	TotalDates        int      `json:"totalDates"`
	Currencies        int      `json:"currencies"`
	RemovedCurrencies []string `json:"removedCurrencies"`
	LastProcessedDate *string  `json:"lastProcessedDate"`
}

// Service orchestrates discovery, extraction, persistence, and rebuild.
type Service struct {
	deps   Dependencies
	opts   Options
	logger zerolog.Logger
}

// New constructs the build service.
func New(deps Dependencies, opts Options, logger zerolog.Logger) *Service {
	if opts.Mode == "" {
		opts.Mode = selector.ModeIncremental
	}
	if deps.Extractors == nil {
		deps.Extractors = extractor.New(extractor.Options{TabularHundredUnits: opts.TabularHundredUnits})
	}
	return &Service{
		deps:   deps,
		opts:   opts,
		logger: logger.With().Str("component", "service").Logger(),
	}
}

// Run executes one build and returns its summary.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	if err := selector.ValidateStartDate(s.opts.StartDate); err != nil {
		return Summary{}, err
	}

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return Summary{}, err
	}
	if !proceed {
		return Summary{}, ErrLocked
	}
	if unlock != nil {
		defer unlock()
	}

	return s.execute(ctx)
}

func (s *Service) execute(ctx context.Context) (Summary, error) {
	started := time.Now()

	records, err := s.deps.Records.LoadAll()
	if err != nil {
		return Summary{}, fmt.Errorf("load records: %w", err)
	}
	highWater := records.HighWater()

	catalog, err := s.deps.Discoverer.Discover(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("discover documents: %w", err)
	}

	targets, err := selector.Select(catalog, selector.Options{
		Mode:      s.opts.Mode,
		HighWater: highWater,
		StartDate: s.opts.StartDate,
		MaxFiles:  s.opts.MaxFiles,
	})
	if err != nil {
		return Summary{}, err
	}

	s.logger.Info().
		Str("mode", string(s.opts.Mode)).
		Str("high_water", highWater).
		Int("discovered", len(catalog)).
		Int("targets", len(targets)).
		Msg("build started")

	failed := make([]string, 0)
	for _, date := range targets {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}

		record, err := s.ProcessDate(ctx, date, catalog.Candidates(date))
		if err != nil {
			s.logger.Error().Err(err).Str("date", date).Msg("date skipped")
			failed = append(failed, date)
			continue
		}
		if err := s.deps.Records.Save(record); err != nil {
			s.logger.Error().Err(err).Str("date", date).Msg("failed to persist record")
			failed = append(failed, date)
			continue
		}
		records[date] = record

		if s.deps.Mirror != nil {
			if err := s.deps.Mirror.UpsertDateRecord(ctx, record); err != nil {
				s.logger.Error().Err(err).Str("date", date).Msg("failed to mirror record")
			}
		}

		s.logger.Info().
			Str("date", date).
			Str("source", record.SourcePath).
			Int("currencies", len(record.Rates)).
			Msg("date recorded")
	}

	series, latest := dataset.Rebuild(records)
	if err := s.deps.Dataset.WriteSeries(series); err != nil {
		return Summary{}, fmt.Errorf("write series: %w", err)
	}
	removed, err := s.deps.Dataset.PruneSeries(series)
	if err != nil {
		return Summary{}, fmt.Errorf("prune series: %w", err)
	}
	if err := s.deps.Dataset.WriteLatest(latest); err != nil {
		return Summary{}, fmt.Errorf("write latest: %w", err)
	}
	if removed == nil {
		removed = []string{}
	}

	if s.deps.Mirror != nil {
		if n, err := s.deps.Mirror.PruneCurrencies(ctx, series.Codes()); err != nil {
			s.logger.Error().Err(err).Msg("failed to prune mirrored currencies")
		} else if n > 0 {
			s.logger.Info().Int64("rows", n).Msg("pruned mirrored currencies")
		}
	}

	summary := Summary{
		RunID:             s.opts.RunID,
		Mode:              string(s.opts.Mode),
		UpstreamRepo:      s.opts.Repo,
		UpstreamRef:       s.opts.Ref,
		StartDate:         optional(s.opts.StartDate),
		MaxFiles:          s.opts.MaxFiles,
		ProcessedNewDates: len(targets),
		FailedDates:       failed,
		TotalDates:        len(records),
		Currencies:        len(latest),
		RemovedCurrencies: removed,
		LastProcessedDate: optional(records.HighWater()),
	}

	s.logger.Info().
		Int("processed", summary.ProcessedNewDates).
		Int("failed", len(failed)).
		Int("total_dates", summary.TotalDates).
		Int("currencies", summary.Currencies).
		Dur("took", time.Since(started)).
		Msg("build finished")

	return summary, nil
}

// ProcessDate tries each candidate in order and returns the first non-empty record.
func (s *Service) ProcessDate(ctx context.Context, date string, candidates []string) (dataset.DateRecord, error) {
	if len(candidates) == 0 {
		return dataset.DateRecord{}, fmt.Errorf("%s: no candidate documents: %w", date, ErrNoRates)
	}

	for _, path := range candidates {
		rates, err := s.extractDocument(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return dataset.DateRecord{}, ctx.Err()
			}
			s.logger.Warn().Err(err).Str("date", date).Str("path", path).Msg("candidate failed")
			continue
		}
		if len(rates) == 0 {
			s.logger.Warn().Str("date", date).Str("path", path).Msg("no rates parsed")
			continue
		}
		return dataset.DateRecord{Date: date, SourcePath: path, Rates: rates}, nil
	}

	return dataset.DateRecord{}, fmt.Errorf("%s: all %d candidates failed: %w", date, len(candidates), ErrNoRates)
}

func (s *Service) extractDocument(ctx context.Context, path string) (extractor.Rates, error) {
	local, err := s.deps.Fetcher.Fetch(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if !s.opts.KeepScratch {
		defer func() {
			if err := os.Remove(local); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.logger.Debug().Err(err).Str("file", local).Msg("failed to remove scratch file")
			}
		}()
	}

	raw, format, err := s.deps.Converter.Convert(ctx, local)
	if err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}

	rates, used := s.deps.Extractors.Extract(raw, format)
	if used == extractor.FormatTable && !s.opts.TabularHundredUnits {
		for _, code := range rates.Codes() {
			if extractor.IsHundredUnit(code) {
				s.logger.Warn().Str("path", path).Str("currency", code).
					Msg("tabular rate kept per 100 units; set extract.tabular_hundred_units to normalise")
			}
		}
	}
	return rates, nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
