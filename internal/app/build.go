package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"tt-rates-dataset/internal/extractor"
	"tt-rates-dataset/internal/selector"
	"tt-rates-dataset/internal/service"
)

// BuildOptions override the configured run parameters. Zero values keep the config.
type BuildOptions struct {
	Mode      string
	StartDate string
	MaxFiles  *int
	Format    string
}

// Build runs one dataset build and prints its summary as JSON.
func (a *App) Build(ctx context.Context, opts BuildOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mode, startDate, maxFiles, format, err := a.resolveBuild(opts)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := a.Logger.With().Str("run_id", runID).Logger()

	store := a.newFileStore(logger)
	if err := store.Init(); err != nil {
		return err
	}

	mirror, closeMirror, err := a.openMirror(ctx)
	if err != nil {
		return err
	}
	if closeMirror != nil {
		defer closeMirror()
	}

	client := a.newUpstream(logger)
	deps := service.Dependencies{
		Discoverer: client,
		Fetcher:    client,
		Converter:  a.newConverter(format, logger),
		Extractors: a.newExtractors(),
		Records:    store,
		Dataset:    store,
	}
	if mirror != nil {
		deps.Mirror = mirror
		deps.Locker = mirror
	} else {
		logger.Debug().Msg("database.dsn not configured; mirror disabled")
	}

	svc := service.New(deps, service.Options{
		RunID:               runID,
		Mode:                mode,
		StartDate:           startDate,
		MaxFiles:            maxFiles,
		Repo:                a.Config.Upstream.Repo,
		Ref:                 a.Config.Upstream.Ref,
		KeepScratch:         a.Config.Paths.KeepTmp,
		TabularHundredUnits: a.Config.Extract.TabularHundredUnits,
		LockKey:             a.Config.Database.AdvisoryLockKey,
	}, logger)

	summary, err := svc.Run(ctx)
	if err != nil {
		return err
	}

	if err := a.printJSON(summary); err != nil {
		return err
	}

	if notifier := a.newNotifier(logger); notifier != nil {
		if err := notifier.Notify(ctx, summary); err != nil {
			logger.Error().Err(err).Msg("failed to send run summary")
		}
	}
	return nil
}

func (a *App) resolveBuild(opts BuildOptions) (selector.Mode, string, int, extractor.Format, error) {
	mode := a.Config.RunMode()
	if opts.Mode != "" {
		parsed, err := selector.ParseMode(opts.Mode)
		if err != nil {
			return "", "", 0, "", err
		}
		mode = parsed
	}

	startDate := a.Config.Run.StartDate
	if opts.StartDate != "" {
		startDate = opts.StartDate
	}
	if err := selector.ValidateStartDate(startDate); err != nil {
		return "", "", 0, "", err
	}

	maxFiles := a.Config.Run.MaxFiles
	if opts.MaxFiles != nil {
		maxFiles = *opts.MaxFiles
	}
	if maxFiles < 0 {
		return "", "", 0, "", fmt.Errorf("max files cannot be negative, got %d", maxFiles)
	}

	format := a.Config.ConverterFormat()
	if opts.Format != "" {
		parsed, err := extractor.ParseFormat(opts.Format)
		if err != nil || parsed == extractor.FormatAuto {
			return "", "", 0, "", fmt.Errorf("format must be text or table, got %q", opts.Format)
		}
		format = parsed
	}

	return mode, startDate, maxFiles, format, nil
}

func (a *App) printJSON(v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(a.Out, string(payload))
	return err
}
