package app

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"

	"tt-rates-dataset/internal/config"
	"tt-rates-dataset/internal/converter"
	"tt-rates-dataset/internal/extractor"
	"tt-rates-dataset/internal/logging"
	"tt-rates-dataset/internal/notify"
	"tt-rates-dataset/internal/storage"
	"tt-rates-dataset/internal/upstream"
	"tt-rates-dataset/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app"), Out: os.Stdout}
}

func (a *App) newUpstream(logger zerolog.Logger) *upstream.Client {
	cfg := a.Config.Upstream
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent(a.Config.App.Name)
	}
	return upstream.New(upstream.Options{
		Repo:       cfg.Repo,
		Ref:        cfg.Ref,
		APIBase:    cfg.APIBase,
		RawBase:    cfg.RawBase,
		Timeout:    cfg.RequestTimeout,
		UserAgent:  userAgent,
		Retries:    cfg.Retries,
		Backoff:    cfg.RetryBackoff,
		ScratchDir: a.Config.Paths.TmpDir,
	}, logger)
}

func (a *App) newConverter(format extractor.Format, logger zerolog.Logger) *converter.Exec {
	cfg := a.Config.Converter
	return converter.New(converter.Options{
		Format:       format,
		PDFToTextBin: cfg.PDFToTextBin,
		JavaBin:      cfg.JavaBin,
		TabulaJar:    cfg.TabulaJar,
		Timeout:      cfg.Timeout,
	}, logger)
}

func (a *App) newExtractors() *extractor.Set {
	return extractor.New(extractor.Options{
		HomeCurrency:        a.Config.Extract.HomeCurrency,
		TabularHundredUnits: a.Config.Extract.TabularHundredUnits,
	})
}

func (a *App) newNotifier(logger zerolog.Logger) notify.Notifier {
	if a.Config.Notify.Telegram.Enabled {
		cfg := a.Config.Notify.Telegram
		return notify.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, logger)
	}
	return nil
}

func (a *App) newFileStore(logger zerolog.Logger) *storage.FileStore {
	return storage.NewFileStore(a.Config.Paths.DataDir, logger)
}

func (a *App) openMirror(ctx context.Context) (*storage.Mirror, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	mirror, err := storage.OpenMirror(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return mirror, mirror.Close, nil
}
