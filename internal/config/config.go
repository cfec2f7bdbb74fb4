package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"tt-rates-dataset/internal/extractor"
	"tt-rates-dataset/internal/logging"
	"tt-rates-dataset/internal/selector"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Run       RunConfig       `mapstructure:"run"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Converter ConverterConfig `mapstructure:"converter"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// UpstreamConfig locates the repository that publishes the rate PDFs.
type UpstreamConfig struct {
	Repo           string        `mapstructure:"repo"`
	Ref            string        `mapstructure:"ref"`
	APIBase        string        `mapstructure:"api_base"`
	RawBase        string        `mapstructure:"raw_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	Retries        int           `mapstructure:"retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
}

// RunConfig selects which dates a build processes.
type RunConfig struct {
	Mode      string `mapstructure:"mode"`
	MaxFiles  int    `mapstructure:"max_files"`
	StartDate string `mapstructure:"start_date"`
}

// PathsConfig sets where the dataset and scratch files live.
type PathsConfig struct {
	DataDir string `mapstructure:"data_dir"`
	TmpDir  string `mapstructure:"tmp_dir"`
	KeepTmp bool   `mapstructure:"keep_tmp"`
}

// ConverterConfig chooses the PDF conversion tool.
type ConverterConfig struct {
	Format       string        `mapstructure:"format"`
	PDFToTextBin string        `mapstructure:"pdftotext_bin"`
	JavaBin      string        `mapstructure:"java_bin"`
	TabulaJar    string        `mapstructure:"tabula_jar"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ExtractConfig tunes rate extraction.
type ExtractConfig struct {
	HomeCurrency        string `mapstructure:"home_currency"`
	TabularHundredUnits bool   `mapstructure:"tabular_hundred_units"`
}

// DatabaseConfig encapsulates the optional PostgreSQL mirror.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// NotifyConfig routes the run summary.
type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot used for run summaries.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// legacyEnv binds the unprefixed variable names older deployments set.
var legacyEnv = map[string]string{
	"upstream.repo":        "UPSTREAM_REPO",
	"upstream.ref":         "UPSTREAM_REF",
	"run.mode":             "MODE",
	"run.max_files":        "MAX_FILES",
	"run.start_date":       "START_DATE",
	"converter.tabula_jar": "TABULA_JAR",
}

const envPrefix = "TTRATES"

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", legacy, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ttrates")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("upstream.repo", "skbly7/sbi-tt-rates-historical")
	v.SetDefault("upstream.ref", "master")
	v.SetDefault("upstream.api_base", "https://api.github.com")
	v.SetDefault("upstream.raw_base", "https://raw.githubusercontent.com")
	v.SetDefault("upstream.request_timeout", "30s")
	v.SetDefault("upstream.user_agent", "ttrates/1.0")
	v.SetDefault("upstream.retries", 2)
	v.SetDefault("upstream.retry_backoff", "1s")

	v.SetDefault("run.mode", string(selector.ModeIncremental))
	v.SetDefault("run.max_files", 0)
	v.SetDefault("run.start_date", "")

	v.SetDefault("paths.data_dir", "data")
	v.SetDefault("paths.tmp_dir", "tmp")
	v.SetDefault("paths.keep_tmp", false)

	v.SetDefault("converter.format", string(extractor.FormatText))
	v.SetDefault("converter.pdftotext_bin", "pdftotext")
	v.SetDefault("converter.java_bin", "java")
	v.SetDefault("converter.tabula_jar", "vendor/tabula.jar")
	v.SetDefault("converter.timeout", "60s")

	v.SetDefault("extract.home_currency", "INR")
	v.SetDefault("extract.tabular_hundred_units", false)

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock_key", int64(0x74747261))

	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("notify.telegram.timeout", "10s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

func (c *Config) normalize() {
	c.Upstream.Repo = strings.TrimSpace(c.Upstream.Repo)
	c.Upstream.Ref = strings.TrimSpace(c.Upstream.Ref)
	c.Run.Mode = strings.ToLower(strings.TrimSpace(c.Run.Mode))
	c.Run.StartDate = strings.TrimSpace(c.Run.StartDate)
	c.Converter.Format = strings.ToLower(strings.TrimSpace(c.Converter.Format))
	c.Extract.HomeCurrency = strings.ToUpper(strings.TrimSpace(c.Extract.HomeCurrency))
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Upstream.Repo == "" {
		return fmt.Errorf("upstream.repo must be set")
	}
	if c.Upstream.Ref == "" {
		return fmt.Errorf("upstream.ref must be set")
	}
	if c.Upstream.Retries < 0 {
		return fmt.Errorf("upstream.retries cannot be negative")
	}
	if _, err := selector.ParseMode(c.Run.Mode); err != nil {
		return fmt.Errorf("run.mode: %w", err)
	}
	if err := selector.ValidateStartDate(c.Run.StartDate); err != nil {
		return fmt.Errorf("run.start_date: %w", err)
	}
	if format, err := extractor.ParseFormat(c.Converter.Format); err != nil || format == extractor.FormatAuto {
		return fmt.Errorf("converter.format must be text or table, got %q", c.Converter.Format)
	}
	if c.Paths.DataDir == "" {
		return fmt.Errorf("paths.data_dir must be set")
	}
	if c.Paths.TmpDir == "" {
		return fmt.Errorf("paths.tmp_dir must be set")
	}
	if len(c.Extract.HomeCurrency) != 3 {
		return fmt.Errorf("extract.home_currency must be a 3-letter code, got %q", c.Extract.HomeCurrency)
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token must be set")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id must be set")
		}
	}
	return nil
}

// RunMode returns the parsed run mode; Validate guarantees it parses.
func (c *Config) RunMode() selector.Mode {
	mode, _ := selector.ParseMode(c.Run.Mode)
	return mode
}

// ConverterFormat returns the parsed converter output format.
func (c *Config) ConverterFormat() extractor.Format {
	format, _ := extractor.ParseFormat(c.Converter.Format)
	return format
}
