package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tt-rates-dataset/internal/extractor"
)

// MaxOutput caps how much converter output is kept per document.
const MaxOutput = 10 << 20

// ErrOutputTooLarge is returned when a tool writes more than MaxOutput bytes.
var ErrOutputTooLarge = errors.New("converter output exceeds limit")

// Converter turns a local document into text the extractors understand.
type Converter interface {
	Convert(ctx context.Context, path string) (string, extractor.Format, error)
}

// Options select and locate the external conversion tool.
type Options struct {
	Format       extractor.Format
	PDFToTextBin string
	JavaBin      string
	TabulaJar    string
	Timeout      time.Duration
}

// Exec runs pdftotext or tabula as a subprocess.
type Exec struct {
	opts   Options
	logger zerolog.Logger
}

// New builds an Exec converter with defaults filled in.
func New(opts Options, logger zerolog.Logger) *Exec {
	if opts.Format == "" || opts.Format == extractor.FormatAuto {
		opts.Format = extractor.FormatText
	}
	if opts.PDFToTextBin == "" {
		opts.PDFToTextBin = "pdftotext"
	}
	if opts.JavaBin == "" {
		opts.JavaBin = "java"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	return &Exec{
		opts:   opts,
		logger: logger.With().Str("component", "converter").Logger(),
	}
}

// Format reports which output format Convert produces.
func (e *Exec) Format() extractor.Format {
	return e.opts.Format
}

// Convert runs the configured tool on path and returns its stdout.
func (e *Exec) Convert(ctx context.Context, path string) (string, extractor.Format, error) {
	name, args, err := e.command(path)
	if err != nil {
		return "", e.opts.Format, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	stdout := &cappedBuffer{limit: MaxOutput}
	stderr := &cappedBuffer{limit: 64 << 10}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	if stdout.overflow {
		return "", e.opts.Format, fmt.Errorf("%s: %w", name, ErrOutputTooLarge)
	}
	if runErr != nil {
		if ctx.Err() != nil {
			return "", e.opts.Format, fmt.Errorf("%s timed out after %s: %w", name, e.opts.Timeout, ctx.Err())
		}
		detail := strings.TrimSpace(stderr.buf.String())
		if detail != "" {
			return "", e.opts.Format, fmt.Errorf("%s: %w: %s", name, runErr, detail)
		}
		return "", e.opts.Format, fmt.Errorf("%s: %w", name, runErr)
	}

	e.logger.Debug().
		Str("path", path).
		Str("format", string(e.opts.Format)).
		Int("bytes", stdout.buf.Len()).
		Dur("took", time.Since(start)).
		Msg("document converted")
	return stdout.buf.String(), e.opts.Format, nil
}

func (e *Exec) command(path string) (string, []string, error) {
	switch e.opts.Format {
	case extractor.FormatText:
		return e.opts.PDFToTextBin, []string{path, "-"}, nil
	case extractor.FormatTable:
		if e.opts.TabulaJar == "" {
			return "", nil, errors.New("tabula jar path required for table format")
		}
		return e.opts.JavaBin, []string{"-jar", e.opts.TabulaJar, "-f", "CSV", "-p", "all", path}, nil
	default:
		return "", nil, fmt.Errorf("unsupported converter format %q", e.opts.Format)
	}
}

// cappedBuffer keeps at most limit bytes and records whether more arrived.
type cappedBuffer struct {
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	room := c.limit - c.buf.Len()
	if len(p) > room {
		c.overflow = true
		if room > 0 {
			c.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return c.buf.Write(p)
}

var _ Converter = (*Exec)(nil)
