package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"tt-rates-dataset/internal/selector"
)

const (
	defaultAPIBase = "https://api.github.com"
	defaultRawBase = "https://raw.githubusercontent.com"
	documentExt    = ".pdf"
)

var datePrefix = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})-`)

// Discoverer lists the documents published upstream, grouped by date.
type Discoverer interface {
	Discover(ctx context.Context) (selector.Catalog, error)
}

// Fetcher downloads one upstream document to a local scratch file.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (string, error)
}

// Options parameterise the upstream client.
type Options struct {
	Repo       string
	Ref        string
	APIBase    string
	RawBase    string
	Timeout    time.Duration
	UserAgent  string
	Retries    int
	Backoff    time.Duration
	ScratchDir string
}

// Client talks to the GitHub trees API and the raw content host.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	apiBase string
	rawBase string
}

// New constructs an upstream client.
func New(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}

	apiBase := strings.TrimRight(opts.APIBase, "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	rawBase := strings.TrimRight(opts.RawBase, "/")
	if rawBase == "" {
		rawBase = defaultRawBase
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "upstream").Logger(),
		client:  &http.Client{Timeout: timeout},
		apiBase: apiBase,
		rawBase: rawBase,
	}
}

// DateFromPath returns the first YYYY-MM-DD token followed by a dash.
func DateFromPath(path string) (string, bool) {
	m := datePrefix.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ScratchName flattens an upstream path into a single file name.
func ScratchName(path string) string {
	return strings.NewReplacer("/", "_", ":", "_").Replace(path)
}

// Discover lists every dated PDF in the configured tree.
func (c *Client) Discover(ctx context.Context) (selector.Catalog, error) {
	if c.opts.Repo == "" || c.opts.Ref == "" {
		return nil, errors.New("upstream repo and ref required")
	}

	endpoint := fmt.Sprintf("%s/repos/%s/git/trees/%s?recursive=1", c.apiBase, c.opts.Repo, url.PathEscape(c.opts.Ref))
	body, err := c.get(ctx, endpoint, "application/vnd.github+json")
	if err != nil {
		return nil, fmt.Errorf("list upstream tree: %w", err)
	}

	var listing treeResponse
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode upstream tree: %w", err)
	}
	if listing.Truncated {
		c.logger.Warn().Str("repo", c.opts.Repo).Msg("upstream tree listing truncated")
	}

	paths := make([]string, 0, len(listing.Tree))
	for _, entry := range listing.Tree {
		if entry.Type != "" && entry.Type != "blob" {
			continue
		}
		if !strings.EqualFold(filepath.Ext(entry.Path), documentExt) {
			continue
		}
		paths = append(paths, entry.Path)
	}
	slices.Sort(paths)

	catalog := selector.Catalog{}
	for _, path := range paths {
		date, ok := DateFromPath(path)
		if !ok {
			continue
		}
		catalog.Add(date, path)
	}

	c.logger.Debug().Int("documents", len(paths)).Int("dates", len(catalog)).Msg("upstream discovered")
	return catalog, nil
}

// Fetch downloads path into the scratch directory and returns the local file.
func (c *Client) Fetch(ctx context.Context, path string) (string, error) {
	if c.opts.ScratchDir == "" {
		return "", errors.New("scratch dir required")
	}
	if err := os.MkdirAll(c.opts.ScratchDir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/%s", c.rawBase, c.opts.Repo, c.opts.Ref, escapePath(path))
	body, err := c.get(ctx, endpoint, "")
	if err != nil {
		return "", fmt.Errorf("download %s: %w", path, err)
	}

	local := filepath.Join(c.opts.ScratchDir, ScratchName(path))
	if err := os.WriteFile(local, body, 0o644); err != nil {
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	return local, nil
}

func (c *Client) get(ctx context.Context, endpoint, accept string) ([]byte, error) {
	backoff := retry.WithMaxRetries(uint64(c.opts.Retries), retry.NewExponential(c.opts.Backoff))

	var payload []byte
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		body, err := c.getOnce(ctx, endpoint, accept)
		if err != nil {
			var statusErr *httpError
			if errors.As(err, &statusErr) && !statusErr.transient() {
				return err
			}
			if ctx.Err() != nil {
				return err
			}
			c.logger.Debug().Err(err).Int("attempt", attempt).Str("url", endpoint).Msg("upstream request failed")
			return retry.RetryableError(err)
		}
		payload = body
		return nil
	})
	return payload, err
}

func (c *Client) getOnce(ctx context.Context, endpoint, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "ttrates/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, body)
	}
	return body, nil
}

func escapePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

type treeResponse struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("upstream error (%d)", e.status)
	}
	return fmt.Sprintf("upstream error (%d): %s", e.status, e.message)
}

func (e *httpError) transient() bool {
	return e.status == http.StatusTooManyRequests || e.status >= 500
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Message != "" {
		return &httpError{status: status, message: apiErr.Message}
	}
	return &httpError{status: status, message: strings.TrimSpace(string(payload))}
}

var (
	_ Discoverer = (*Client)(nil)
	_ Fetcher    = (*Client)(nil)
)
