package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tt-rates-dataset/internal/service"
)

// Notifier delivers a finished build's summary.
type Notifier interface {
	Notify(ctx context.Context, summary service.Summary) error
}

// TelegramNotifier posts summaries through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "notify_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered summary.
func (n *TelegramNotifier) Notify(ctx context.Context, summary service.Summary) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(summary),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false")
	}

	n.logger.Info().Str("run_id", summary.RunID).Msg("summary sent (Telegram)")
	return nil
}

func renderMessage(s service.Summary) string {
	builder := strings.Builder{}
	builder.WriteString("[TT Rates Build]\n")
	builder.WriteString(fmt.Sprintf("Upstream: %s@%s (%s)\n", s.UpstreamRepo, s.UpstreamRef, s.Mode))
	builder.WriteString(fmt.Sprintf("Processed: %d new, %d failed\n", s.ProcessedNewDates, len(s.FailedDates)))
	builder.WriteString(fmt.Sprintf("Dataset: %d dates, %d currencies\n", s.TotalDates, s.Currencies))
	if s.LastProcessedDate != nil {
		builder.WriteString(fmt.Sprintf("Latest: %s\n", *s.LastProcessedDate))
	}
	if len(s.FailedDates) > 0 {
		builder.WriteString(fmt.Sprintf("Failed: %s\n", strings.Join(s.FailedDates, ",")))
	}
	if len(s.RemovedCurrencies) > 0 {
		builder.WriteString(fmt.Sprintf("Removed: %s\n", strings.Join(s.RemovedCurrencies, ",")))
	}
	if s.RunID != "" {
		builder.WriteString(fmt.Sprintf("Run: %s", s.RunID))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
