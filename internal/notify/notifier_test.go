package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tt-rates-dataset/internal/service"
)

func sampleSummary() service.Summary {
	last := "2024-01-02"
	return service.Summary{
		RunID:             "run-1",
		Mode:              "incremental",
		UpstreamRepo:      "owner/rates",
		UpstreamRef:       "master",
		ProcessedNewDates: 2,
		FailedDates:       []string{"2024-01-01"},
		TotalDates:        10,
		Currencies:        25,
		RemovedCurrencies: []string{},
		LastProcessedDate: &last,
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken/sendMessage" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), sampleSummary()); err != nil {
		t.Fatalf("Notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("wrong chat_id: %#v", received)
	}
	if !strings.Contains(received["text"], "owner/rates@master") {
		t.Fatalf("text should name the upstream: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), sampleSummary()); err == nil {
		t.Fatal("ok=false should fail")
	}
}

func TestTelegramNotifierHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), sampleSummary()); err == nil {
		t.Fatal("401 should fail")
	}
}

func TestRenderMessage(t *testing.T) {
	msg := renderMessage(sampleSummary())
	for _, want := range []string{"Processed: 2 new, 1 failed", "Dataset: 10 dates, 25 currencies", "Latest: 2024-01-02", "Failed: 2024-01-01", "Run: run-1"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "Removed:") {
		t.Fatalf("empty removals should be omitted:\n%s", msg)
	}
}
