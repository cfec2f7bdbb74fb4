package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, srvURL string, retries int) *Client {
	t.Helper()
	return New(Options{
		Repo:       "owner/rates",
		Ref:        "master",
		APIBase:    srvURL,
		RawBase:    srvURL + "/raw",
		Timeout:    time.Second,
		UserAgent:  "ttrates-test",
		Retries:    retries,
		Backoff:    time.Millisecond,
		ScratchDir: t.TempDir(),
	}, zerolog.Nop())
}

func TestDateFromPath(t *testing.T) {
	cases := map[string]string{
		"pdf/2024/01/2024-01-02-09:15.pdf": "2024-01-02",
		"2023-12-31-main.pdf":              "2023-12-31",
		"pdf/2024-01-02.pdf":               "",
		"README.md":                        "",
	}
	for path, want := range cases {
		got, ok := DateFromPath(path)
		assert.Equal(t, want != "", ok, path)
		assert.Equal(t, want, got, path)
	}
}

func TestScratchName(t *testing.T) {
	assert.Equal(t, "pdf_2024_2024-01-02-09_15.pdf", ScratchName("pdf/2024/2024-01-02-09:15.pdf"))
}

func TestDiscoverGroupsDatedPDFs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/rates/git/trees/master", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		assert.Equal(t, "ttrates-test", r.Header.Get("User-Agent"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tree": []map[string]string{
				{"path": "pdf", "type": "tree"},
				{"path": "pdf/2024-01-02-b.pdf", "type": "blob"},
				{"path": "pdf/2024-01-02-a.PDF", "type": "blob"},
				{"path": "pdf/2024-01-01-a.pdf", "type": "blob"},
				{"path": "pdf/undated.pdf", "type": "blob"},
				{"path": "csv/2024-01-03-a.csv", "type": "blob"},
			},
			"truncated": false,
		})
	}))
	defer srv.Close()

	catalog, err := testClient(t, srv.URL, 0).Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, catalog.Dates())
	assert.Equal(t, []string{"pdf/2024-01-02-b.pdf", "pdf/2024-01-02-a.PDF"}, catalog.Candidates("2024-01-02"))
}

func TestDiscoverFailsOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL, 3).Discover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not Found")
	assert.EqualValues(t, 1, calls.Load())
}

func TestDiscoverRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tree": []map[string]string{{"path": "2024-02-01-a.pdf", "type": "blob"}},
		})
	}))
	defer srv.Close()

	catalog, err := testClient(t, srv.URL, 2).Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-02-01"}, catalog.Dates())
	assert.EqualValues(t, 3, calls.Load())
}

func TestDiscoverGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL, 1).Discover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.EqualValues(t, 2, calls.Load())
}

func TestFetchWritesScratchFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/raw/owner/rates/master/pdf/2024-01-02-09:15.pdf", r.URL.Path)
		_, _ = w.Write([]byte("%PDF-1.4 body"))
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, 0)
	local, err := client.Fetch(context.Background(), "pdf/2024-01-02-09:15.pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdf_2024-01-02-09_15.pdf", filepath.Base(local))

	body, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(body))
}

func TestFetchMissingDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL, 0).Fetch(context.Background(), "pdf/2024-01-02-a.pdf")
	assert.Error(t, err)
}
