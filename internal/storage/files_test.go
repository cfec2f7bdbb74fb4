package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tt-rates-dataset/internal/dataset"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	store := NewFileStore(dir, zerolog.Nop())
	require.NoError(t, store.Init())
	return store, dir
}

func rec(date string, rates map[string]string) dataset.DateRecord {
	r := dataset.DateRecord{Date: date, SourcePath: "pdf/" + date + "-a.pdf", Rates: map[string]decimal.Decimal{}}
	for code, v := range rates {
		r.Rates[code] = decimal.RequireFromString(v)
	}
	return r
}

func TestFileStoreSaveAndLoad(t *testing.T) {
	store, dir := newTestStore(t)

	require.NoError(t, store.Save(rec("2024-01-01", map[string]string{"USD": "82.5"})))
	require.NoError(t, store.Save(rec("2024-01-02", map[string]string{"USD": "82.9", "EUR": "89.1"})))

	raw, err := os.ReadFile(filepath.Join(dir, "by-date", "2024-01-01.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-01-01","sourcePath":"pdf/2024-01-01-a.pdf","rates":{"USD":82.5}}`, string(raw))

	records, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, decimal.RequireFromString("89.1").Equal(records["2024-01-02"].Rates["EUR"]))
}

func TestFileStoreSaveOverwrites(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Save(rec("2024-01-01", map[string]string{"USD": "82.5"})))
	require.NoError(t, store.Save(rec("2024-01-01", map[string]string{"GBP": "104.2"})))

	records, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	_, hasUSD := records["2024-01-01"].Rates["USD"]
	assert.False(t, hasUSD)
}

func TestFileStoreRefusesEmptyRecord(t *testing.T) {
	store, dir := newTestStore(t)

	assert.Error(t, store.Save(rec("2024-01-01", nil)))
	_, err := os.Stat(filepath.Join(dir, "by-date", "2024-01-01.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreLoadSkipsCorruptFiles(t *testing.T) {
	store, dir := newTestStore(t)
	require.NoError(t, store.Save(rec("2024-01-02", map[string]string{"USD": "82.9"})))

	byDate := filepath.Join(dir, "by-date")
	require.NoError(t, os.WriteFile(filepath.Join(byDate, "2024-01-01.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(byDate, "2024-01-03.json"), []byte(`{"sourcePath":"x"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(byDate, "notes.txt"), []byte("ignore"), 0o644))

	records, err := store.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-02"}, records.Dates())
}

func TestFileStoreLoadMissingDirectory(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent"), zerolog.Nop())
	records, err := store.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFileStoreSeriesAndPrune(t *testing.T) {
	store, dir := newTestStore(t)

	first := dataset.Records{
		"2024-01-01": rec("2024-01-01", map[string]string{"USD": "82.5", "CHF": "95.1"}),
	}
	series, latest := dataset.Rebuild(first)
	require.NoError(t, store.WriteSeries(series))
	require.NoError(t, store.WriteLatest(latest))

	removed, err := store.PruneSeries(series)
	require.NoError(t, err)
	assert.Empty(t, removed)

	second := dataset.Records{
		"2024-01-01": rec("2024-01-01", map[string]string{"USD": "82.5"}),
	}
	series, latest = dataset.Rebuild(second)
	require.NoError(t, store.WriteSeries(series))
	removed, err = store.PruneSeries(series)
	require.NoError(t, err)
	require.NoError(t, store.WriteLatest(latest))

	assert.Equal(t, []string{"CHF"}, removed)
	_, err = os.Stat(filepath.Join(dir, "currency", "CHF.json"))
	assert.True(t, os.IsNotExist(err))

	codes, err := store.SeriesCodes()
	require.NoError(t, err)
	assert.Equal(t, []string{"USD"}, codes)

	points, err := store.ReadSeries("usd")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "2024-01-01", points[0].Date)

	snap, err := store.ReadLatest()
	require.NoError(t, err)
	assert.Len(t, snap, 1)
	assert.Contains(t, snap, "USD")
}

func TestFileStoreRebuildOutputIsByteStable(t *testing.T) {
	store, dir := newTestStore(t)
	records := dataset.Records{
		"2024-01-01": rec("2024-01-01", map[string]string{"USD": "82.5", "EUR": "89.1"}),
		"2024-01-02": rec("2024-01-02", map[string]string{"USD": "82.9"}),
	}

	write := func() (string, string) {
		series, latest := dataset.Rebuild(records)
		require.NoError(t, store.WriteSeries(series))
		require.NoError(t, store.WriteLatest(latest))
		s, err := os.ReadFile(filepath.Join(dir, "currency", "USD.json"))
		require.NoError(t, err)
		l, err := os.ReadFile(filepath.Join(dir, "latest.json"))
		require.NoError(t, err)
		return string(s), string(l)
	}

	s1, l1 := write()
	s2, l2 := write()
	assert.Equal(t, s1, s2)
	assert.Equal(t, l1, l2)
	assert.JSONEq(t, `[{"date":"2024-01-01","rate":82.5},{"date":"2024-01-02","rate":82.9}]`, s1)
}
