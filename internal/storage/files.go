package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"tt-rates-dataset/internal/dataset"
)

const (
	byDateDir   = "by-date"
	currencyDir = "currency"
	latestFile  = "latest.json"
	jsonExt     = ".json"
)

// RecordStore persists per-date records.
type RecordStore interface {
	LoadAll() (dataset.Records, error)
	Save(record dataset.DateRecord) error
}

// DatasetWriter persists the derived views.
type DatasetWriter interface {
	WriteSeries(series dataset.Series) error
	PruneSeries(keep dataset.Series) ([]string, error)
	WriteLatest(latest dataset.Snapshot) error
}

// FileStore keeps the dataset as JSON documents below a data directory:
// by-date/<date>.json, currency/<CODE>.json and latest.json.
type FileStore struct {
	root   string
	logger zerolog.Logger
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string, logger zerolog.Logger) *FileStore {
	return &FileStore{root: dir, logger: logger.With().Str("component", "file_store").Logger()}
}

// Init creates the directory layout.
func (s *FileStore) Init() error {
	for _, dir := range []string{s.byDatePath(), s.currencyPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// LoadAll reads every per-date record. Unreadable or malformed files are
// logged and skipped.
func (s *FileStore) LoadAll() (dataset.Records, error) {
	records := dataset.Records{}

	entries, err := os.ReadDir(s.byDatePath())
	if errors.Is(err, fs.ErrNotExist) {
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list date records: %w", err)
	}

	for _, entry := range entries {
		if !isDataFile(entry) {
			continue
		}
		path := filepath.Join(s.byDatePath(), entry.Name())

		var rec dataset.DateRecord
		if err := readJSON(path, &rec); err != nil {
			s.logger.Warn().Err(err).Str("file", path).Msg("skipping unreadable date record")
			continue
		}
		if rec.Date == "" || rec.Rates == nil {
			s.logger.Warn().Str("file", path).Msg("skipping date record without date or rates")
			continue
		}
		records[rec.Date] = rec
	}

	return records, nil
}

// Save writes record, replacing any previous file for the same date.
func (s *FileStore) Save(record dataset.DateRecord) error {
	if !record.Valid() {
		return fmt.Errorf("refusing to save empty record for %q", record.Date)
	}
	return writeJSON(filepath.Join(s.byDatePath(), record.Date+jsonExt), record)
}

// WriteSeries writes one file per currency.
func (s *FileStore) WriteSeries(series dataset.Series) error {
	for _, code := range series.Codes() {
		if err := writeJSON(s.seriesFile(code), series[code]); err != nil {
			return fmt.Errorf("write series %s: %w", code, err)
		}
	}
	return nil
}

// PruneSeries removes currency files whose code is not in keep and returns
// the removed codes.
func (s *FileStore) PruneSeries(keep dataset.Series) ([]string, error) {
	entries, err := os.ReadDir(s.currencyPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list currency files: %w", err)
	}

	var removed []string
	for _, entry := range entries {
		if !isDataFile(entry) {
			continue
		}
		name := entry.Name()
		code := strings.TrimSuffix(name, jsonExt)
		if _, ok := keep[code]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.currencyPath(), name)); err != nil {
			return removed, fmt.Errorf("remove stale series %s: %w", code, err)
		}
		s.logger.Info().Str("currency", code).Msg("removed stale currency series")
		removed = append(removed, code)
	}
	return removed, nil
}

// WriteLatest writes the latest snapshot.
func (s *FileStore) WriteLatest(latest dataset.Snapshot) error {
	return writeJSON(filepath.Join(s.root, latestFile), latest)
}

// ReadLatest loads the latest snapshot.
func (s *FileStore) ReadLatest() (dataset.Snapshot, error) {
	var latest dataset.Snapshot
	if err := readJSON(filepath.Join(s.root, latestFile), &latest); err != nil {
		return nil, err
	}
	return latest, nil
}

// ReadSeries loads the series of one currency.
func (s *FileStore) ReadSeries(code string) ([]dataset.Point, error) {
	var points []dataset.Point
	if err := readJSON(s.seriesFile(strings.ToUpper(code)), &points); err != nil {
		return nil, err
	}
	return points, nil
}

// SeriesCodes lists the currencies that have a series file.
func (s *FileStore) SeriesCodes() ([]string, error) {
	entries, err := os.ReadDir(s.currencyPath())
	if err != nil {
		return nil, fmt.Errorf("list currency files: %w", err)
	}
	codes := make([]string, 0, len(entries))
	for _, entry := range entries {
		if isDataFile(entry) {
			codes = append(codes, strings.TrimSuffix(entry.Name(), jsonExt))
		}
	}
	return codes, nil
}

func (s *FileStore) byDatePath() string   { return filepath.Join(s.root, byDateDir) }
func (s *FileStore) currencyPath() string { return filepath.Join(s.root, currencyDir) }

func (s *FileStore) seriesFile(code string) string {
	return filepath.Join(s.currencyPath(), code+jsonExt)
}

// isDataFile skips directories, foreign files and in-flight temp files.
func isDataFile(entry fs.DirEntry) bool {
	name := entry.Name()
	return !entry.IsDir() && strings.HasSuffix(name, jsonExt) && !strings.HasPrefix(name, ".")
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeJSON replaces path atomically with the indented encoding of v.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*"+jsonExt)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

var (
	_ RecordStore   = (*FileStore)(nil)
	_ DatasetWriter = (*FileStore)(nil)
)
