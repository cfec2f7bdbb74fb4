package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tt-rates-dataset/internal/dataset"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createRatesTableSQL = `CREATE TABLE IF NOT EXISTS tt_rates (
        rate_date   DATE        NOT NULL,
        currency    CHAR(3)     NOT NULL,
        rate        NUMERIC     NOT NULL,
        source_path TEXT        NOT NULL,
        updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (rate_date, currency)
    );`

	deleteRatesForDateSQL = `DELETE FROM tt_rates WHERE rate_date = $1;`

	insertRateSQL = `INSERT INTO tt_rates (
        rate_date,
        currency,
        rate,
        source_path
    ) VALUES (
        $1,$2,$3,$4
    );`

	pruneCurrenciesSQL = `DELETE FROM tt_rates WHERE NOT (currency = ANY($1));`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// DB is the subset of *pgxpool.Pool the mirror needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Close()
}

// RateMirror replicates stored records into a relational table.
type RateMirror interface {
	UpsertDateRecord(ctx context.Context, record dataset.DateRecord) error
	PruneCurrencies(ctx context.Context, keep []string) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Mirror keeps a Postgres copy of the per-date records.
type Mirror struct {
	db DB
}

// NewMirror wires a pool into a Mirror.
func NewMirror(db DB) *Mirror {
	return &Mirror{db: db}
}

// Close releases the underlying pool resources.
func (m *Mirror) Close() {
	if m == nil || m.db == nil {
		return
	}
	m.db.Close()
}

func (m *Mirror) getDB() (DB, error) {
	if m == nil || m.db == nil {
		return nil, ErrNotConfigured
	}
	return m.db, nil
}

// EnsureSchema creates the mirror table when missing.
func (m *Mirror) EnsureSchema(ctx context.Context) error {
	db, err := m.getDB()
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, createRatesTableSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertDateRecord replaces every row of record.Date with record's rates.
func (m *Mirror) UpsertDateRecord(ctx context.Context, record dataset.DateRecord) error {
	db, err := m.getDB()
	if err != nil {
		return err
	}

	day, err := time.Parse(time.DateOnly, record.Date)
	if err != nil {
		return fmt.Errorf("parse record date: %w", err)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, deleteRatesForDateSQL, day); err != nil {
		return fmt.Errorf("delete rates for %s: %w", record.Date, err)
	}

	codes := make([]string, 0, len(record.Rates))
	for code := range record.Rates {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	for _, code := range codes {
		if _, err := tx.Exec(ctx, insertRateSQL, day, code, record.Rates[code].String(), record.SourcePath); err != nil {
			return fmt.Errorf("insert rate %s/%s: %w", record.Date, code, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// PruneCurrencies deletes rows for currencies outside keep.
func (m *Mirror) PruneCurrencies(ctx context.Context, keep []string) (int64, error) {
	db, err := m.getDB()
	if err != nil {
		return 0, err
	}
	tag, err := db.Exec(ctx, pruneCurrenciesSQL, keep)
	if err != nil {
		return 0, fmt.Errorf("prune currencies: %w", err)
	}
	return tag.RowsAffected(), nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (m *Mirror) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	db, err := m.getDB()
	if err != nil {
		return nil, false, err
	}

	conn, err := db.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the session lock also ends with the connection
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

var (
	_ RateMirror     = (*Mirror)(nil)
	_ AdvisoryLocker = (*Mirror)(nil)
)
