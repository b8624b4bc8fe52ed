package records

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by a different
// schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	settingsKey = "settings"
)

// SQLite persists records in a local SQLite database.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure sqlite directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLite{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLite) Name() string { return "sqlite" }

// Path returns the database file.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to start over)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *SQLite) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context) (map[string]Record, error) {
	out := make(map[string]Record)
	err := s.withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records ORDER BY source`)
		if err != nil {
			return err
		}
		defer rows.Close()
		clear(out)
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			out[rec.Source] = rec
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	return out, nil
}

func (s *SQLite) Get(ctx context.Context, source string) (Record, error) {
	var rec Record
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var scanErr error
		rec, scanErr = scanRecord(s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE source = ?`, source))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (s *SQLite) Put(ctx context.Context, rec Record) error {
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	if err := s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, upsertRecordSQL, args...)
		return err
	}); err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

func (s *SQLite) Replace(ctx context.Context, recs map[string]Record) error {
	rows := make([][]any, 0, len(recs))
	for source, rec := range recs {
		rec.Source = source
		args, err := recordArgs(rec)
		if err != nil {
			return err
		}
		rows = append(rows, args)
	}
	err := s.withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, "DELETE FROM records"); err != nil {
			return err
		}
		for _, args := range rows {
			if _, err := tx.ExecContext(ctx, upsertRecordSQL, args...); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("replace records: %w", err)
	}
	return nil
}

func (s *SQLite) LoadSettings(ctx context.Context) (Settings, error) {
	var raw string
	err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", settingsKey).Scan(&raw)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, ErrNotFound
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	var settings Settings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}

func (s *SQLite) SaveSettings(ctx context.Context, settings Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO settings (key, value) VALUES (?, ?)
             ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			settingsKey, string(raw))
		return err
	}); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// withRetry runs op again while SQLite reports the database as busy.
func (s *SQLite) withRetry(ctx context.Context, op func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	backoff := retry.WithMaxRetries(busyRetryAttempts-1,
		retry.WithCappedDuration(busyRetryMaxBackoff, retry.NewExponential(busyRetryInitialBackoff)))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if isSQLiteBusy(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

const recordColumns = `source, start_time, total, ads, algorithmic, social, organic,
    categories_json, severities_json, last_update`

const upsertRecordSQL = `INSERT INTO records (` + recordColumns + `)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT(source) DO UPDATE SET
        start_time = excluded.start_time,
        total = excluded.total,
        ads = excluded.ads,
        algorithmic = excluded.algorithmic,
        social = excluded.social,
        organic = excluded.organic,
        categories_json = excluded.categories_json,
        severities_json = excluded.severities_json,
        last_update = excluded.last_update`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec                    Record
		startTime, lastUpdate  string
		categories, severities string
	)
	if err := row.Scan(&rec.Source, &startTime, &rec.Total, &rec.Ads, &rec.Algorithmic,
		&rec.Social, &rec.Organic, &categories, &severities, &lastUpdate); err != nil {
		return Record{}, err
	}
	var err error
	if rec.StartTime, err = parseTime(startTime); err != nil {
		return Record{}, fmt.Errorf("record %s start_time: %w", rec.Source, err)
	}
	if rec.LastUpdate, err = parseTime(lastUpdate); err != nil {
		return Record{}, fmt.Errorf("record %s last_update: %w", rec.Source, err)
	}
	if err := json.Unmarshal([]byte(categories), &rec.Categories); err != nil {
		return Record{}, fmt.Errorf("record %s categories: %w", rec.Source, err)
	}
	if err := json.Unmarshal([]byte(severities), &rec.Severities); err != nil {
		return Record{}, fmt.Errorf("record %s severities: %w", rec.Source, err)
	}
	if rec.Categories == nil {
		rec.Categories = map[string]int{}
	}
	if rec.Severities == nil {
		rec.Severities = map[string]int{}
	}
	return rec, nil
}

func recordArgs(rec Record) ([]any, error) {
	categories, err := json.Marshal(nonNilCounts(rec.Categories))
	if err != nil {
		return nil, fmt.Errorf("encode categories: %w", err)
	}
	severities, err := json.Marshal(nonNilCounts(rec.Severities))
	if err != nil {
		return nil, fmt.Errorf("encode severities: %w", err)
	}
	return []any{
		rec.Source,
		formatTime(rec.StartTime),
		rec.Total,
		rec.Ads,
		rec.Algorithmic,
		rec.Social,
		rec.Organic,
		string(categories),
		string(severities),
		formatTime(rec.LastUpdate),
	}, nil
}

func nonNilCounts(in map[string]int) map[string]int {
	if in == nil {
		return map[string]int{}
	}
	return in
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}
