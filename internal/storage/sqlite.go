package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

// SQLiteStore keeps domain profiles and flushed metric records in one SQLite
// database. It implements DomainStore and the metrics sink interface.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db, path: path}
	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if err := s.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS domain_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		domain TEXT NOT NULL,
		ts INTEGER NOT NULL,
		step TEXT,
		message TEXT,
		url TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_domain_errors_domain ON domain_errors(domain);

	CREATE TABLE IF NOT EXISTS domain_steps (
		domain TEXT NOT NULL,
		step TEXT NOT NULL,
		successes INTEGER NOT NULL DEFAULT 0,
		failures INTEGER NOT NULL DEFAULT 0,
		avg_duration_ms REAL NOT NULL DEFAULT 0,
		last_success INTEGER,
		PRIMARY KEY (domain, step)
	);

	CREATE TABLE IF NOT EXISTS metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		kind TEXT NOT NULL,
		category TEXT NOT NULL,
		operation TEXT,
		value REAL NOT NULL,
		details TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_metrics_ts ON metrics(ts);
	CREATE INDEX IF NOT EXISTS idx_metrics_category ON metrics(category);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordError implements DomainStore.
func (s *SQLiteStore) RecordError(domain string, e models.DomainError) error {
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO domain_errors (domain, ts, step, message, url) VALUES (?, ?, ?, ?, ?)`,
		domain, e.Timestamp.UnixMilli(), e.Step, e.Message, e.URL)
	if err != nil {
		return fmt.Errorf("recording domain error: %w", err)
	}
	return nil
}

// RecordStep implements DomainStore.
func (s *SQLiteStore) RecordStep(domain, step string, success bool, d time.Duration, at time.Time) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recording domain step: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var st models.StepStats
	var lastSuccess sql.NullInt64
	row := tx.QueryRowContext(ctx,
		`SELECT successes, failures, avg_duration_ms, last_success FROM domain_steps WHERE domain = ? AND step = ?`,
		domain, step)
	switch err := row.Scan(&st.Successes, &st.Failures, &st.AvgDurationMS, &lastSuccess); {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("reading domain step: %w", err)
	}
	if lastSuccess.Valid {
		t := time.UnixMilli(lastSuccess.Int64).UTC()
		st.LastSuccess = &t
	}

	st = ApplyStepOutcome(st, success, d, at)
	var last any
	if st.LastSuccess != nil {
		last = st.LastSuccess.UnixMilli()
	}
	_, err = tx.ExecContext(ctx, `
	INSERT INTO domain_steps (domain, step, successes, failures, avg_duration_ms, last_success)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(domain, step) DO UPDATE SET
		successes = excluded.successes,
		failures = excluded.failures,
		avg_duration_ms = excluded.avg_duration_ms,
		last_success = excluded.last_success`,
		domain, step, st.Successes, st.Failures, st.AvgDurationMS, last)
	if err != nil {
		return fmt.Errorf("writing domain step: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing domain step: %w", err)
	}
	return nil
}

// Profiles implements DomainStore.
func (s *SQLiteStore) Profiles() ([]models.DomainProfile, error) {
	ctx := context.Background()
	profiles := make(map[string]*models.DomainProfile)
	get := func(domain string) *models.DomainProfile {
		p, ok := profiles[domain]
		if !ok {
			p = &models.DomainProfile{Domain: domain, Steps: map[string]models.StepStats{}}
			profiles[domain] = p
		}
		return p
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, ts, step, message, url FROM domain_errors ORDER BY domain, ts`)
	if err != nil {
		return nil, fmt.Errorf("querying domain errors: %w", err)
	}
	for rows.Next() {
		var domain string
		var ts int64
		var step, message, url sql.NullString
		if err := rows.Scan(&domain, &ts, &step, &message, &url); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning domain error: %w", err)
		}
		p := get(domain)
		p.Errors = append(p.Errors, models.DomainError{
			Timestamp: time.UnixMilli(ts).UTC(),
			Step:      step.String,
			Message:   message.String,
			URL:       url.String,
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating domain errors: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT domain, step, successes, failures, avg_duration_ms, last_success FROM domain_steps`)
	if err != nil {
		return nil, fmt.Errorf("querying domain steps: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var domain, step string
		var st models.StepStats
		var last sql.NullInt64
		if err := rows.Scan(&domain, &step, &st.Successes, &st.Failures, &st.AvgDurationMS, &last); err != nil {
			return nil, fmt.Errorf("scanning domain step: %w", err)
		}
		if last.Valid {
			t := time.UnixMilli(last.Int64).UTC()
			st.LastSuccess = &t
		}
		get(domain).Steps[step] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating domain steps: %w", err)
	}

	out := make([]models.DomainProfile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}

// Name identifies the store as a metrics sink.
func (s *SQLiteStore) Name() string { return "sqlite" }

// Write inserts metric records in one transaction.
func (s *SQLiteStore) Write(records []models.MetricRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning metrics insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metrics (ts, kind, category, operation, value, details) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing metrics insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var details any
		if len(r.Details) > 0 {
			data, err := json.Marshal(r.Details)
			if err != nil {
				return fmt.Errorf("marshalling metric details: %w", err)
			}
			details = string(data)
		}
		if _, err := stmt.ExecContext(ctx, r.Timestamp.UnixMilli(), string(r.Kind), r.Category, r.Operation, r.Value, details); err != nil {
			return fmt.Errorf("inserting metric record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing metrics insert: %w", err)
	}
	return nil
}

// MetricsSince returns stored metric records at or after since, oldest first.
func (s *SQLiteStore) MetricsSince(ctx context.Context, since time.Time) ([]models.MetricRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, kind, category, operation, value, details FROM metrics WHERE ts >= ? ORDER BY ts, id`,
		since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("querying metrics: %w", err)
	}
	defer rows.Close()

	var out []models.MetricRecord
	for rows.Next() {
		var r models.MetricRecord
		var ts int64
		var kind string
		var op, details sql.NullString
		if err := rows.Scan(&ts, &kind, &r.Category, &op, &r.Value, &details); err != nil {
			return nil, fmt.Errorf("scanning metric record: %w", err)
		}
		r.Timestamp = time.UnixMilli(ts).UTC()
		r.Kind = models.RecordKind(kind)
		r.Operation = op.String
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &r.Details); err != nil {
				return nil, fmt.Errorf("decoding metric details: %w", err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating metrics: %w", err)
	}
	return out, nil
}
