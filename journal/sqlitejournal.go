package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteJournalConfig configures the SQLite journal.
type SQLiteJournalConfig struct {
	// DSN is the database connection string.
	DSN string
}

// SQLiteJournal persists firing records to a SQLite database. It
// enables WAL mode for concurrent read access.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) a SQLite journal.
func NewSQLiteJournal(cfg SQLiteJournalConfig) (*SQLiteJournal, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sqlitejournal: dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlitejournal: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitejournal: set WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitejournal: create schema: %w", err)
	}

	return &SQLiteJournal{db: db}, nil
}

// Append stores a record in the database.
func (j *SQLiteJournal) Append(ctx context.Context, rec Record) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO firings (id, name, old_owner, callbacks, fired_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Name,
		rec.OldOwner,
		rec.Callbacks,
		rec.FiredAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlitejournal: append: %w", err)
	}
	return nil
}

// List returns records for a name in firing order, oldest first. An
// empty name returns records for all names.
func (j *SQLiteJournal) List(ctx context.Context, name string, limit int) ([]Record, error) {
	query := `SELECT id, name, old_owner, callbacks, fired_at FROM firings`
	var args []any
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY rowid_seq ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitejournal: list: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Prune deletes records fired before the cutoff.
func (j *SQLiteJournal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`DELETE FROM firings WHERE fired_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlitejournal: prune: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlitejournal: prune rows affected: %w", err)
	}
	return removed, nil
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var (
			rec     Record
			timeStr string
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.OldOwner, &rec.Callbacks, &timeStr); err != nil {
			return nil, fmt.Errorf("sqlitejournal: scan record: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, timeStr)
		if err != nil {
			return nil, fmt.Errorf("sqlitejournal: parse time %q: %w", timeStr, err)
		}
		rec.FiredAt = t
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Compile-time interface check.
var _ Journal = (*SQLiteJournal)(nil)
