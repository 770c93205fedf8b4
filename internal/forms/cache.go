package forms

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"formlo/internal/api"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS forms (
    form_id TEXT PRIMARY KEY,
    record_id TEXT NOT NULL,
    form_title TEXT NOT NULL,
    form_url TEXT NOT NULL,
    original_filename TEXT NOT NULL,
    questions_count INTEGER NOT NULL,
    created_at TEXT NOT NULL
);
`

// Cache persists the last successful refresh so a restart shows
// stale-but-available data instead of an empty list.
type Cache struct {
	db   *sql.DB
	path string
}

// OpenCache initializes or connects to the forms snapshot database.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open forms cache: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(cacheSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create forms cache schema: %w", err)
	}

	return &Cache{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Replace swaps the cached snapshot in one transaction.
func (c *Cache) Replace(ctx context.Context, records []api.FormRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM forms"); err != nil {
		return fmt.Errorf("clear cached forms: %w", err)
	}
	for _, record := range records {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO forms (form_id, record_id, form_title, form_url, original_filename, questions_count, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			record.FormID,
			record.ID,
			record.FormTitle,
			record.FormURL,
			record.OriginalFilename,
			record.QuestionsCount,
			record.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert cached form %s: %w", record.FormID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache tx: %w", err)
	}
	return nil
}

// Load returns the cached snapshot, newest first.
func (c *Cache) Load(ctx context.Context) ([]api.FormRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT form_id, record_id, form_title, form_url, original_filename, questions_count, created_at
		 FROM forms ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query cached forms: %w", err)
	}
	defer rows.Close()

	var records []api.FormRecord
	for rows.Next() {
		var record api.FormRecord
		var createdAt string
		if err := rows.Scan(
			&record.FormID,
			&record.ID,
			&record.FormTitle,
			&record.FormURL,
			&record.OriginalFilename,
			&record.QuestionsCount,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan cached form: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			record.CreatedAt = parsed
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cached forms: %w", err)
	}
	return records, nil
}

// Clear empties the cached snapshot.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM forms"); err != nil {
		return fmt.Errorf("clear forms cache: %w", err)
	}
	return nil
}
