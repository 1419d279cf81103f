package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/bill-extract/internal/model"
)

// SQLiteSink writes records into a SQLite table, one transaction per chunk.
// Rows are keyed by file, so a rerun replaces earlier rows for the same source.
type SQLiteSink struct {
	db    *sql.DB
	table string
	runID string
}

// OpenSQLite opens the database at dsn in WAL mode and creates the table.
func OpenSQLite(ctx context.Context, dsn, table string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	s := &SQLiteSink{db: db, table: tableName(table), runID: uuid.New().String()}
	if err := s.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

func quoteSQLite(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Migrate creates the records table if it does not exist.
func (s *SQLiteSink) Migrate(ctx context.Context) error {
	cols := sqlColumns()
	defs := make([]string, 0, len(cols)+2)
	for i, c := range cols {
		def := quoteSQLite(c) + " TEXT NOT NULL"
		if i == 0 {
			def += " PRIMARY KEY"
		}
		defs = append(defs, def)
	}
	defs = append(defs,
		"run_id TEXT NOT NULL",
		"extracted_at DATETIME NOT NULL DEFAULT (datetime('now'))",
	)
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		quoteSQLite(s.table), strings.Join(defs, ",\n\t"))

	_, err := s.db.ExecContext(ctx, stmt)
	return eris.Wrap(err, "sqlite: migrate")
}

// RunID identifies the rows written by this sink instance.
func (s *SQLiteSink) RunID() string { return s.runID }

// Append implements Sink.
func (s *SQLiteSink) Append(ctx context.Context, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}

	cols := sqlColumns()
	quoted := make([]string, 0, len(cols)+2)
	for _, c := range cols {
		quoted = append(quoted, quoteSQLite(c))
	}
	quoted = append(quoted, "run_id", "extracted_at")
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(quoted)), ", ")
	insert := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		quoteSQLite(s.table), strings.Join(quoted, ", "), placeholders)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, r := range records {
		row := r.Row()
		args := make([]any, 0, len(row)+2)
		for _, v := range row {
			args = append(args, v)
		}
		args = append(args, s.runID, now)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s", r.SourceName)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// Processed implements Sink.
func (s *SQLiteSink) Processed(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT file FROM "+quoteSQLite(s.table))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list processed")
	}
	defer rows.Close() //nolint:errcheck

	seen := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan processed")
		}
		seen[name] = true
	}
	return seen, eris.Wrap(rows.Err(), "sqlite: iterate processed")
}

// Close implements Sink.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
