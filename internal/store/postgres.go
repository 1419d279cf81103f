package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/bill-extract/internal/db"
	"github.com/sells-group/bill-extract/internal/model"
)

// PostgresSink upserts records keyed by file. Each chunk is staged with COPY
// and merged in a single transaction.
type PostgresSink struct {
	pool  db.Pool
	table string
	runID string
}

// OpenPostgres connects, pings and migrates.
func OpenPostgres(ctx context.Context, connString, table string) (*PostgresSink, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	s := newPostgresSink(pool, table)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func newPostgresSink(pool db.Pool, table string) *PostgresSink {
	return &PostgresSink{pool: pool, table: tableName(table), runID: uuid.New().String()}
}

func (s *PostgresSink) target() string {
	if schema, name, ok := strings.Cut(s.table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{s.table}.Sanitize()
}

// Migrate creates the records table if it does not exist.
func (s *PostgresSink) Migrate(ctx context.Context) error {
	cols := sqlColumns()
	defs := make([]string, 0, len(cols)+2)
	for i, c := range cols {
		typ := "TEXT NOT NULL"
		switch {
		case i == 0:
			typ = "TEXT PRIMARY KEY"
		case amountColumn(i):
			typ = "NUMERIC(18,2) NOT NULL DEFAULT 0"
		}
		defs = append(defs, pgx.Identifier{c}.Sanitize()+" "+typ)
	}
	defs = append(defs,
		"run_id UUID NOT NULL",
		"extracted_at TIMESTAMPTZ NOT NULL DEFAULT now()",
	)
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", s.target(), strings.Join(defs, ",\n\t"))

	_, err := s.pool.Exec(ctx, stmt)
	return eris.Wrap(err, "postgres: migrate")
}

// RunID identifies the rows written by this sink instance.
func (s *PostgresSink) RunID() string { return s.runID }

// Append implements Sink.
func (s *PostgresSink) Append(ctx context.Context, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}

	columns := append(sqlColumns(), "run_id", "extracted_at")
	now := time.Now().UTC()
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = postgresRow(r, s.runID, now)
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        s.table,
		Columns:      columns,
		ConflictKeys: []string{"file"},
	}, rows)
	if err != nil {
		return eris.Wrap(err, "postgres: append")
	}
	zap.L().Debug("postgres: chunk upserted", zap.String("table", s.table), zap.Int64("rows", n))
	return nil
}

// postgresRow orders values like sqlColumns plus run_id and extracted_at.
func postgresRow(r model.Record, runID string, at time.Time) []any {
	text := r.Row()
	row := make([]any, 0, len(text)+2)
	for _, v := range text[:6] {
		row = append(row, v)
	}
	row = append(row, numeric(r.TaxAmount), numeric(r.CurrentAmount), numeric(r.TotalAmount()))
	for _, k := range model.DeductionKeys {
		row = append(row, numeric(r.Deduction(k)))
	}
	return append(row, runID, at)
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

// Processed implements Sink.
func (s *PostgresSink) Processed(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT file FROM "+s.target())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list processed")
	}
	defer rows.Close()

	seen := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan processed")
		}
		seen[name] = true
	}
	return seen, eris.Wrap(rows.Err(), "postgres: iterate processed")
}

// Close implements Sink.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
