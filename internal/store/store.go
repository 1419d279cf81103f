// Package store persists extracted bill records. Every sink writes the same
// fixed column schema and accepts records one chunk at a time.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bill-extract/internal/config"
	"github.com/sells-group/bill-extract/internal/model"
)

// Sink is the append-only destination of a batch run.
type Sink interface {
	// Append durably writes one chunk of records. A chunk is either fully
	// written or the error is returned.
	Append(ctx context.Context, records []model.Record) error
	// Processed returns the source names already present in the output.
	Processed(ctx context.Context) (map[string]bool, error)
	Close() error
}

// Open creates the sink selected by cfg.Driver.
func Open(ctx context.Context, cfg config.OutputConfig) (Sink, error) {
	switch cfg.Driver {
	case "csv", "":
		return OpenCSV(cfg.Path)
	case "xlsx":
		return OpenXLSX(cfg.Path)
	case "sqlite":
		return OpenSQLite(ctx, cfg.Path, cfg.Table)
	case "postgres":
		return OpenPostgres(ctx, cfg.DatabaseURL, cfg.Table)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// sqlColumns are the table column names, the output schema lower-cased.
func sqlColumns() []string {
	cols := model.Columns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = strings.ToLower(c)
	}
	return out
}

// amountColumn reports whether the i-th output column holds money.
func amountColumn(i int) bool {
	return i >= len(model.Columns())-len(model.DeductionKeys)-3
}

func tableName(table string) string {
	if table == "" {
		return "bills"
	}
	return table
}
