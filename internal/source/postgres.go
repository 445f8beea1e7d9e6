package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lib/pq"

	"github.com/record-overlap/internal/config"
	"github.com/record-overlap/internal/db"
)

const undefinedTable = "42P01"

// PostgresReader streams every row of one table.
type PostgresReader struct {
	name    string
	conn    *db.Connection
	rows    *sql.Rows
	columns []string
	dest    []any
}

// OpenPostgres connects with cfg.DSN (or the PG* environment) and starts
// a full scan of cfg.Table. The table may be schema qualified.
func OpenPostgres(ctx context.Context, cfg config.Source) (*PostgresReader, error) {
	conn, err := db.NewConnection(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
	}

	query := "SELECT * FROM " + QuoteTable(cfg.Table)
	rows, err := conn.DB.QueryContext(ctx, query)
	if err != nil {
		conn.Close()
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
			return nil, &NotFoundError{Name: cfg.Name, Location: "table " + cfg.Table, Err: err}
		}
		return nil, fmt.Errorf("source %s: failed to query %s: %w", cfg.Name, cfg.Table, err)
	}

	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		conn.Close()
		return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
	}

	return &PostgresReader{name: cfg.Name, conn: conn, rows: rows, columns: columns}, nil
}

// QuoteTable quotes each dot separated part of a table name.
func QuoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func (r *PostgresReader) Name() string      { return r.name }
func (r *PostgresReader) Columns() []string { return r.columns }

func (r *PostgresReader) Next() ([]any, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, fmt.Errorf("source %s: %w", r.name, err)
		}
		return nil, io.EOF
	}
	values := make([]any, len(r.columns))
	if r.dest == nil {
		r.dest = make([]any, len(r.columns))
	}
	for i := range values {
		r.dest[i] = &values[i]
	}
	if err := r.rows.Scan(r.dest...); err != nil {
		return nil, fmt.Errorf("source %s: %w", r.name, err)
	}
	return values, nil
}

func (r *PostgresReader) Close() error {
	r.rows.Close()
	return r.conn.Close()
}
