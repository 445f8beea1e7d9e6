// Package source streams rows out of the two input datasets.
package source

import (
	"context"
	"fmt"
	"io"

	"github.com/record-overlap/internal/config"
)

// Reader streams rows from one dataset. Next returns io.EOF after the
// last row.
type Reader interface {
	Name() string
	Columns() []string
	Next() ([]any, error)
	Close() error
}

// NotFoundError reports a source file or table that does not exist or
// cannot be read.
type NotFoundError struct {
	Name     string
	Location string
	Err      error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("source %s not found at %s: %v", e.Name, e.Location, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// Open opens the dataset described by cfg.
func Open(ctx context.Context, cfg config.Source) (Reader, error) {
	var (
		r   Reader
		err error
	)
	switch kind := cfg.ResolvedKind(); kind {
	case config.KindCSV:
		r, err = OpenCSV(cfg)
	case config.KindXLSX:
		r, err = OpenXLSX(cfg)
	case config.KindPostgres:
		r, err = OpenPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("source %s: unsupported kind %q", cfg.Name, kind)
	}
	if err != nil {
		return nil, err
	}
	if cfg.MaxRows > 0 {
		r = &limitReader{Reader: r, remaining: cfg.MaxRows}
	}
	return r, nil
}

type limitReader struct {
	Reader
	remaining int64
}

func (l *limitReader) Next() ([]any, error) {
	if l.remaining <= 0 {
		return nil, io.EOF
	}
	row, err := l.Reader.Next()
	if err == nil {
		l.remaining--
	}
	return row, err
}

func textRow(record []string, width int) []any {
	row := make([]any, width)
	for i := range row {
		if i < len(record) {
			row[i] = record[i]
		}
	}
	return row
}
