package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/record-overlap/internal/config"
)

// XLSXReader streams one worksheet. The first row is the header.
type XLSXReader struct {
	name    string
	file    *excelize.File
	rows    *excelize.Rows
	columns []string
}

// OpenXLSX opens cfg.Sheet, or the first sheet when none is named.
func OpenXLSX(cfg config.Source) (*XLSXReader, error) {
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, &NotFoundError{Name: cfg.Name, Location: cfg.Path, Err: err}
	}

	f, err := excelize.OpenFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("source %s: failed to open workbook: %w", cfg.Name, err)
	}

	sheet := cfg.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			f.Close()
			return nil, fmt.Errorf("source %s: workbook has no sheets", cfg.Name)
		}
		sheet = sheets[0]
	} else if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		f.Close()
		return nil, &NotFoundError{Name: cfg.Name, Location: cfg.Path + "#" + sheet, Err: fmt.Errorf("sheet %q does not exist", sheet)}
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("source %s: failed to read sheet %s: %w", cfg.Name, sheet, err)
	}

	r := &XLSXReader{name: cfg.Name, file: f, rows: rows}
	if !rows.Next() {
		r.Close()
		return nil, fmt.Errorf("source %s: sheet %s is empty", cfg.Name, sheet)
	}
	header, err := rows.Columns()
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("source %s: failed to read header: %w", cfg.Name, err)
	}
	r.columns = make([]string, len(header))
	for i, h := range header {
		r.columns[i] = strings.TrimSpace(h)
	}
	return r, nil
}

func (r *XLSXReader) Name() string      { return r.name }
func (r *XLSXReader) Columns() []string { return r.columns }

// Next returns cells as text; trailing empty cells come back as "".
func (r *XLSXReader) Next() ([]any, error) {
	if !r.rows.Next() {
		if err := r.rows.Error(); err != nil {
			return nil, fmt.Errorf("source %s: %w", r.name, err)
		}
		return nil, io.EOF
	}
	cells, err := r.rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", r.name, err)
	}
	return textRow(cells, len(r.columns)), nil
}

func (r *XLSXReader) Close() error {
	rowsErr := r.rows.Close()
	if err := r.file.Close(); err != nil {
		return err
	}
	return rowsErr
}
