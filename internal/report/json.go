// Package report renders analysis results as JSON, XLSX workbooks and
// terminal tables.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/record-overlap/internal/analysis"
)

// WriteJSON encodes the report as indented JSON.
func WriteJSON(w io.Writer, r *analysis.Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// SaveJSON writes the report to path.
func SaveJSON(path string, r *analysis.Report) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := WriteJSON(file, r); err != nil {
		return err
	}
	return file.Close()
}

// LoadJSON reads a report written by SaveJSON.
func LoadJSON(path string) (*analysis.Report, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results: %w", err)
	}
	defer file.Close()

	var r analysis.Report
	if err := json.NewDecoder(file).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode results %s: %w", path, err)
	}
	return &r, nil
}
