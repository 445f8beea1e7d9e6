package report

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/record-overlap/internal/analysis"
	"github.com/record-overlap/internal/hashcheck"
)

const (
	SheetKeys    = "Keys"
	SheetHash    = "Hash"
	SheetSources = "Sources"
)

var keyHeaders = []string{
	"Key", "Fields", "Status", "Reason",
	"Matches", "A Only", "B Only", "A Total", "B Total",
	"Matched A", "Matched B", "Distinct A", "Distinct B", "Distinct Common", "Largest Group",
	"Match Rate A %", "Match Rate B %", "Jaccard", "Overlap Coefficient", "Value Jaccard",
	"Duplicate Inflated", "Pairs Capped", "Elapsed (s)",
}

// WriteXLSX writes a workbook with Keys, Hash and Sources sheets.
func WriteXLSX(path string, r *analysis.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetKeys); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := writeKeys(f, headerStyle, r); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetHash); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := writeHash(f, headerStyle, r); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetSources); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := writeSources(f, headerStyle, r); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, style int, headers []string) error {
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	return f.SetColWidth(sheet, "A", lastCol, 16)
}

func writeKeys(f *excelize.File, style int, r *analysis.Report) error {
	if err := writeHeader(f, SheetKeys, style, keyHeaders); err != nil {
		return fmt.Errorf("failed to write key headers: %w", err)
	}
	for i, k := range r.Keys {
		row := []any{
			k.Name, fmt.Sprint(k.Fields), string(k.Status), k.Reason,
			k.Matches, k.AOnly, k.BOnly, k.ATotal, k.BTotal,
			k.MatchedA, k.MatchedB, k.DistinctA, k.DistinctB, k.DistinctCommon, k.LargestGroup,
			k.MatchRateA, k.MatchRateB, k.Jaccard, k.OverlapCoefficient, k.ValueJaccard,
			k.DuplicateInflated, k.PairsCapped, k.ElapsedSeconds,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetKeys, cell, &row); err != nil {
			return fmt.Errorf("failed to write key %s: %w", k.Name, err)
		}
	}
	return nil
}

func writeHash(f *excelize.File, style int, r *analysis.Report) error {
	if err := writeHeader(f, SheetHash, style, []string{"Metric", "Value"}); err != nil {
		return fmt.Errorf("failed to write hash headers: %w", err)
	}
	h := r.Hash
	if h == nil {
		row := []any{"skipped", r.HashReason}
		return f.SetSheetRow(SheetHash, "A2", &row)
	}

	rows := [][]any{
		{"total_checked", h.TotalChecked},
		{"valid_count", h.ValidCount},
		{"invalid_count", h.InvalidCount},
		{"invalid_a", h.InvalidA},
		{"invalid_b", h.InvalidB},
		{"invalid_both", h.InvalidBoth},
		{"consistent_pairs", h.ConsistentPairs},
		{"validation_rate", h.ValidationRate},
		{"suspect_side", h.SuspectSide},
		{"a_missing", h.SideA.Missing},
		{"a_format", h.SideA.Format},
		{"a_mismatch", h.SideA.Mismatch},
		{"b_missing", h.SideB.Missing},
		{"b_format", h.SideB.Format},
		{"b_mismatch", h.SideB.Mismatch},
		{"truncated", h.Truncated},
	}
	rows = append(rows, patternRows("a", h.PatternsA)...)
	rows = append(rows, patternRows("b", h.PatternsB)...)

	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetHash, cell, &rows[i]); err != nil {
			return fmt.Errorf("failed to write hash report: %w", err)
		}
	}

	if len(h.Samples) == 0 {
		return nil
	}
	start := len(rows) + 3
	headers := []string{"Email", "Record A", "Record B", "Expected", "Hash A", "Hash B", "Reason A", "Reason B"}
	cell, _ := excelize.CoordinatesToCellName(1, start)
	if err := f.SetSheetRow(SheetHash, cell, &headers); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), start)
	if err := f.SetCellStyle(SheetHash, cell, last, style); err != nil {
		return err
	}
	for i, s := range h.Samples {
		row := []any{s.Email, s.RecordA, s.RecordB, s.Expected, s.HashA, s.HashB, string(s.ReasonA), string(s.ReasonB)}
		cell, _ := excelize.CoordinatesToCellName(1, start+i+1)
		if err := f.SetSheetRow(SheetHash, cell, &row); err != nil {
			return fmt.Errorf("failed to write sample: %w", err)
		}
	}
	return nil
}

func patternRows(side string, patterns map[hashcheck.Pattern]int64) [][]any {
	names := make([]string, 0, len(patterns))
	for p := range patterns {
		names = append(names, string(p))
	}
	sort.Strings(names)
	rows := make([][]any, len(names))
	for i, p := range names {
		rows[i] = []any{"pattern_" + side + "_" + p, patterns[hashcheck.Pattern(p)]}
	}
	return rows
}

func writeSources(f *excelize.File, style int, r *analysis.Report) error {
	headers := []string{"Side", "Name", "Kind", "Location", "Rows", "Row IDs"}
	if err := writeHeader(f, SheetSources, style, headers); err != nil {
		return fmt.Errorf("failed to write source headers: %w", err)
	}
	for i, s := range r.Sources {
		row := []any{s.Side.String(), s.Name, s.Kind, s.Location, s.Rows, s.RowIDs}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetSources, cell, &row); err != nil {
			return fmt.Errorf("failed to write source %s: %w", s.Name, err)
		}
	}
	if len(r.Fields) == 0 {
		return nil
	}

	// field fill rates sit below the sources, separated by a blank row
	start := len(r.Sources) + 3
	headers = []string{"Field", "Column A", "Column B", "Non-null A", "Non-null B", "Fill A %", "Fill B %"}
	cell, _ := excelize.CoordinatesToCellName(1, start)
	if err := f.SetSheetRow(SheetSources, cell, &headers); err != nil {
		return fmt.Errorf("failed to write field headers: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), start)
	if err := f.SetCellStyle(SheetSources, cell, last, style); err != nil {
		return err
	}
	for i, fp := range r.Fields {
		row := []any{fp.Field, fp.ColumnA, fp.ColumnB, fp.NonNullA, fp.NonNullB, fp.FillRateA, fp.FillRateB}
		cell, _ := excelize.CoordinatesToCellName(1, start+i+1)
		if err := f.SetSheetRow(SheetSources, cell, &row); err != nil {
			return fmt.Errorf("failed to write field %s: %w", fp.Field, err)
		}
	}
	return nil
}
