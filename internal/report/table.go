package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/record-overlap/internal/analysis"
	"github.com/record-overlap/internal/overlap"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A78BFA"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

var tableHeaders = []string{
	"Key", "Status", "Matches", "A Only", "B Only", "A Total", "B Total",
	"Rate A %", "Rate B %", "Jaccard", "Overlap",
}

// Table renders the per-key results and the hash summary for a terminal.
// Colour is applied only when color is set.
func Table(r *analysis.Report, color bool) string {
	rows := make([][]string, len(r.Keys))
	for i, k := range r.Keys {
		rows[i] = []string{
			k.Name,
			statusText(k),
			count(k.Matches), count(k.AOnly), count(k.BOnly),
			count(k.ATotal), count(k.BTotal),
			strconv.FormatFloat(k.MatchRateA, 'f', 2, 64),
			strconv.FormatFloat(k.MatchRateB, 'f', 2, 64),
			strconv.FormatFloat(k.Jaccard, 'f', 4, 64),
			strconv.FormatFloat(k.OverlapCoefficient, 'f', 4, 64),
		}
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(tableHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := cellStyle
			if col >= 2 {
				style = style.Align(lipgloss.Right)
			}
			if !color {
				return style
			}
			if row == table.HeaderRow {
				return style.Inherit(headerStyle)
			}
			if row >= 0 && row < len(r.Keys) && col == 1 && r.Keys[row].Status != overlap.StatusComputed {
				return style.Inherit(failStyle)
			}
			return style
		})
	if color {
		tbl = tbl.BorderStyle(mutedStyle)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s  (%s backend, %d workers)\n", r.RunID, r.Backend, r.Workers)
	for _, s := range r.Sources {
		fmt.Fprintf(&b, "  %s: %s  %s rows  %s\n", strings.ToUpper(s.Side.String()), s.Name, count(s.Rows), s.Location)
	}
	b.WriteString(tbl.Render())
	b.WriteString("\n")
	b.WriteString(hashSummary(r))
	return b.String()
}

func statusText(k overlap.KeyResult) string {
	s := string(k.Status)
	if k.PairsCapped {
		s += " (capped)"
	}
	return s
}

func hashSummary(r *analysis.Report) string {
	h := r.Hash
	if h == nil {
		return fmt.Sprintf("Hash check: skipped (%s)\n", r.HashReason)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hash check: %s pairs, %s valid (%.2f%%), suspect side: %s\n",
		count(h.TotalChecked), count(h.ValidCount), h.ValidationRate, h.SuspectSide)
	fmt.Fprintf(&b, "  invalid A %s (missing %s, format %s, mismatch %s)\n",
		count(h.InvalidA), count(h.SideA.Missing), count(h.SideA.Format), count(h.SideA.Mismatch))
	fmt.Fprintf(&b, "  invalid B %s (missing %s, format %s, mismatch %s)\n",
		count(h.InvalidB), count(h.SideB.Missing), count(h.SideB.Format), count(h.SideB.Mismatch))
	if h.Truncated {
		b.WriteString("  pair walk truncated at engine.max_pairs\n")
	}
	return b.String()
}

var printer = message.NewPrinter(language.English)

// count formats n with thousands separators.
func count(n int64) string {
	return printer.Sprintf("%d", n)
}
