package analysis

import (
	"github.com/record-overlap/internal/normalize"
	"github.com/record-overlap/internal/overlap"
)

// FieldProfile is the fill rate of one canonical field on both sides.
// Unresolved columns have zero counts and an empty column name.
type FieldProfile struct {
	Field     string  `json:"field"`
	ColumnA   string  `json:"column_a,omitempty"`
	ColumnB   string  `json:"column_b,omitempty"`
	NonNullA  int64   `json:"non_null_a"`
	NonNullB  int64   `json:"non_null_b"`
	FillRateA float64 `json:"fill_rate_a"`
	FillRateB float64 `json:"fill_rate_b"`
}

type profiler struct {
	counts [2]map[string]int64
}

func newProfiler() *profiler {
	return &profiler{counts: [2]map[string]int64{{}, {}}}
}

func (p *profiler) observe(side normalize.Side, row normalize.Row) {
	for field, v := range row {
		if !v.IsNull() {
			p.counts[side][field]++
		}
	}
}

// profiles lists every mapped field in mapping order.
func (p *profiler) profiles(plan *Plan) []FieldProfile {
	out := make([]FieldProfile, 0, len(plan.mapping.Fields()))
	for _, f := range plan.mapping.Fields() {
		fp := FieldProfile{
			Field:    f.Name,
			NonNullA: p.counts[normalize.SideA][f.Name],
			NonNullB: p.counts[normalize.SideB][f.Name],
		}
		if plan.projectors[normalize.SideA].Has(f.Name) {
			fp.ColumnA = f.A
		}
		if plan.projectors[normalize.SideB].Has(f.Name) {
			fp.ColumnB = f.B
		}
		fp.FillRateA = overlap.Percent(fp.NonNullA, plan.Sources[normalize.SideA].Rows)
		fp.FillRateB = overlap.Percent(fp.NonNullB, plan.Sources[normalize.SideB].Rows)
		out = append(out, fp)
	}
	return out
}
