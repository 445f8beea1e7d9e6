package hashcheck

import (
	"sort"
	"strings"

	"github.com/record-overlap/internal/normalize"
	"github.com/record-overlap/internal/overlap"
)

// Pair is one email matched across both sides together with each side's
// stored hash.
type Pair struct {
	Email    string
	RecordA  string
	RecordB  string
	HashA    string
	HasHashA bool
	HashB    string
	HasHashB bool
}

// Outcome is the validation of one pair.
type Outcome struct {
	Expected string
	A        Reason
	B        Reason
}

// ValidA reports whether side A's hash matched.
func (o Outcome) ValidA() bool { return o.A == ReasonValid }

// ValidB reports whether side B's hash matched.
func (o Outcome) ValidB() bool { return o.B == ReasonValid }

// Check validates one pair. Both emails are equal by construction of the
// match, so the digest is computed from side A's email.
func Check(p Pair) Outcome {
	expected := Digest(p.Email)
	return Outcome{
		Expected: expected,
		A:        Verify(expected, p.HashA, p.HasHashA),
		B:        Verify(expected, p.HashB, p.HasHashB),
	}
}

// Mismatch is a sample of one invalid pair, with truncated hashes.
type Mismatch struct {
	Email    string `json:"email"`
	RecordA  string `json:"record_a"`
	RecordB  string `json:"record_b"`
	Expected string `json:"expected_hash"`
	HashA    string `json:"hash_a"`
	HashB    string `json:"hash_b"`
	ValidA   bool   `json:"valid_a"`
	ValidB   bool   `json:"valid_b"`
	ReasonA  Reason `json:"reason_a"`
	ReasonB  Reason `json:"reason_b"`
}

// SideSummary counts invalid hashes on one side by reason.
type SideSummary struct {
	Invalid  int64 `json:"invalid"`
	Missing  int64 `json:"missing"`
	Format   int64 `json:"format"`
	Mismatch int64 `json:"mismatch"`
}

func (s *SideSummary) add(r Reason) {
	switch r {
	case ReasonMissing:
		s.Missing++
	case ReasonFormat:
		s.Format++
	case ReasonMismatch:
		s.Mismatch++
	default:
		return
	}
	s.Invalid++
}

// Report aggregates the validation of every matched email pair.
type Report struct {
	TotalChecked    int64             `json:"total_checked"`
	ValidCount      int64             `json:"valid_count"`
	InvalidCount    int64             `json:"invalid_count"`
	InvalidA        int64             `json:"invalid_a"`
	InvalidB        int64             `json:"invalid_b"`
	InvalidBoth     int64             `json:"invalid_both"`
	ConsistentPairs int64             `json:"consistent_pairs"`
	ValidationRate  float64           `json:"validation_rate"`
	SuspectSide     string            `json:"suspect_side"`
	SideA           SideSummary       `json:"side_a"`
	SideB           SideSummary       `json:"side_b"`
	PatternsA       map[Pattern]int64 `json:"patterns_a,omitempty"`
	PatternsB       map[Pattern]int64 `json:"patterns_b,omitempty"`
	Truncated       bool              `json:"truncated"`
	Samples         []Mismatch        `json:"sample_mismatches"`
}

// Checker accumulates outcomes into a Report.
type Checker struct {
	sampleSize int
	truncate   int
	report     Report
}

// NewChecker keeps up to sampleSize mismatch samples with hashes truncated
// to truncate characters (zero keeps them whole).
func NewChecker(sampleSize, truncate int) *Checker {
	return &Checker{
		sampleSize: sampleSize,
		truncate:   truncate,
		report: Report{
			PatternsA: make(map[Pattern]int64),
			PatternsB: make(map[Pattern]int64),
			Samples:   []Mismatch{},
		},
	}
}

// Observe records the hash pattern of one staged record, matched or not.
func (c *Checker) Observe(side normalize.Side, hash string) {
	if strings.TrimSpace(hash) == "" {
		return
	}
	if side == normalize.SideB {
		c.report.PatternsB[Classify(hash)]++
		return
	}
	c.report.PatternsA[Classify(hash)]++
}

// Add validates and counts one pair.
func (c *Checker) Add(p Pair) Outcome {
	o := Check(p)
	r := &c.report
	r.TotalChecked++

	if p.HasHashA && p.HasHashB && strings.EqualFold(strings.TrimSpace(p.HashA), strings.TrimSpace(p.HashB)) {
		r.ConsistentPairs++
	}

	r.SideA.add(o.A)
	r.SideB.add(o.B)

	switch {
	case o.ValidA() && o.ValidB():
		r.ValidCount++
		return o
	case !o.ValidA() && !o.ValidB():
		r.InvalidBoth++
		r.InvalidA++
		r.InvalidB++
	case !o.ValidA():
		r.InvalidA++
	default:
		r.InvalidB++
	}
	r.InvalidCount++

	if len(r.Samples) < c.sampleSize {
		r.Samples = append(r.Samples, Mismatch{
			Email:    p.Email,
			RecordA:  p.RecordA,
			RecordB:  p.RecordB,
			Expected: Truncate(o.Expected, c.truncate),
			HashA:    Truncate(orNull(p.HashA, p.HasHashA), c.truncate),
			HashB:    Truncate(orNull(p.HashB, p.HasHashB), c.truncate),
			ValidA:   o.ValidA(),
			ValidB:   o.ValidB(),
			ReasonA:  o.A,
			ReasonB:  o.B,
		})
	}
	return o
}

// MarkTruncated notes that the pair stream was capped.
func (c *Checker) MarkTruncated() {
	c.report.Truncated = true
}

// Report finalizes the rates and the suspect side.
func (c *Checker) Report() Report {
	r := c.report
	if r.TotalChecked > 0 {
		r.ValidationRate = overlap.Percent(r.ValidCount, r.TotalChecked)
	}
	r.SuspectSide = suspect(r.InvalidA, r.InvalidB, r.TotalChecked)
	samples := make([]Mismatch, len(r.Samples))
	copy(samples, r.Samples)
	r.Samples = samples
	sort.SliceStable(r.Samples, func(i, j int) bool { return r.Samples[i].Email < r.Samples[j].Email })
	return r
}

// suspect names the side whose invalid hashes dominate. A side is
// suspect when it holds at least 90% of the invalid observations.
func suspect(invalidA, invalidB, total int64) string {
	switch {
	case total == 0 || (invalidA == 0 && invalidB == 0):
		return "none"
	case invalidB*10 <= invalidA:
		return "a"
	case invalidA*10 <= invalidB:
		return "b"
	default:
		return "both"
	}
}

func orNull(s string, ok bool) string {
	if !ok {
		return "NULL"
	}
	return s
}
