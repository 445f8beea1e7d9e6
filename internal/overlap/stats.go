package overlap

import "math"

// Statistics are the ratios derived from one key's counts. Match rates are
// percentages rounded to two places; Jaccard and the overlap coefficient
// are ratios rounded to four places and clamped to [0, 1].
//
// Matches count cartesian pairs, so duplicated key values can push matches
// past min(a_total, b_total). Such keys set DuplicateInflated; their match
// rates may exceed 100 and their record-level ratios saturate at 1.
// ValueJaccard compares distinct values and is unaffected by duplicates.
type Statistics struct {
	MatchRateA         float64 `json:"match_rate_a"`
	MatchRateB         float64 `json:"match_rate_b"`
	Jaccard            float64 `json:"jaccard"`
	OverlapCoefficient float64 `json:"overlap_coefficient"`
	ValueJaccard       float64 `json:"value_jaccard"`
	DuplicateInflated  bool    `json:"duplicate_inflated"`
}

// Compute derives the statistics from raw counts. A zero denominator
// yields 0 rather than an error.
func Compute(matches, aTotal, bTotal int64) Statistics {
	inflated := matches > 0 && matches > min(aTotal, bTotal)
	jaccard := ratio(matches, aTotal+bTotal-matches)
	if inflated {
		jaccard = 1
	}
	return Statistics{
		MatchRateA:         Round(ratio(matches, aTotal)*100, 2),
		MatchRateB:         Round(ratio(matches, bTotal)*100, 2),
		Jaccard:            Round(clamp(jaccard), 4),
		OverlapCoefficient: Round(clamp(ratio(matches, min(aTotal, bTotal))), 4),
		DuplicateInflated:  inflated,
	}
}

// ValueJaccard is the Jaccard index over distinct key values: shared
// values divided by the union of values.
func ValueJaccard(common, distinctA, distinctB int64) float64 {
	return Round(clamp(ratio(common, distinctA+distinctB-common)), 4)
}

func clamp(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// Percent returns n/d as a percentage rounded to two places, 0 when d is 0.
func Percent(n, d int64) float64 {
	return Round(ratio(n, d)*100, 2)
}

func ratio(n, d int64) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// Round rounds x half away from zero to the given decimal places.
func Round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
