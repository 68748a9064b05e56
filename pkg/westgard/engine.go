package westgard

import (
	"fmt"
	"strconv"
	"strings"
)

// Detect scans the matrix with every active rule and returns the complete
// ordered list of hits. Rules never short-circuit each other: a run or point
// may accumulate hits from several rules at once. Within one rule, a
// qualifying (run, level, sign) combination produces exactly one hit.
//
// 1_2s is evaluated unconditionally — it is a warning rule and is not part of
// any rejection set.
func Detect(m Matrix, active RuleSet) []Hit {
	hits := rule12s(m)

	if active.Has(Rule13s) {
		hits = append(hits, rule13s(m)...)
	}
	if active.Has(Rule22s) {
		hits = append(hits, rule22sSameRun(m)...)
		hits = append(hits, rule22sAcrossRuns(m)...)
	}
	if active.Has(Rule2of32s) {
		hits = append(hits, rule2of32sAcrossRuns(m)...)
		hits = append(hits, rule2of32sSameRun(m)...)
	}
	if active.Has(RuleR4s) {
		hits = append(hits, ruleR4s(m)...)
	}
	if active.Has(Rule31s) {
		hits = append(hits, rule31sAcrossRuns(m)...)
		if m.levels() >= 3 {
			hits = append(hits, rule31sSameRun(m)...)
		}
	}
	if active.Has(Rule41s) {
		hits = append(hits, rule41sAcrossRuns(m)...)
		if m.levels() == 2 {
			hits = append(hits, rule41sCombined(m)...)
		}
	}
	if active.Has(Rule9x) {
		hits = append(hits, rule9xAcrossRuns(m)...)
		if m.levels() == 3 {
			hits = append(hits, rule9xCombined(m)...)
		}
	}
	if active.Has(Rule10x) && m.levels() == 2 {
		hits = append(hits, rule10xAcrossRuns(m)...)
		hits = append(hits, rule10xCombined(m)...)
	}

	return hits
}

// rule12s flags every single point with 2 <= |z| < 3 as a warning.
func rule12s(m Matrix) []Hit {
	var hits []Hit
	for i, row := range m.Z {
		for l, z := range row {
			if missing(z) {
				continue
			}
			if a := abs(z); a >= 2 && a < 3 {
				hits = append(hits, Hit{
					Rule:    Rule12s,
					Run:     i,
					Levels:  []int{l},
					Message: fmt.Sprintf("1_2s (level %d, z=%.2f)", l+1, z),
				})
			}
		}
	}
	return hits
}

// rule13s flags every single point with |z| >= 3.
func rule13s(m Matrix) []Hit {
	var hits []Hit
	for i, row := range m.Z {
		for l, z := range row {
			if missing(z) {
				continue
			}
			if abs(z) >= 3 {
				hits = append(hits, Hit{
					Rule:    Rule13s,
					Run:     i,
					Levels:  []int{l},
					Message: fmt.Sprintf("1_3s (level %d, z=%.2f)", l+1, z),
				})
			}
		}
	}
	return hits
}

// rule22sSameRun fires when two or more levels of the same run sit in the
// 2-3SD band on the same side. Both sides can fire independently in one run.
func rule22sSameRun(m Matrix) []Hit {
	var hits []Hit
	for i, row := range m.Z {
		for _, s := range []int{+1, -1} {
			var levels []int
			for l, z := range row {
				if missing(z) {
					continue
				}
				if a := abs(z); a >= 2 && a < 3 && sign(z) == s {
					levels = append(levels, l)
				}
			}
			if len(levels) >= 2 {
				hits = append(hits, Hit{
					Rule:    Rule22s,
					Run:     i,
					Levels:  levels,
					Message: fmt.Sprintf("2_2s (same run, levels %s on one side 2-3SD)", levelList(levels)),
				})
			}
		}
	}
	return hits
}

// rule22sAcrossRuns fires when the same level lands in the 2-3SD band on the
// same side in two consecutive runs. The hit attaches to the later run.
func rule22sAcrossRuns(m Matrix) []Hit {
	var hits []Hit
	for l := 0; l < m.levels(); l++ {
		for i := 1; i < len(m.Z); i++ {
			z1, z2 := m.Z[i-1][l], m.Z[i][l]
			if missing(z1) || missing(z2) {
				continue
			}
			a1, a2 := abs(z1), abs(z2)
			if a1 >= 2 && a1 < 3 && a2 >= 2 && a2 < 3 && sign(z1) == sign(z2) {
				hits = append(hits, Hit{
					Rule:    Rule22s,
					Run:     i,
					Levels:  []int{l},
					Message: fmt.Sprintf("2_2s (level %d, runs %s-%s)", l+1, m.Labels[i-1], m.Labels[i]),
				})
			}
		}
	}
	return hits
}

// rule2of32sAcrossRuns fires when at least 2 of any 3 consecutive runs at the
// same level exceed 2SD on the same side. A window is skipped only when all
// three cells are missing — missing cells never qualify, but two present
// qualifying cells are enough evidence. One hit per window, first side wins.
func rule2of32sAcrossRuns(m Matrix) []Hit {
	var hits []Hit
	for l := 0; l < m.levels(); l++ {
		for i := 2; i < len(m.Z); i++ {
			vals := []float64{m.Z[i-2][l], m.Z[i-1][l], m.Z[i][l]}
			if missing(vals[0]) && missing(vals[1]) && missing(vals[2]) {
				continue
			}
			for _, s := range []int{+1, -1} {
				cnt := 0
				for _, v := range vals {
					if !missing(v) && abs(v) >= 2 && sign(v) == s {
						cnt++
					}
				}
				if cnt >= 2 {
					hits = append(hits, Hit{
						Rule:    Rule2of32s,
						Run:     i,
						Levels:  []int{l},
						Message: fmt.Sprintf("2of3_2s (level %d, runs %s-%s)", l+1, m.Labels[i-2], m.Labels[i]),
					})
					break
				}
			}
		}
	}
	return hits
}

// rule2of32sSameRun fires when two or more levels of the same run exceed 2SD
// on the same side. One hit per run, first side wins.
func rule2of32sSameRun(m Matrix) []Hit {
	var hits []Hit
	for i, row := range m.Z {
		for _, s := range []int{+1, -1} {
			var levels []int
			for l, z := range row {
				if !missing(z) && abs(z) >= 2 && sign(z) == s {
					levels = append(levels, l)
				}
			}
			if len(levels) >= 2 {
				hits = append(hits, Hit{
					Rule:    Rule2of32s,
					Run:     i,
					Levels:  levels,
					Message: fmt.Sprintf("2of3_2s (run %s, >=2 levels on one side >=2SD)", m.Labels[i]),
				})
				break
			}
		}
	}
	return hits
}

// ruleR4s fires when the z-range across levels of one run spans at least 4SD
// with one level at or above +2 and another at or below -2. The levels
// attaining the extremes are implicated.
func ruleR4s(m Matrix) []Hit {
	var hits []Hit
	for i, row := range m.Z {
		var present []float64
		for _, z := range row {
			if !missing(z) {
				present = append(present, z)
			}
		}
		if len(present) < 2 {
			continue
		}
		maxz, minz := present[0], present[0]
		for _, z := range present[1:] {
			if z > maxz {
				maxz = z
			}
			if z < minz {
				minz = z
			}
		}
		if maxz-minz >= 4 && maxz >= 2 && minz <= -2 {
			var levels []int
			for l, z := range row {
				if missing(z) {
					continue
				}
				if z == maxz || z == minz {
					levels = append(levels, l)
				}
			}
			hits = append(hits, Hit{
				Rule:    RuleR4s,
				Run:     i,
				Levels:  levels,
				Message: fmt.Sprintf("R_4s (run %s, >=4SD spread across levels)", m.Labels[i]),
			})
		}
	}
	return hits
}

// rule31sAcrossRuns fires when 3 consecutive runs at the same level all
// exceed 1SD on the same side. Any missing cell voids the window.
func rule31sAcrossRuns(m Matrix) []Hit {
	return consecutiveExceed(m, Rule31s, 3, 1, func(m Matrix, l, i, w int) string {
		return fmt.Sprintf("3_1s (level %d, runs %s-%s)", l+1, m.Labels[i-w+1], m.Labels[i])
	})
}

// rule31sSameRun fires (three-level setups only) when 3 or more levels of the
// same run exceed 1SD on the same side. One hit per run, first side wins.
func rule31sSameRun(m Matrix) []Hit {
	var hits []Hit
	for i, row := range m.Z {
		if anyMissing(row) {
			continue
		}
		for _, s := range []int{+1, -1} {
			var levels []int
			for l, z := range row {
				if abs(z) >= 1 && sign(z) == s {
					levels = append(levels, l)
				}
			}
			if len(levels) >= 3 {
				hits = append(hits, Hit{
					Rule:    Rule31s,
					Run:     i,
					Levels:  levels,
					Message: fmt.Sprintf("3_1s (run %s, >=3 levels on one side >=1SD)", m.Labels[i]),
				})
				break
			}
		}
	}
	return hits
}

// rule41sAcrossRuns fires when 4 consecutive runs at the same level all
// exceed 1SD on the same side.
func rule41sAcrossRuns(m Matrix) []Hit {
	return consecutiveExceed(m, Rule41s, 4, 1, func(m Matrix, l, i, w int) string {
		return fmt.Sprintf("4_1s (level %d, runs %s-%s)", l+1, m.Labels[i-w+1], m.Labels[i])
	})
}

// rule41sCombined fires (two-level setups only) when 2 consecutive runs times
// both levels — four points — all exceed 1SD on the same side.
func rule41sCombined(m Matrix) []Hit {
	return combinedWindow(m, Rule41s, 2, 1, "4_1s (2 runs x 2 levels, all on one side >=1SD)")
}

// rule9xAcrossRuns fires when 9 consecutive runs at the same level fall on
// the same side of the mean, regardless of magnitude.
func rule9xAcrossRuns(m Matrix) []Hit {
	return consecutiveExceed(m, Rule9x, 9, 0, func(m Matrix, l, i, w int) string {
		return fmt.Sprintf("9x (level %d, 9 consecutive runs on one side)", l+1)
	})
}

// rule9xCombined fires (three-level setups only) when 3 consecutive runs
// times all 3 levels fall on the same side of the mean.
func rule9xCombined(m Matrix) []Hit {
	return combinedWindow(m, Rule9x, 3, 0, "9x (3 runs x 3 levels, all on one side)")
}

// rule10xAcrossRuns fires when 10 consecutive runs at the same level fall on
// the same side of the mean.
func rule10xAcrossRuns(m Matrix) []Hit {
	return consecutiveExceed(m, Rule10x, 10, 0, func(m Matrix, l, i, w int) string {
		return fmt.Sprintf("10x (level %d, 10 consecutive runs on one side)", l+1)
	})
}

// rule10xCombined fires (two-level setups only) when 5 consecutive runs times
// both levels fall on the same side of the mean.
func rule10xCombined(m Matrix) []Hit {
	return combinedWindow(m, Rule10x, 5, 0, "10x (5 runs x 2 levels, all on one side)")
}

// consecutiveExceed implements the shared cross-run window scan: for each
// level, every window of `window` consecutive runs where all cells exceed
// `threshold` SD on the same side produces one hit attached to the window's
// last run. Any missing cell voids the window; a threshold of 0 reduces the
// condition to sign consistency alone.
func consecutiveExceed(m Matrix, rule Rule, window int, threshold float64, message func(m Matrix, l, i, w int) string) []Hit {
	var hits []Hit
	for l := 0; l < m.levels(); l++ {
		for i := window - 1; i < len(m.Z); i++ {
			ok := true
			for j := i - window + 1; j <= i; j++ {
				if missing(m.Z[j][l]) {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
			for _, s := range []int{+1, -1} {
				all := true
				for j := i - window + 1; j <= i; j++ {
					z := m.Z[j][l]
					if abs(z) < threshold || sign(z) != s {
						all = false
						break
					}
				}
				if all {
					hits = append(hits, Hit{
						Rule:    rule,
						Run:     i,
						Levels:  []int{l},
						Message: message(m, l, i, window),
					})
					break
				}
			}
		}
	}
	return hits
}

// combinedWindow implements the N-runs-times-all-levels variants: every block
// of `window` consecutive runs where all cells across all levels exceed
// `threshold` SD on the same side produces one hit implicating every level.
func combinedWindow(m Matrix, rule Rule, window int, threshold float64, message string) []Hit {
	nLevels := m.levels()
	allLevels := make([]int, nLevels)
	for l := range allLevels {
		allLevels[l] = l
	}

	var hits []Hit
	for i := window - 1; i < len(m.Z); i++ {
		ok := true
		for j := i - window + 1; j <= i && ok; j++ {
			if anyMissing(m.Z[j]) {
				ok = false
			}
		}
		if !ok {
			continue
		}
		for _, s := range []int{+1, -1} {
			all := true
			for j := i - window + 1; j <= i && all; j++ {
				for _, z := range m.Z[j] {
					if abs(z) < threshold || sign(z) != s {
						all = false
						break
					}
				}
			}
			if all {
				hits = append(hits, Hit{
					Rule:    rule,
					Run:     i,
					Levels:  append([]int(nil), allLevels...),
					Message: message,
				})
				break
			}
		}
	}
	return hits
}

func abs(z float64) float64 {
	if z < 0 {
		return -z
	}
	return z
}

func anyMissing(row []float64) bool {
	for _, z := range row {
		if missing(z) {
			return true
		}
	}
	return false
}

// levelList renders 0-based level indices as a human-readable 1-based list.
func levelList(levels []int) string {
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = strconv.Itoa(l + 1)
	}
	return strings.Join(parts, ", ")
}
