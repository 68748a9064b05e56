package westgard

import (
	"fmt"
	"math"
	"sort"
)

// Rule identifies one Westgard rule code. The set of values is closed; the
// engine implements one or more detection patterns per code.
type Rule string

// All rule codes known to the engine.
const (
	Rule12s    Rule = "1_2s"
	Rule13s    Rule = "1_3s"
	Rule22s    Rule = "2_2s"
	Rule2of32s Rule = "2of3_2s"
	RuleR4s    Rule = "R_4s"
	Rule31s    Rule = "3_1s"
	Rule41s    Rule = "4_1s"
	Rule9x     Rule = "9x"
	Rule10x    Rule = "10x"
)

// IsWarning reports whether the rule is a warning-only rule. 1_2s is the only
// one: it never rejects a run, and it is evaluated regardless of the active
// rule set.
func (r Rule) IsWarning() bool { return r == Rule12s }

// RuleSet is the set of rejection rules active for a sigma category.
type RuleSet map[Rule]bool

// Has reports whether r is a member of the set.
func (s RuleSet) Has(r Rule) bool { return s[r] }

// Codes returns the member rule codes in lexicographic order, suitable for
// display and report headers.
func (s RuleSet) Codes() []Rule {
	out := make([]Rule, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Category is the sigma performance band a method falls into.
type Category string

// Sigma categories, from weakest to strongest method performance.
const (
	CategoryBelow4 Category = "<4"
	Category4      Category = "4"
	Category5      Category = "5"
	Category6      Category = "6"
)

// LevelStats is the reference statistic pair for one control level, produced
// by the upstream baseline-statistics step.
type LevelStats struct {
	Mean float64
	SD   float64
}

// Run is one ordered IQC event: an opaque caller-supplied label (used only
// for labelling output, never for ordering) and one raw measurement per
// control level. NaN marks a missing measurement.
type Run struct {
	Label  string
	Values []float64
}

// Matrix is a run-ordered grid of z-scores: rows are runs in temporal order,
// columns are control levels. Cells are NaN where the measurement was missing
// or could not be standardized. A Matrix is never mutated after construction.
type Matrix struct {
	Labels []string
	Z      [][]float64
}

// BuildMatrix standardizes raw runs against per-level reference stats.
// Every run must carry exactly one value slot per level in stats; a width
// mismatch is a configuration error, not a missing-data condition.
func BuildMatrix(runs []Run, stats []LevelStats) (Matrix, error) {
	m := Matrix{
		Labels: make([]string, len(runs)),
		Z:      make([][]float64, len(runs)),
	}
	for i, run := range runs {
		if len(run.Values) != len(stats) {
			return Matrix{}, fmt.Errorf("westgard: run %q has %d values, want %d (one per level)",
				run.Label, len(run.Values), len(stats))
		}
		row := make([]float64, len(stats))
		for l, v := range run.Values {
			row[l] = ZScore(v, stats[l].Mean, stats[l].SD)
		}
		m.Labels[i] = run.Label
		m.Z[i] = row
	}
	return m, nil
}

// levels returns the number of level columns, 0 for an empty matrix.
func (m Matrix) levels() int {
	if len(m.Z) == 0 {
		return 0
	}
	return len(m.Z[0])
}

// validate checks the structural invariants the engine depends on.
func (m Matrix) validate(levelCount int) error {
	if levelCount != 2 && levelCount != 3 {
		return fmt.Errorf("westgard: level count must be 2 or 3, got %d", levelCount)
	}
	if len(m.Z) == 0 {
		return fmt.Errorf("westgard: empty matrix — no runs to evaluate")
	}
	for i, row := range m.Z {
		if len(row) != levelCount {
			return fmt.Errorf("westgard: run %d has %d level columns, want %d", i, len(row), levelCount)
		}
	}
	return nil
}

// Hit is one detected rule violation. Run is the row index of the last run in
// the qualifying window; Levels are the implicated level columns (0-based,
// ascending).
type Hit struct {
	Rule    Rule
	Run     int
	Levels  []int
	Message string
}

// sign returns +1, -1 or 0 for z. NaN maps to 0, so a missing or exactly-zero
// cell never sign-matches either side in multi-point accumulation rules.
func sign(z float64) int {
	switch {
	case z > 0:
		return 1
	case z < 0:
		return -1
	default:
		return 0
	}
}

// missing reports whether a matrix cell holds no usable z-score.
func missing(z float64) bool { return math.IsNaN(z) }
