package westgard

import (
	"sort"
	"strings"
)

// Status is the three-way verdict for a run or a control point.
type Status string

// Verdict statuses.
const (
	StatusPass    Status = "pass"
	StatusWarning Status = "warning"
	StatusReject  Status = "reject"
)

// RunVerdict is the aggregated verdict for one run. Rejections and Warnings
// hold the human-readable rule messages, each sorted and deduplicated.
type RunVerdict struct {
	Label      string
	Status     Status
	Rejections []string
	Warnings   []string
}

// Display returns the run's messages as one string, rejections first, for
// report tables.
func (v RunVerdict) Display() string {
	return strings.Join(append(append([]string(nil), v.Rejections...), v.Warnings...), "; ")
}

// PointVerdict is the aggregated verdict for one (run, level) control point.
// Level is 1-based, matching how levels are named in messages and reports.
type PointVerdict struct {
	Label      string
	Level      int
	Status     Status
	Rejections []string
	Warnings   []string
}

// Display returns the point's messages as one string, rejections first.
func (v PointVerdict) Display() string {
	return strings.Join(append(append([]string(nil), v.Rejections...), v.Warnings...), "; ")
}

// Aggregate reduces a hit list into per-run and per-point verdicts. A run or
// point rejects if any rejection-rule hit implicates it, warns if only
// warning hits do, and passes otherwise. Output ordering and message strings
// depend only on the hit contents, never on detection order, so identical
// inputs always aggregate identically.
func Aggregate(hits []Hit, m Matrix) ([]RunVerdict, []PointVerdict) {
	nRuns, nLevels := len(m.Z), m.levels()

	runRej := make([]map[string]bool, nRuns)
	runWarn := make([]map[string]bool, nRuns)
	pointRej := make([][]map[string]bool, nRuns)
	pointWarn := make([][]map[string]bool, nRuns)
	for i := 0; i < nRuns; i++ {
		runRej[i] = map[string]bool{}
		runWarn[i] = map[string]bool{}
		pointRej[i] = make([]map[string]bool, nLevels)
		pointWarn[i] = make([]map[string]bool, nLevels)
		for l := 0; l < nLevels; l++ {
			pointRej[i][l] = map[string]bool{}
			pointWarn[i][l] = map[string]bool{}
		}
	}

	for _, h := range hits {
		run, point := runRej, pointRej
		if h.Rule.IsWarning() {
			run, point = runWarn, pointWarn
		}
		run[h.Run][h.Message] = true
		for _, l := range h.Levels {
			point[h.Run][l][h.Message] = true
		}
	}

	runs := make([]RunVerdict, nRuns)
	for i := 0; i < nRuns; i++ {
		rejs, warns := sortedMessages(runRej[i]), sortedMessages(runWarn[i])
		runs[i] = RunVerdict{
			Label:      m.Labels[i],
			Status:     statusOf(rejs, warns),
			Rejections: rejs,
			Warnings:   warns,
		}
	}

	points := make([]PointVerdict, 0, nRuns*nLevels)
	for i := 0; i < nRuns; i++ {
		for l := 0; l < nLevels; l++ {
			rejs, warns := sortedMessages(pointRej[i][l]), sortedMessages(pointWarn[i][l])
			points = append(points, PointVerdict{
				Label:      m.Labels[i],
				Level:      l + 1,
				Status:     statusOf(rejs, warns),
				Rejections: rejs,
				Warnings:   warns,
			})
		}
	}

	return runs, points
}

func statusOf(rejs, warns []string) Status {
	switch {
	case len(rejs) > 0:
		return StatusReject
	case len(warns) > 0:
		return StatusWarning
	default:
		return StatusPass
	}
}

func sortedMessages(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for msg := range set {
		out = append(out, msg)
	}
	sort.Strings(out)
	return out
}

// Evaluation is the full result of one engine pass: the resolved sigma
// category and active rejection rules plus the aggregated verdict tables.
type Evaluation struct {
	Category    Category
	ActiveRules []Rule
	Runs        []RunVerdict
	Points      []PointVerdict
}

// Evaluate runs the whole pipeline over a prepared matrix: structural
// validation, sigma rule-set resolution, detection, aggregation. The only
// errors are configuration errors — an empty matrix, a level-column count
// that does not match levelCount, or a levelCount outside {2, 3}. Malformed
// individual cells never error; they surface as missing z-scores.
func Evaluate(m Matrix, sigma float64, levelCount int) (*Evaluation, error) {
	if err := m.validate(levelCount); err != nil {
		return nil, err
	}

	cat, active := Resolve(sigma, levelCount)
	hits := Detect(m, active)
	runs, points := Aggregate(hits, m)

	return &Evaluation{
		Category:    cat,
		ActiveRules: active.Codes(),
		Runs:        runs,
		Points:      points,
	}, nil
}
