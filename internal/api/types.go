package api

// EvaluateRequest is the body of POST /api/v1/evaluate: one analyte's ordered
// measurement series plus its reference statistics and method configuration.
type EvaluateRequest struct {
	// Analyte names the test this series belongs to; it keys the store.
	Analyte string `json:"analyte"`

	// Sigma is the method sigma score. Omitted or null falls back to the
	// configured default; 0 means "unknown" and selects the <4 band.
	Sigma *float64 `json:"sigma,omitempty"`

	// LevelCount is the number of control levels (2 or 3). 0 falls back to
	// the configured default.
	LevelCount int `json:"level_count,omitempty"`

	// Stats holds the reference mean/SD per control level, in level order.
	Stats []LevelStats `json:"stats"`

	// Runs is the measurement series in temporal order.
	Runs []RunInput `json:"runs"`
}

// LevelStats is one level's reference statistic pair. A null SD (e.g. a
// baseline of one point) makes every z-score for that level missing.
type LevelStats struct {
	Mean *float64 `json:"mean"`
	SD   *float64 `json:"sd"`
}

// RunInput is one measurement row: an opaque label (date or run number) and
// one value slot per control level; null marks a missing measurement.
type RunInput struct {
	Label  string     `json:"label"`
	Values []*float64 `json:"values"`
}

// RunVerdict is the per-run row of the verdict table.
type RunVerdict struct {
	RunLabel   string   `json:"run_label"`
	Status     string   `json:"status"`
	Rejections []string `json:"rejection_messages"`
	Warnings   []string `json:"warning_messages"`
	Display    string   `json:"display"`
}

// PointVerdict is the per-(run, level) row of the verdict table. Level is
// 1-based. RuleCodes is the display-ready message list, rejections first.
type PointVerdict struct {
	RunLabel  string `json:"run_label"`
	Level     int    `json:"level"`
	Status    string `json:"status"`
	RuleCodes string `json:"rule_codes"`
}

// EvaluationResponse is the full result of one evaluation, returned by the
// evaluate endpoint and by GET /api/v1/evaluations/{analyte}.
type EvaluationResponse struct {
	ID            string         `json:"id"`
	Analyte       string         `json:"analyte"`
	Sigma         float64        `json:"sigma"`
	LevelCount    int            `json:"level_count"`
	SigmaCategory string         `json:"sigma_category"`
	ActiveRules   []string       `json:"active_rules"`
	Runs          []RunVerdict   `json:"runs"`
	Points        []PointVerdict `json:"points"`
	UpdatedAt     string         `json:"updated_at"`
}

// SummaryResponse is the per-analyte row of GET /api/v1/evaluations.
type SummaryResponse struct {
	ID            string `json:"id"`
	Analyte       string `json:"analyte"`
	SigmaCategory string `json:"sigma_category"`
	Status        string `json:"status"` // worst run status in the series
	RunCount      int    `json:"run_count"`
	RejectCount   int    `json:"reject_count"`
	WarningCount  int    `json:"warning_count"`
	UpdatedAt     string `json:"updated_at"`
}

// SnapshotResponse is the envelope broadcast to WebSocket clients and served
// by GET /api/v1/evaluations.
type SnapshotResponse struct {
	Evaluations []SummaryResponse `json:"evaluations"`
	GeneratedAt string            `json:"generated_at"`
}

// RulesResponse is the resolver preview served by GET /api/v1/rules, used for
// display and report headers.
type RulesResponse struct {
	Sigma          float64  `json:"sigma"`
	LevelCount     int      `json:"level_count"`
	SigmaCategory  string   `json:"sigma_category"`
	RejectionRules []string `json:"rejection_rules"`
}

// HealthResponse summarises the live store for GET /api/v1/health.
type HealthResponse struct {
	AnalyteCount int    `json:"analyte_count"`
	PassCount    int    `json:"pass_count"`
	WarningCount int    `json:"warning_count"`
	RejectCount  int    `json:"reject_count"`
	Status       string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}
