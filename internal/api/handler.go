package api

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sigmaqc/sigmaqc/internal/alerts"
	"github.com/sigmaqc/sigmaqc/internal/config"
	"github.com/sigmaqc/sigmaqc/internal/metrics"
	"github.com/sigmaqc/sigmaqc/internal/store"
	"github.com/sigmaqc/sigmaqc/pkg/westgard"
)

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It runs evaluations, reads results back from the store, and returns JSON.
type Handler struct {
	store    *store.Store
	alerts   *alerts.Engine
	limits   config.LimitsConfig
	defaults config.DefaultsConfig
	mux      *http.ServeMux
	newID    func() string // injectable for deterministic tests
}

// New creates a Handler wired to the given store and alert engine and
// registers all routes.
func New(st *store.Store, al *alerts.Engine, limits config.LimitsConfig, defaults config.DefaultsConfig) *Handler {
	h := &Handler{
		store:    st,
		alerts:   al,
		limits:   limits,
		defaults: defaults,
		mux:      http.NewServeMux(),
		newID:    uuid.NewString,
	}

	h.mux.HandleFunc("/api/v1/evaluate", h.evaluate)
	h.mux.HandleFunc("/api/v1/evaluations", h.listEvaluations)
	h.mux.HandleFunc("/api/v1/evaluations/", h.getEvaluation) // subtree — extracts {analyte}
	h.mux.HandleFunc("/api/v1/rules", h.rules)
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/health", h.health)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
	h.mux.ServeHTTP(rec, r)
	metrics.HTTPRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.code)).Inc()
}

// --- route handlers ---------------------------------------------------------

// evaluate handles POST /api/v1/evaluate — runs the Westgard engine over one
// analyte's series and stores the result.
func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if req.Analyte == "" {
		jsonErr(w, http.StatusBadRequest, "analyte is required")
		return
	}
	if len(req.Runs) == 0 {
		jsonErr(w, http.StatusBadRequest, "runs must not be empty")
		return
	}
	if len(req.Runs) > h.limits.MaxRuns {
		jsonErr(w, http.StatusRequestEntityTooLarge,
			"too many runs: "+strconv.Itoa(len(req.Runs))+" exceeds limit "+strconv.Itoa(h.limits.MaxRuns))
		return
	}

	sigma := h.defaults.Sigma
	if req.Sigma != nil {
		sigma = *req.Sigma
	}
	levelCount := h.defaults.LevelCount
	if req.LevelCount != 0 {
		levelCount = req.LevelCount
	}

	stats := make([]westgard.LevelStats, len(req.Stats))
	for i, s := range req.Stats {
		stats[i] = westgard.LevelStats{Mean: deref(s.Mean), SD: deref(s.SD)}
	}
	runs := make([]westgard.Run, len(req.Runs))
	for i, rn := range req.Runs {
		values := make([]float64, len(rn.Values))
		for l, v := range rn.Values {
			values[l] = deref(v)
		}
		label := rn.Label
		if label == "" {
			label = strconv.Itoa(i + 1)
		}
		runs[i] = westgard.Run{Label: label, Values: values}
	}

	start := time.Now()
	m, err := westgard.BuildMatrix(runs, stats)
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues("error").Inc()
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := westgard.Evaluate(m, sigma, levelCount)
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues("error").Inc()
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	metrics.EvaluationsTotal.WithLabelValues("ok").Inc()
	countRuleHits(ev)

	rec := &store.Record{
		ID:         h.newID(),
		Analyte:    req.Analyte,
		Sigma:      sigma,
		LevelCount: levelCount,
		Result:     ev,
	}
	entry := h.store.Put(rec)
	metrics.LiveAnalytes.Set(float64(len(h.store.List())))
	if h.alerts != nil {
		h.alerts.Evaluate(rec)
	}

	jsonResp(w, http.StatusOK, toEvaluationResponse(entry))
}

// listEvaluations handles GET /api/v1/evaluations — one summary row per live
// analyte.
func (h *Handler) listEvaluations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store))
}

// getEvaluation handles GET /api/v1/evaluations/{analyte} — the full verdict
// tables for one analyte.
func (h *Handler) getEvaluation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	analyte := strings.TrimPrefix(r.URL.Path, "/api/v1/evaluations/")
	if analyte == "" {
		h.listEvaluations(w, r)
		return
	}

	e, ok := h.store.Get(analyte)
	if !ok {
		jsonErr(w, http.StatusNotFound, "analyte not found")
		return
	}
	// Exclude stale entries — treat them as not found.
	if time.Since(e.UpdatedAt) > h.store.TTL() {
		jsonErr(w, http.StatusNotFound, "analyte not found")
		return
	}

	jsonResp(w, http.StatusOK, toEvaluationResponse(e))
}

// rules handles GET /api/v1/rules?sigma=&levels= — the sigma category and
// rejection rule set without running an evaluation.
func (h *Handler) rules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sigma := h.defaults.Sigma
	if raw := r.URL.Query().Get("sigma"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "sigma must be a number")
			return
		}
		sigma = v
	}
	levelCount := h.defaults.LevelCount
	if raw := r.URL.Query().Get("levels"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || (v != 2 && v != 3) {
			jsonErr(w, http.StatusBadRequest, "levels must be 2 or 3")
			return
		}
		levelCount = v
	}

	cat, set := westgard.Resolve(sigma, levelCount)
	jsonResp(w, http.StatusOK, RulesResponse{
		Sigma:          sigma,
		LevelCount:     levelCount,
		SigmaCategory:  string(cat),
		RejectionRules: ruleStrings(set.Codes()),
	})
}

// listAlerts handles GET /api/v1/alerts — firing and recently resolved alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []struct{}{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// health handles GET /api/v1/health — store counts and an overall rollup.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.store.List()
	resp := HealthResponse{AnalyteCount: len(entries), Status: string(westgard.StatusPass)}
	for _, e := range entries {
		switch worstStatus(e.Record.Result) {
		case westgard.StatusReject:
			resp.RejectCount++
		case westgard.StatusWarning:
			resp.WarningCount++
		default:
			resp.PassCount++
		}
	}
	switch {
	case resp.RejectCount > 0:
		resp.Status = string(westgard.StatusReject)
	case resp.WarningCount > 0:
		resp.Status = string(westgard.StatusWarning)
	}
	jsonResp(w, http.StatusOK, resp)
}

// --- helpers ----------------------------------------------------------------

// BuildSnapshot assembles the live per-analyte summary served by the list
// endpoint and broadcast by the WebSocket hub.
func BuildSnapshot(st *store.Store) SnapshotResponse {
	entries := st.List()
	out := make([]SummaryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toSummaryResponse(e))
	}
	// Deterministic ordering for clients; store iteration order is random.
	sort.Slice(out, func(i, j int) bool { return out[i].Analyte < out[j].Analyte })
	return SnapshotResponse{
		Evaluations: out,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func toSummaryResponse(e *store.Entry) SummaryResponse {
	rec := e.Record
	s := SummaryResponse{
		ID:            rec.ID,
		Analyte:       rec.Analyte,
		SigmaCategory: string(rec.Result.Category),
		Status:        string(worstStatus(rec.Result)),
		RunCount:      len(rec.Result.Runs),
		UpdatedAt:     e.UpdatedAt.UTC().Format(time.RFC3339),
	}
	for _, r := range rec.Result.Runs {
		switch r.Status {
		case westgard.StatusReject:
			s.RejectCount++
		case westgard.StatusWarning:
			s.WarningCount++
		}
	}
	return s
}

func toEvaluationResponse(e *store.Entry) EvaluationResponse {
	rec := e.Record
	resp := EvaluationResponse{
		ID:            rec.ID,
		Analyte:       rec.Analyte,
		Sigma:         rec.Sigma,
		LevelCount:    rec.LevelCount,
		SigmaCategory: string(rec.Result.Category),
		ActiveRules:   ruleStrings(rec.Result.ActiveRules),
		Runs:          make([]RunVerdict, 0, len(rec.Result.Runs)),
		Points:        make([]PointVerdict, 0, len(rec.Result.Points)),
		UpdatedAt:     e.UpdatedAt.UTC().Format(time.RFC3339),
	}
	for _, r := range rec.Result.Runs {
		resp.Runs = append(resp.Runs, RunVerdict{
			RunLabel:   r.Label,
			Status:     string(r.Status),
			Rejections: r.Rejections,
			Warnings:   r.Warnings,
			Display:    r.Display(),
		})
	}
	for _, p := range rec.Result.Points {
		resp.Points = append(resp.Points, PointVerdict{
			RunLabel:  p.Label,
			Level:     p.Level,
			Status:    string(p.Status),
			RuleCodes: p.Display(),
		})
	}
	return resp
}

// worstStatus returns the most severe run status in the evaluation.
func worstStatus(ev *westgard.Evaluation) westgard.Status {
	worst := westgard.StatusPass
	for _, r := range ev.Runs {
		switch r.Status {
		case westgard.StatusReject:
			return westgard.StatusReject
		case westgard.StatusWarning:
			worst = westgard.StatusWarning
		}
	}
	return worst
}

// countRuleHits tallies rule codes from verdict messages into the Prometheus
// counter. Codes are the leading token of each message.
func countRuleHits(ev *westgard.Evaluation) {
	for _, r := range ev.Runs {
		for _, msg := range append(append([]string(nil), r.Rejections...), r.Warnings...) {
			if code, _, _ := strings.Cut(msg, " "); code != "" {
				metrics.RuleHitsTotal.WithLabelValues(code).Inc()
			}
		}
	}
}

func ruleStrings(rules []westgard.Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = string(r)
	}
	return out
}

// deref converts an optional JSON number to the engine's NaN-is-missing
// convention.
func deref(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// statusRecorder captures the response status for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}
