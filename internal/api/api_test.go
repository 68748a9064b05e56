package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sigmaqc/sigmaqc/internal/api"
	"github.com/sigmaqc/sigmaqc/internal/config"
	"github.com/sigmaqc/sigmaqc/internal/store"
)

// --- test helpers -----------------------------------------------------------

func newHandler(st *store.Store) *api.Handler {
	return api.New(st, nil,
		config.LimitsConfig{MaxRuns: 100},
		config.DefaultsConfig{Sigma: 6.0, LevelCount: 2},
	)
}

func f(v float64) *float64 { return &v }

// evaluateBody builds a two-level request around mean 100 / SD 5 per level.
func evaluateBody(analyte string, sigma float64, rows ...[]*float64) []byte {
	req := api.EvaluateRequest{
		Analyte: analyte,
		Sigma:   f(sigma),
		Stats: []api.LevelStats{
			{Mean: f(100), SD: f(5)},
			{Mean: f(100), SD: f(5)},
		},
	}
	for i, row := range rows {
		req.Runs = append(req.Runs, api.RunInput{Label: "r" + string(rune('0'+i+1)), Values: row})
	}
	b, _ := json.Marshal(req)
	return b
}

func post(t *testing.T, h http.Handler, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body)))
	return rr
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/evaluate -------------------------------------------------------

func TestEvaluate_Roundtrip(t *testing.T) {
	h := newHandler(store.New(5 * time.Minute))

	// Run 2 carries a 3.4 SD excursion on level 1.
	body := evaluateBody("glucose", 5.0,
		[]*float64{f(100), f(102)},
		[]*float64{f(117), f(99)},
	)
	rr := post(t, h, "/api/v1/evaluate", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}

	var resp api.EvaluationResponse
	decode(t, rr, &resp)

	if resp.Analyte != "glucose" {
		t.Errorf("analyte: got %q, want glucose", resp.Analyte)
	}
	if resp.SigmaCategory != "5" {
		t.Errorf("sigma_category: got %q, want 5", resp.SigmaCategory)
	}
	wantRules := []string{"1_3s", "2_2s", "R_4s"}
	if len(resp.ActiveRules) != len(wantRules) {
		t.Fatalf("active_rules: got %v, want %v", resp.ActiveRules, wantRules)
	}
	for i, r := range wantRules {
		if resp.ActiveRules[i] != r {
			t.Errorf("active_rules[%d]: got %q, want %q", i, resp.ActiveRules[i], r)
		}
	}

	if len(resp.Runs) != 2 {
		t.Fatalf("runs: got %d rows, want 2", len(resp.Runs))
	}
	if resp.Runs[0].Status != "pass" {
		t.Errorf("runs[0].status: got %q, want pass", resp.Runs[0].Status)
	}
	if resp.Runs[1].Status != "reject" {
		t.Errorf("runs[1].status: got %q, want reject", resp.Runs[1].Status)
	}
	if len(resp.Runs[1].Rejections) != 1 || resp.Runs[1].Rejections[0] != "1_3s (level 1, z=3.40)" {
		t.Errorf("runs[1].rejection_messages: got %v", resp.Runs[1].Rejections)
	}
	if len(resp.Runs[1].Warnings) != 0 {
		t.Errorf("runs[1].warning_messages: got %v, want none", resp.Runs[1].Warnings)
	}
	if resp.Runs[1].Display != "1_3s (level 1, z=3.40)" {
		t.Errorf("runs[1].display: got %q", resp.Runs[1].Display)
	}

	var rejected *api.PointVerdict
	for i := range resp.Points {
		if resp.Points[i].Status == "reject" {
			rejected = &resp.Points[i]
		}
	}
	if rejected == nil {
		t.Fatal("points: expected one rejected point")
	}
	if rejected.RunLabel != "r2" || rejected.Level != 1 {
		t.Errorf("rejected point: got run %q level %d, want r2 level 1", rejected.RunLabel, rejected.Level)
	}
}

func TestEvaluate_DefaultsApplied(t *testing.T) {
	h := newHandler(store.New(5 * time.Minute))

	// No sigma in the request: falls back to the configured default 6.0.
	req := api.EvaluateRequest{
		Analyte: "sodium",
		Stats:   []api.LevelStats{{Mean: f(140), SD: f(2)}, {Mean: f(140), SD: f(2)}},
		Runs:    []api.RunInput{{Label: "d1", Values: []*float64{f(141), f(139)}}},
	}
	b, _ := json.Marshal(req)
	rr := post(t, h, "/api/v1/evaluate", b)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}

	var resp api.EvaluationResponse
	decode(t, rr, &resp)
	if resp.Sigma != 6.0 {
		t.Errorf("sigma: got %v, want default 6.0", resp.Sigma)
	}
	if resp.SigmaCategory != "6" {
		t.Errorf("sigma_category: got %q, want 6", resp.SigmaCategory)
	}
	if resp.LevelCount != 2 {
		t.Errorf("level_count: got %d, want default 2", resp.LevelCount)
	}
}

func TestEvaluate_NullValueIsMissing(t *testing.T) {
	h := newHandler(store.New(5 * time.Minute))

	body := evaluateBody("tsh", 6.0,
		[]*float64{nil, f(101)},
	)
	rr := post(t, h, "/api/v1/evaluate", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}

	var resp api.EvaluationResponse
	decode(t, rr, &resp)
	if resp.Runs[0].Status != "pass" {
		t.Errorf("run with one missing value: got %q, want pass", resp.Runs[0].Status)
	}
	// The missing cell does not fail the run; both points report pass.
	if len(resp.Points) != 2 {
		t.Fatalf("points: got %d rows, want 2", len(resp.Points))
	}
	for _, p := range resp.Points {
		if p.Status != "pass" {
			t.Errorf("point level %d: got %q, want pass", p.Level, p.Status)
		}
	}
}

func TestEvaluate_ZeroRetentionStillResponds(t *testing.T) {
	// With retention.ttl 0 every entry is stale the instant it is stored.
	// The response must come from the write itself, not a store re-read.
	h := newHandler(store.New(0))

	body := evaluateBody("glucose", 6.0, []*float64{f(100), f(101)})
	rr := post(t, h, "/api/v1/evaluate", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}

	var resp api.EvaluationResponse
	decode(t, rr, &resp)
	if resp.Analyte != "glucose" || len(resp.Runs) != 1 {
		t.Errorf("response: got analyte %q with %d runs, want glucose with 1", resp.Analyte, len(resp.Runs))
	}

	// The list view excludes the immediately-stale entry.
	var snap api.SnapshotResponse
	decode(t, get(t, h, "/api/v1/evaluations"), &snap)
	if len(snap.Evaluations) != 0 {
		t.Errorf("evaluations with zero TTL: got %d, want 0", len(snap.Evaluations))
	}
}

func TestEvaluate_Validation(t *testing.T) {
	h := newHandler(store.New(5 * time.Minute))

	cases := []struct {
		name string
		body string
		code int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing analyte", `{"runs":[{"values":[1.0,2.0]}]}`, http.StatusBadRequest},
		{"empty runs", `{"analyte":"k","runs":[]}`, http.StatusBadRequest},
		{"bad level count", `{"analyte":"k","level_count":4,"stats":[{"mean":1,"sd":1},{"mean":1,"sd":1}],"runs":[{"values":[1.0,1.0]}]}`, http.StatusBadRequest},
		{"row width mismatch", `{"analyte":"k","stats":[{"mean":1,"sd":1},{"mean":1,"sd":1}],"runs":[{"values":[1.0]}]}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := post(t, h, "/api/v1/evaluate", []byte(tc.body))
			if rr.Code != tc.code {
				t.Errorf("status: got %d, want %d (body: %s)", rr.Code, tc.code, rr.Body.String())
			}
		})
	}
}

func TestEvaluate_TooManyRuns(t *testing.T) {
	st := store.New(5 * time.Minute)
	h := api.New(st, nil,
		config.LimitsConfig{MaxRuns: 2},
		config.DefaultsConfig{Sigma: 6.0, LevelCount: 2},
	)

	body := evaluateBody("glucose", 6.0,
		[]*float64{f(100), f(100)},
		[]*float64{f(100), f(100)},
		[]*float64{f(100), f(100)},
	)
	rr := post(t, h, "/api/v1/evaluate", body)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status: got %d, want 413", rr.Code)
	}
}

func TestEvaluate_MethodNotAllowed(t *testing.T) {
	h := newHandler(store.New(5 * time.Minute))
	rr := get(t, h, "/api/v1/evaluate")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/evaluations ----------------------------------------------------

func TestListEvaluations(t *testing.T) {
	h := newHandler(store.New(5 * time.Minute))

	for _, a := range []string{"sodium", "glucose"} {
		body := evaluateBody(a, 6.0, []*float64{f(100), f(101)})
		if rr := post(t, h, "/api/v1/evaluate", body); rr.Code != http.StatusOK {
			t.Fatalf("seed %s: status %d", a, rr.Code)
		}
	}

	rr := get(t, h, "/api/v1/evaluations")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.SnapshotResponse
	decode(t, rr, &resp)

	if len(resp.Evaluations) != 2 {
		t.Fatalf("evaluations: got %d, want 2", len(resp.Evaluations))
	}
	// Sorted by analyte.
	if resp.Evaluations[0].Analyte != "glucose" || resp.Evaluations[1].Analyte != "sodium" {
		t.Errorf("order: got %q, %q, want glucose, sodium",
			resp.Evaluations[0].Analyte, resp.Evaluations[1].Analyte)
	}
}

func TestGetEvaluation(t *testing.T) {
	h := newHandler(store.New(5 * time.Minute))

	body := evaluateBody("glucose", 6.0, []*float64{f(100), f(101)})
	if rr := post(t, h, "/api/v1/evaluate", body); rr.Code != http.StatusOK {
		t.Fatalf("seed: status %d", rr.Code)
	}

	rr := get(t, h, "/api/v1/evaluations/glucose")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.EvaluationResponse
	decode(t, rr, &resp)
	if resp.Analyte != "glucose" {
		t.Errorf("analyte: got %q, want glucose", resp.Analyte)
	}
}

func TestGetEvaluation_NotFound(t *testing.T) {
	h := newHandler(store.New(5 * time.Minute))
	rr := get(t, h, "/api/v1/evaluations/unknown")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

// --- /api/v1/rules ----------------------------------------------------------

func TestRules_Query(t *testing.T) {
	h := newHandler(store.New(5 * time.Minute))

	rr := get(t, h, "/api/v1/rules?sigma=3.5&levels=2")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.RulesResponse
	decode(t, rr, &resp)

	if resp.SigmaCategory != "<4" {
		t.Errorf("sigma_category: got %q, want <4", resp.SigmaCategory)
	}
	want := []string{"10x", "1_3s", "2_2s", "4_1s", "R_4s"}
	if len(resp.RejectionRules) != len(want) {
		t.Fatalf("rejection_rules: got %v, want %v", resp.RejectionRules, want)
	}
	for i, r := range want {
		if resp.RejectionRules[i] != r {
			t.Errorf("rejection_rules[%d]: got %q, want %q", i, resp.RejectionRules[i], r)
		}
	}
}

func TestRules_Defaults(t *testing.T) {
	h := newHandler(store.New(5 * time.Minute))

	rr := get(t, h, "/api/v1/rules")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.RulesResponse
	decode(t, rr, &resp)
	if resp.Sigma != 6.0 || resp.SigmaCategory != "6" {
		t.Errorf("defaults: got sigma %v category %q, want 6.0 / 6", resp.Sigma, resp.SigmaCategory)
	}
}

func TestRules_BadQuery(t *testing.T) {
	h := newHandler(store.New(5 * time.Minute))

	if rr := get(t, h, "/api/v1/rules?sigma=abc"); rr.Code != http.StatusBadRequest {
		t.Errorf("bad sigma: got %d, want 400", rr.Code)
	}
	if rr := get(t, h, "/api/v1/rules?levels=5"); rr.Code != http.StatusBadRequest {
		t.Errorf("bad levels: got %d, want 400", rr.Code)
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_EmptyStore(t *testing.T) {
	h := newHandler(store.New(5 * time.Minute))
	rr := get(t, h, "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.AnalyteCount != 0 {
		t.Errorf("analyte_count: got %d, want 0", resp.AnalyteCount)
	}
	if resp.Status != "pass" {
		t.Errorf("status: got %q, want pass", resp.Status)
	}
}

func TestHealth_Rollup(t *testing.T) {
	h := newHandler(store.New(5 * time.Minute))

	// One clean series, one rejecting series.
	clean := evaluateBody("sodium", 6.0, []*float64{f(100), f(101)})
	if rr := post(t, h, "/api/v1/evaluate", clean); rr.Code != http.StatusOK {
		t.Fatalf("seed sodium: status %d", rr.Code)
	}
	bad := evaluateBody("glucose", 6.0, []*float64{f(120), f(101)})
	if rr := post(t, h, "/api/v1/evaluate", bad); rr.Code != http.StatusOK {
		t.Fatalf("seed glucose: status %d", rr.Code)
	}

	rr := get(t, h, "/api/v1/health")
	var resp api.HealthResponse
	decode(t, rr, &resp)

	if resp.AnalyteCount != 2 {
		t.Errorf("analyte_count: got %d, want 2", resp.AnalyteCount)
	}
	if resp.RejectCount != 1 || resp.PassCount != 1 {
		t.Errorf("counts: got reject=%d pass=%d, want 1/1", resp.RejectCount, resp.PassCount)
	}
	if resp.Status != "reject" {
		t.Errorf("status: got %q, want reject", resp.Status)
	}
}
