// Package alerts turns rejected evaluations into webhook notifications.
package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sigmaqc/sigmaqc/internal/config"
	"github.com/sigmaqc/sigmaqc/internal/store"
	"github.com/sigmaqc/sigmaqc/pkg/westgard"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert represents a single out-of-control notification produced by the engine.
type Alert struct {
	ID         string     `json:"id"`
	Analyte    string     `json:"analyte"`
	Severity   string     `json:"severity"`
	Rules      []string   `json:"rules"`
	Message    string     `json:"message"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

// Engine watches incoming evaluation records and delivers webhook
// notifications when an analyte goes out of control (any rejected run) and
// when it returns to control.
//
// Engine is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	cooldown time.Duration
	webhooks []config.WebhookConfig
	active   map[string]*Alert    // key: analyte
	lastFire map[string]time.Time // last fire time per analyte
	history  []*Alert             // recently resolved alerts
	client   *http.Client
	now      func() time.Time
}

// New creates an Engine from the alert configuration.
// An Engine with no webhooks is valid — alerts are still tracked for the API.
func New(cfg config.AlertsConfig) *Engine {
	return &Engine{
		cooldown: cfg.Cooldown,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// UpdateConfig swaps in reloaded alert settings. In-flight state (active
// alerts, cooldown clocks) is preserved.
func (e *Engine) UpdateConfig(cfg config.AlertsConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cooldown = cfg.Cooldown
	e.webhooks = cfg.Webhooks
}

// Evaluate inspects a freshly stored evaluation. An analyte with at least one
// rejected run fires an alert (subject to the cooldown); an analyte whose
// alert was firing and now has no rejected runs is resolved. Webhook delivery
// happens asynchronously.
func (e *Engine) Evaluate(rec *store.Record) {
	rejected, rules := rejectedRuns(rec)
	now := e.now()

	e.mu.Lock()

	if len(rejected) > 0 {
		cooldown := e.cooldown
		if cooldown <= 0 {
			cooldown = defaultCooldown
		}
		if now.Sub(e.lastFire[rec.Analyte]) <= cooldown {
			e.mu.Unlock()
			return
		}

		a := &Alert{
			ID:       fmt.Sprintf("%s:%d", rec.Analyte, now.UnixNano()),
			Analyte:  rec.Analyte,
			Severity: "critical",
			Rules:    rules,
			Message: fmt.Sprintf("[critical] QC reject on %s — runs %s violate %s",
				rec.Analyte, strings.Join(rejected, ", "), strings.Join(rules, ", ")),
			FiredAt: now,
			State:   "firing",
		}
		e.active[rec.Analyte] = a
		e.lastFire[rec.Analyte] = now
		alertCopy := *a
		e.mu.Unlock()

		slog.Warn("alert fired",
			"analyte", rec.Analyte,
			"runs", len(rejected),
			"rules", rules,
		)
		go e.deliver(&alertCopy)
		return
	}

	a, ok := e.active[rec.Analyte]
	if !ok || a.State != "firing" {
		e.mu.Unlock()
		return
	}
	resolved := now
	a.State = "resolved"
	a.ResolvedAt = &resolved
	delete(e.active, rec.Analyte)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	alertCopy := *a
	e.mu.Unlock()

	slog.Info("alert resolved", "analyte", rec.Analyte)
	go e.deliver(&alertCopy)
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, ordered by fire time (ties broken by ID) so
// repeated calls present a stable list.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FiredAt.Equal(out[j].FiredAt) {
			return out[i].FiredAt.Before(out[j].FiredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// rejectedRuns returns the labels of all rejected runs in rec plus the sorted
// set of rejection rule codes involved. Codes are the leading token of each
// rejection message.
func rejectedRuns(rec *store.Record) (labels, rules []string) {
	codes := map[string]bool{}
	for _, r := range rec.Result.Runs {
		if r.Status != westgard.StatusReject {
			continue
		}
		labels = append(labels, r.Label)
		for _, msg := range r.Rejections {
			if tok, _, _ := strings.Cut(msg, " "); tok != "" {
				codes[tok] = true
			}
		}
	}
	for c := range codes {
		rules = append(rules, c)
	}
	sort.Strings(rules)
	return labels, rules
}
