// Package api implements the HTTP REST API for sigmaqc-server.
//
// New(store, alerts, limits, defaults) returns an http.Handler that serves:
//
//	POST /api/v1/evaluate              — run the rule engine over one analyte's series
//	GET  /api/v1/evaluations           — one summary row per live analyte
//	GET  /api/v1/evaluations/{analyte} — full verdict tables; 404 if unknown or stale
//	GET  /api/v1/rules                 — sigma category and rule set for ?sigma=&levels=
//	GET  /api/v1/alerts                — firing and recently resolved alerts
//	GET  /api/v1/health                — analyte counts and worst-status rollup
//
// All endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for unsupported methods
//   - Read live entries from the store (stale entries excluded from lists)
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
