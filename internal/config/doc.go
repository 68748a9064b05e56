// Package config loads the server configuration from the `server:` section of
// config.yaml.
//
// Config fields:
//   - HTTPPort        — port for the REST API, WebSocket hub and /metrics (default 8080)
//   - Auth.Mode       — "apikey" or "none"
//   - Auth.KeyEnv     — environment variable holding the expected API key
//   - Auth.Header     — HTTP header name (default "x-api-key")
//   - Retention.TTL   — how long an analyte's evaluation remains live (default 24h)
//   - Stream.Interval — WebSocket broadcast cadence (default 5s)
//   - Limits.MaxRuns  — largest run count accepted per request (default 500)
//   - Defaults        — sigma and level count assumed when a request omits them
//   - Alerts          — reject-notification cooldown and webhook targets
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, onChange) reloads the file on change via fsnotify.
package config
