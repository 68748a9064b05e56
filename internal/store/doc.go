// Package store manages the in-memory evaluation state for sigmaqc-server.
// It provides a thread-safe per-analyte store with TTL eviction: each new
// evaluation for an analyte replaces the previous one and resets its clock.
package store
