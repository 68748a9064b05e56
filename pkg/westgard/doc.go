// Package westgard evaluates internal-quality-control (IQC) measurement
// series against the Westgard multi-rule scheme.
//
// sigma.go provides Resolve, the total mapping from a method sigma score and
// control-level count to a sigma category and the set of active rejection
// rules. zscore.go standardizes raw measurements against reference mean/SD.
//
// engine.go provides Detect, which scans a run-ordered z-score matrix with
// every active rule independently and returns the complete list of Hits.
// verdict.go reduces the hit list into per-run and per-point verdicts
// (pass / warning / reject).
//
// The whole package is pure computation over an in-memory matrix: no I/O, no
// shared mutable state. Separate evaluations are safe to run concurrently as
// long as each call gets its own Matrix.
package westgard
