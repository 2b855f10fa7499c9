// Package manager coordinates inference requests over the single decode
// capacity of the process. It is structured into small files by concern:
//
//   - manager.go: core Manager type, model resolution, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: coordinator and request states, request records.
//   - errors.go: error types and helpers (IsOverloaded, IsModelNotFound).
//   - admission.go: request validation and the bounded FIFO queue.
//   - worker.go: the decode worker and terminal state transitions.
//   - stream.go: the caller side of an admitted request.
//   - infer.go: Submit and the NDJSON streaming entry point.
//   - requests.go: request lookup, cancellation and retained records.
//   - status_report.go: Status, Ready and SanityCheck.
//   - stats.go: recent decode throughput.
//   - metrics.go: Prometheus collectors.
//   - lifecycle.go: Preload and Close (drain).
//
// A request moves queued -> running -> {completed, cancelled, failed} and
// reaches exactly one terminal state. Requests cancelled while queued are
// finished without a decode session. Only the worker goroutine decodes.
package manager
