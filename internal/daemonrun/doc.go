// Package daemonrun hosts the long-running winescan scan service.
//
// Build wires the catalog store, the fallback normalizer and its cache, the
// metrics registry, the vision client, and the recognition orchestrator into
// an HTTP server. Run adds the process concerns around it: signal handling, a
// single-instance lock in the data directory, a PID file, a per-run log file
// with a stable winescan.log pointer, and log retention.
package daemonrun
