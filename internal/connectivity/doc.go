// Package connectivity tells the sync engine whether the custody service is
// reachable and when that changes.
//
// Monitor probes the endpoint with a TCP dial on an interval; NetlinkWatcher
// listens for udev interface events and kicks an immediate probe. Static is a
// hand-driven Observer for tests and offline agent runs.
package connectivity
