// Package agent hosts the long-running HandReceipt process for one device.
//
// An Agent holds the single-instance lock, restores the persisted queue,
// recovers transfers a previous run left mid-submission, and wires the
// connectivity monitor and netlink watcher to the sync engine. It also serves
// a small HTTP API (status, queue views, manual sync, Prometheus metrics)
// guarded by an optional bearer token.
package agent
