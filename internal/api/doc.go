// Package api defines wire-format types and converters shared by the IPC and
// HTTP layers. It turns queue transfers, sync summaries, and storage health
// into DTOs the CLI can render without importing agent internals.
//
// DTOs use camelCase JSON tags to match the persisted queue format.
// Timestamps use RFC3339 with milliseconds. Retry state is derived from the
// configured policy at conversion time, so RetriesLeft and NextRetry always
// reflect the agent's current settings.
package api
