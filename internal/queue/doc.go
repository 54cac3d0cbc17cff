// Package queue holds the offline custody-transfer queue and its retry policy.
//
// The Queue keeps an in-memory mirror of the persisted list, persists every
// mutation through a storage.Backend before the mirror changes, and publishes
// snapshots to subscribers. Status transitions follow the lifecycle
// PENDING -> SYNCING -> COMPLETED | FAILED; FAILED returns to PENDING only
// through RetryFailed.
//
// The persisted format is a single JSON array under one key. Load treats
// absent or malformed content as an empty queue.
package queue
