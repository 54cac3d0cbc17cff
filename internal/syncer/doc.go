// Package syncer drains the offline transfer queue to the custody service.
//
// Every trigger (connectivity coming back, a new transfer, the operator
// returning to the app, or an explicit request) funnels into
// Engine.AttemptPass, which refuses to run concurrently with itself.
// Within a pass transfers are grouped by property and submitted oldest
// first, so the custody chain for one item is replayed in order. FAILED
// transfers are resent only while RetryPolicy allows; completed ones are
// purged once the pass ends.
package syncer
