// Package notifications sends ntfy push messages about sync passes and
// transfers that have run out of automatic retries. Without a configured
// topic every call is a no-op.
package notifications
