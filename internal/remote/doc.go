// Package remote submits queued transfers to the custody service and
// validates its {success, error} responses before they are trusted.
package remote
