// Package preflight provides readiness checks for the custody service and
// the filesystem paths the agent depends on.
//
// The agent runs RunAll at startup and logs failures; nothing is fatal
// because transfers queue locally until the service is reachable. The CLI
// "handreceipt status" command uses the individual checks to display health
// when the agent is not running.
package preflight
