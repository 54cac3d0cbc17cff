// Command handreceipt is the operator CLI for the HandReceipt sync agent.
//
// Most subcommands talk to the running agent over its IPC socket. Queue
// inspection and cleanup fall back to reading queue storage directly when
// the agent is not running.
package main
