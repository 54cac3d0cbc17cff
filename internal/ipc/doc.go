// Package ipc exposes the agent over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// The server translates agent results into the api DTOs so CLI output and
// the HTTP status API stay in agreement.
package ipc
