// Package storage provides the durable key/value backends that hold the
// serialized transfer queue.
//
// SQLite is the default and keeps every key in one kv_store table; File keeps
// one JSON document per key guarded by a flock. Both guarantee that a reader
// never observes a partially written value.
package storage
