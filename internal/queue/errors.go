package queue

import "errors"

var (
	// ErrNotFound is returned when no transfer has the requested id.
	ErrNotFound = errors.New("transfer not found")
	// ErrDuplicateID is returned when a transfer id is already queued.
	ErrDuplicateID = errors.New("duplicate transfer id")
	// ErrInvalidTransfer is returned when required transfer fields are missing or malformed.
	ErrInvalidTransfer = errors.New("invalid transfer")
	// ErrInvalidStatus is returned for status values outside the lifecycle.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrNotLoaded is returned when a mutation cannot read the persisted queue
	// it would overwrite.
	ErrNotLoaded = errors.New("queue not loaded")
)
