// Package receiver implements the custody service that accepts transfers
// submitted by HandReceipt agents.
//
// Each property has at most one holder. A transfer is accepted when the
// property has no holder yet or when its fromUserId matches the current
// holder; the toUserId then becomes the holder. Transfers are keyed by id so
// an agent retrying an already accepted transfer gets the original answer
// back instead of a custody mismatch.
package receiver
