package queue

import "time"

// EventKind names the mutation that produced an Event.
type EventKind string

const (
	EventLoaded        EventKind = "loaded"
	EventSaved         EventKind = "saved"
	EventEnqueued      EventKind = "enqueued"
	EventRemoved       EventKind = "removed"
	EventStatusChanged EventKind = "status_changed"
	EventRetried       EventKind = "retried"
	EventCleared       EventKind = "cleared"
	EventPurged        EventKind = "purged"
	EventRecovered     EventKind = "recovered"
)

// Event carries the queue contents immediately after a mutation.
type Event struct {
	Kind     EventKind
	Snapshot []Transfer
	At       time.Time
}

// Subscribe registers fn for every successful mutation and returns a function
// that removes it. fn runs on the mutating goroutine after the queue lock is
// released, so it may call back into the Queue.
func (q *Queue) Subscribe(fn func(Event)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	q.subsMu.Lock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = fn
	q.subsMu.Unlock()
	return func() {
		q.subsMu.Lock()
		delete(q.subs, id)
		q.subsMu.Unlock()
	}
}

func (q *Queue) publish(kind EventKind, snapshot []Transfer) {
	q.subsMu.Lock()
	if len(q.subs) == 0 {
		q.subsMu.Unlock()
		return
	}
	handlers := make([]func(Event), 0, len(q.subs))
	for _, fn := range q.subs {
		handlers = append(handlers, fn)
	}
	q.subsMu.Unlock()

	event := Event{Kind: kind, Snapshot: snapshot, At: q.now()}
	for _, fn := range handlers {
		fn(Event{Kind: event.Kind, Snapshot: cloneAll(event.Snapshot), At: event.At})
	}
}
