package connectivity

import "sync"

// Observer exposes the current network state and its transitions.
type Observer interface {
	Online() bool
	// Subscribe registers fn for state changes and returns a function that
	// removes it. fn is called with the new state only when it differs from
	// the previous one.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// broadcaster tracks the current state and fans changes out to subscribers.
type broadcaster struct {
	mu      sync.Mutex
	online  bool
	subs    map[int]func(bool)
	nextSub int
}

func (b *broadcaster) Online() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online
}

func (b *broadcaster) Subscribe(fn func(online bool)) func() {
	if fn == nil {
		return func() {}
	}
	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[int]func(bool))
	}
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// set records online and notifies subscribers when it changed. It reports
// whether a change happened.
func (b *broadcaster) set(online bool) bool {
	b.mu.Lock()
	if b.online == online {
		b.mu.Unlock()
		return false
	}
	b.online = online
	handlers := make([]func(bool), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(online)
	}
	return true
}

// Static is an Observer whose state is set by hand.
type Static struct {
	broadcaster
}

// NewStatic returns a Static observer starting in the given state.
func NewStatic(online bool) *Static {
	s := &Static{}
	s.online = online
	return s
}

// Set changes the state, notifying subscribers on a transition.
func (s *Static) Set(online bool) {
	s.set(online)
}
