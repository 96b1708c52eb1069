package testutil

import "sync"

// FakeSource is a connectivity source driven explicitly by tests.
//
// SetOnline delivers the signal synchronously to every subscriber, and only
// when the state actually changes, like the browser's online/offline events.
type FakeSource struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(bool)
}

// NewFakeSource creates a source reporting the given initial state.
func NewFakeSource(online bool) *FakeSource {
	return &FakeSource{online: online, subs: make(map[int]func(bool))}
}

// Online reports the current state.
func (s *FakeSource) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Subscribe registers fn for transitions and returns an unsubscribe func.
func (s *FakeSource) Subscribe(fn func(online bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Subscribers returns the number of active subscriptions.
func (s *FakeSource) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// SetOnline changes the state and notifies subscribers if it changed.
func (s *FakeSource) SetOnline(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}
