// Package session holds the client's current-user stream.
package session

import (
	"sync"

	"github.com/voxscribe/apiserver/types"
)

// Stream broadcasts the current session to any number of readers. There is
// a single writer (the identity client). A zero Session means signed out.
//
// Subscribers always see the latest value: each subscription channel holds at
// most one pending value, and a newer value replaces an unread one.
type Stream struct {
	mu      sync.RWMutex
	current types.Session
	subs    map[uint64]chan types.Session
	nextID  uint64
	closed  bool
}

// NewStream creates a stream whose first value is initial.
func NewStream(initial types.Session) *Stream {
	return &Stream{
		current: initial,
		subs:    make(map[uint64]chan types.Session),
	}
}

// Latest returns the current session and whether it is signed in.
func (s *Stream) Latest() (types.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, signedIn(s.current)
}

// Set publishes next. It returns false and emits nothing when next has the
// same user and token as the current value.
func (s *Stream) Set(next types.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || same(s.current, next) {
		return false
	}
	s.current = next
	for _, ch := range s.subs {
		offer(ch, next)
	}
	return true
}

// Clear publishes the signed-out value.
func (s *Stream) Clear() bool {
	return s.Set(types.Session{})
}

// Subscribe returns a channel that immediately holds the current value,
// followed by every later change. The cancel func is safe to call twice.
func (s *Stream) Subscribe() (<-chan types.Session, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan types.Session, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	ch <- s.current

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Close ends every subscription. Later Set calls are ignored.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// offer must be called with s.mu held so no other sender races the drain.
func offer(ch chan types.Session, v types.Session) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

func signedIn(s types.Session) bool {
	return s.UserID != "" && s.Token != ""
}

func same(a, b types.Session) bool {
	return a.UserID == b.UserID && a.Token == b.Token
}
