package core

import (
	"fmt"
	"sync"
)

// Session is one live streaming connection as seen by the core layer.
// The transport handler owns it and closes it on disconnect.
type Session struct {
	// ID identifies the session in logs.
	ID string
	// Key is the anonymous connection key. It tracks channel membership and
	// is never exposed to other clients.
	Key string

	// Events carries outbound deliveries to the transport write loop.
	Events chan Event

	mu       sync.Mutex
	guest    string
	name     string
	verified bool
	closed   bool
}

// NewSession constructs a session with a guest display name derived from the
// connection's remote port. Guest labels change on every reconnect and are
// display-only.
func NewSession(id, key, port string) *Session {
	guest := fmt.Sprintf("Guest %s", port)
	return &Session{
		ID:     id,
		Key:    key,
		Events: make(chan Event, 8),
		guest:  guest,
		name:   guest,
	}
}

// SetIdentity updates the display identity resolved on join.
func (s *Session) SetIdentity(name string, verified bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	s.verified = verified
}

// ResetIdentity demotes the session back to its anonymous guest label.
// Identity is re-resolved on every join, so a join that carries no usable
// hardware id drops any previously verified name.
func (s *Session) ResetIdentity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = s.guest
	s.verified = false
}

// Identity returns the current display name and verified flag.
func (s *Session) Identity() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name, s.verified
}

// Close marks the session closed. Safe to call multiple times. Further
// deliveries to the session are silently skipped.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Open reports whether the session still accepts deliveries.
func (s *Session) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// deliver sends an event without blocking. Slow consumers drop events; the
// liveness check reaps connections that stopped reading entirely.
func (s *Session) deliver(ev Event) {
	if !s.Open() {
		return
	}
	select {
	case s.Events <- ev:
	default:
	}
}
