package chat

import (
	"sync"
	"time"
)

const (
	// sessionIdleTimeout is how long a conversation survives without use
	// before its history is discarded.
	sessionIdleTimeout = 30 * time.Minute
	// maxHistoryTurns bounds the history kept per session (a turn is one
	// user message plus one model reply).
	maxHistoryTurns = 10
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type session struct {
	history  []Content
	lastUsed time.Time
}

// Sessions holds per-user conversation history with an explicit idle
// lifecycle: expiry is checked on every access and idle sessions are also
// prunable by the periodic sweep, so the map never grows unbounded.
type Sessions struct {
	mu    sync.Mutex
	m     map[string]*session
	clock Clock
	idle  time.Duration
}

// NewSessions creates a session table with the default 30-minute idle
// timeout.
func NewSessions() *Sessions {
	return NewSessionsWithClock(realClock{}, sessionIdleTimeout)
}

// NewSessionsWithClock creates a session table with a custom clock and
// idle timeout (for testing).
func NewSessionsWithClock(clock Clock, idle time.Duration) *Sessions {
	return &Sessions{
		m:     make(map[string]*session),
		clock: clock,
		idle:  idle,
	}
}

// History returns a copy of the user's conversation history, discarding it
// first if the session has been idle past the timeout. The access itself
// refreshes last_used.
func (s *Sessions) History(userID string) []Content {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	sess, ok := s.m[userID]
	if !ok || now.Sub(sess.lastUsed) > s.idle {
		sess = &session{}
		s.m[userID] = sess
	}
	sess.lastUsed = now

	out := make([]Content, len(sess.history))
	copy(out, sess.history)
	return out
}

// Append records one exchange on the user's session, trimming history to
// the configured bound.
func (s *Sessions) Append(userID, userText, modelText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.m[userID]
	if !ok {
		sess = &session{}
		s.m[userID] = sess
	}
	sess.lastUsed = s.clock.Now()
	sess.history = append(sess.history,
		Content{Role: "user", Parts: []Part{{Text: userText}}},
		Content{Role: "model", Parts: []Part{{Text: modelText}}},
	)
	if max := maxHistoryTurns * 2; len(sess.history) > max {
		sess.history = sess.history[len(sess.history)-max:]
	}
}

// PruneIdle drops every session idle past the timeout and returns how many
// were removed.
func (s *Sessions) PruneIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for id, sess := range s.m {
		if now.Sub(sess.lastUsed) > s.idle {
			delete(s.m, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
