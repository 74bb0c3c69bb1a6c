package knowledge

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// Roles used in session history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxHistory is the number of messages kept per session.
const DefaultMaxHistory = 20

// SessionStore keeps the conversation of each chat session in memory. It is
// safe for concurrent use.
type SessionStore struct {
	mu         sync.RWMutex
	sessions   map[string]*session
	maxHistory int
}

type session struct {
	messages []gollm.MemoryMessage
	updated  time.Time
}

// NewSessionStore creates a store keeping at most maxHistory messages per
// session. Values below one select DefaultMaxHistory.
func NewSessionStore(maxHistory int) *SessionStore {
	if maxHistory < 1 {
		maxHistory = DefaultMaxHistory
	}
	return &SessionStore{
		sessions:   make(map[string]*session),
		maxHistory: maxHistory,
	}
}

// NewSession starts an empty session and returns its id.
func (s *SessionStore) NewSession() string {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &session{updated: time.Now()}
	s.mu.Unlock()
	return id
}

// History returns a copy of the session's messages, oldest first. Unknown
// sessions have no history.
func (s *SessionStore) History(id string) []gollm.MemoryMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	out := make([]gollm.MemoryMessage, len(sess.messages))
	copy(out, sess.messages)
	return out
}

// Append adds messages to a session, creating it if needed, and drops the
// oldest ones beyond the limit.
func (s *SessionStore) Append(id string, messages ...gollm.MemoryMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{}
		s.sessions[id] = sess
	}
	sess.messages = append(sess.messages, messages...)
	if over := len(sess.messages) - s.maxHistory; over > 0 {
		sess.messages = append([]gollm.MemoryMessage(nil), sess.messages[over:]...)
	}
	sess.updated = time.Now()
}

// End forgets a session.
func (s *SessionStore) End(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Prune ends sessions idle for longer than maxIdle and returns how many were
// removed.
func (s *SessionStore) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.updated.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// NewMessage builds a history entry with an approximate word based token
// count.
func NewMessage(role, content string) gollm.MemoryMessage {
	return gollm.MemoryMessage{
		Role:    role,
		Content: content,
		Tokens:  len(strings.Fields(content)),
	}
}
