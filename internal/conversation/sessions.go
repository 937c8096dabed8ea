package conversation

import (
	"fmt"
	"sync"
)

const (
	ScopeShared = "shared"
	ScopeUser   = "user"
)

// Sessions resolves the history a user's turn is recorded in.
type Sessions interface {
	Session(userID string) *History
}

// SharedSessions hands every user the same history.
type SharedSessions struct {
	history *History
}

func NewSharedSessions() *SharedSessions {
	return &SharedSessions{history: NewHistory()}
}

func (s *SharedSessions) Session(string) *History {
	return s.history
}

// PerUserSessions keeps one history per user id, created empty on first use.
type PerUserSessions struct {
	mu        sync.Mutex
	histories map[string]*History
}

func NewPerUserSessions() *PerUserSessions {
	return &PerUserSessions{histories: make(map[string]*History)}
}

func (s *PerUserSessions) Session(userID string) *History {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.histories[userID]
	if !ok {
		h = NewHistory()
		s.histories[userID] = h
	}
	return h
}

// NewSessions builds the Sessions implementation for scope.
func NewSessions(scope string) (Sessions, error) {
	switch scope {
	case "", ScopeShared:
		return NewSharedSessions(), nil
	case ScopeUser:
		return NewPerUserSessions(), nil
	default:
		return nil, fmt.Errorf("conversation: unknown scope %q", scope)
	}
}
