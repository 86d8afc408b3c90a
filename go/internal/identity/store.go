// Package identity holds the local session/seat binding shared by the
// matchmaking and rematch flows. It is written only when a new binding is
// authoritatively confirmed and cleared only on explicit reset, so a crash
// can never leave a half-joined state behind.
package identity

import (
	"fmt"
	"sync"
)

// Binding ties the local player to a seat in one match.
type Binding struct {
	MatchID  string `json:"match_id"`
	Username string `json:"username"`
	Seat     int    `json:"seat"`
}

// Store is the narrow interface injected into the components that need the
// binding. Read succeeds only for the match id the binding was made under.
type Store interface {
	Bind(matchID, username string, seat int) error
	Read(matchID string) (Binding, bool)
	Clear()
}

// MemoryStore is an in-process Store. One binding exists at a time; binding a
// new match replaces the previous one, matching the single-slot local storage
// the web client used.
type MemoryStore struct {
	mu      sync.Mutex
	current *Binding
}

// NewMemoryStore creates an empty identity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Bind records the seat binding for a match. Seat must be 1 or 2.
func (s *MemoryStore) Bind(matchID, username string, seat int) error {
	if matchID == "" || username == "" {
		return fmt.Errorf("identity bind requires match id and username")
	}
	if seat != 1 && seat != 2 {
		return fmt.Errorf("invalid seat %d", seat)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &Binding{MatchID: matchID, Username: username, Seat: seat}
	return nil
}

// Read returns the binding for matchID, if one exists.
func (s *MemoryStore) Read(matchID string) (Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.MatchID != matchID {
		return Binding{}, false
	}
	return *s.current, true
}

// Clear removes the binding. Called on explicit logout or new-game reset.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}
