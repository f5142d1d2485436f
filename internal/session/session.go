// Package session tracks the active case. A session couples the open
// vector store handle for one case with the immediate memory of its
// latest upload batch and the running conversation. Exactly one session
// is live at a time; switching cases goes through the manager, which
// releases the old store handle before acquiring the new one.
package session

import (
	"sync"
	"time"
)

// Turn is one question/answer exchange in the active case.
type Turn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Sources  []string  `json:"sources,omitempty"`
	At       time.Time `json:"at"`
}

// Session is the live state of the active case.
type Session struct {
	caseName string
	store    Store

	mu        sync.Mutex
	immediate string
	turns     []Turn
}

func newSession(caseName string, store Store) *Session {
	return &Session{caseName: caseName, store: store}
}

// Case returns the active case name.
func (s *Session) Case() string {
	return s.caseName
}

// Store returns the open vector store handle for the active case.
func (s *Session) Store() Store {
	return s.store
}

// Immediate returns the raw text of the latest upload batch, or the
// empty string when nothing has been uploaded this session.
func (s *Session) Immediate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.immediate
}

// SetImmediate replaces the immediate memory with the latest batch.
// Each upload supersedes the previous one entirely.
func (s *Session) SetImmediate(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.immediate = text
}

// ClearImmediate empties the immediate memory.
func (s *Session) ClearImmediate() {
	s.SetImmediate("")
}

// AddTurn appends an exchange to the conversation.
func (s *Session) AddTurn(turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if turn.At.IsZero() {
		turn.At = time.Now()
	}
	s.turns = append(s.turns, turn)
}

// Turns returns a copy of the conversation so far.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}
