package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dossier/internal/vectorstore"
)

// ErrNoSession is returned when an operation needs an active case but
// none has been activated.
var ErrNoSession = errors.New("no active case")

// Store is the slice of the vector store a session holds on to.
// *vectorstore.Store satisfies it.
type Store interface {
	AddDocuments(ctx context.Context, docs []vectorstore.Document) ([]string, error)
	Search(ctx context.Context, query string, k int) ([]vectorstore.SearchResult, error)
	Count() int
	Close() error
}

// Opener acquires the vector store handle for a case.
type Opener func(caseName string) (Store, error)

// Manager serializes case switches. The previous case's store handle is
// always released before the next one is acquired, so at most one
// handle to the on-disk index exists at any moment.
type Manager struct {
	opener Opener
	logger *zap.Logger

	mu      sync.Mutex
	current *Session
}

// NewManager creates a manager. A nil logger falls back to a no-op
// logger.
func NewManager(opener Opener, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{opener: opener, logger: logger}
}

// Activate makes caseName the active case and returns its session.
// Re-activating the current case keeps the session, immediate memory
// included. Switching releases the old handle first; the new session
// starts with empty immediate memory and no conversation.
func (m *Manager) Activate(caseName string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.caseName == caseName {
		return m.current, nil
	}

	m.releaseLocked()

	store, err := m.opener(caseName)
	if err != nil {
		return nil, fmt.Errorf("open case %q: %w", caseName, err)
	}

	m.current = newSession(caseName, store)
	m.logger.Info("case activated", zap.String("case", caseName))
	return m.current, nil
}

// Current returns the active session, or ErrNoSession when there is
// none.
func (m *Manager) Current() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, ErrNoSession
	}
	return m.current, nil
}

// Release closes the active session if it belongs to caseName. An
// empty caseName releases whatever is active. Deleting or renaming a
// case must release its handle first so the files are free.
func (m *Manager) Release(caseName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return
	}
	if caseName != "" && m.current.caseName != caseName {
		return
	}
	m.releaseLocked()
}

func (m *Manager) releaseLocked() {
	if m.current == nil {
		return
	}
	name := m.current.caseName
	if err := m.current.store.Close(); err != nil {
		m.logger.Warn("store release failed",
			zap.String("case", name), zap.Error(err))
	}
	m.current = nil
	m.logger.Debug("case released", zap.String("case", name))
}
