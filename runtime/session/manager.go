package session

import (
	"context"
	"errors"
	"sync"

	"github.com/wlyh514/discord-llmvc-bot/runtime/agent"
	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
	"github.com/wlyh514/discord-llmvc-bot/runtime/transport"
)

// Manager errors.
var (
	// ErrAlreadyActive is returned when the connection already has a session.
	ErrAlreadyActive = errors.New("session already active for connection")
	// ErrNoSession is returned when the connection has no session.
	ErrNoSession = errors.New("no active session for connection")
	// ErrManagerClosed is returned by StartSession after EndAll.
	ErrManagerClosed = errors.New("session manager closed")
)

// AgentFactory creates the agent of a new session. Every session gets its
// own agent so that conversation memory never leaks between channels.
type AgentFactory func() agent.Agent

// Manager keeps at most one session per connection id.
type Manager struct {
	svc      Services
	newAgent AgentFactory
	cfg      Config

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a Manager. svc.Agent is ignored; newAgent supplies a
// fresh agent per session.
//
//nolint:gocritic // hugeParam: config is copied once at construction
func NewManager(svc Services, newAgent AgentFactory, cfg Config) *Manager {
	return &Manager{
		svc:      svc,
		newAgent: newAgent,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// StartSession binds a new session to conn. It blocks until the connection
// is ready or the ready wait fails.
func (m *Manager) StartSession(ctx context.Context, conn transport.Connection) (*Session, error) {
	id := conn.ID()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if _, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	// Reserve the slot while the connection becomes ready.
	m.sessions[id] = nil
	m.mu.Unlock()

	svc := m.svc
	svc.Agent = m.newAgent()
	s, err := Start(ctx, conn, svc, m.cfg, WithEndHook(m.remove))

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		delete(m.sessions, id)
		return nil, err
	}
	if s.isEnded() {
		delete(m.sessions, id)
		return s, nil
	}
	m.sessions[id] = s
	if m.closed {
		go s.End()
	}
	return s, nil
}

// EndSession ends the session bound to the connection id.
func (m *Manager) EndSession(connectionID string) error {
	m.mu.Lock()
	s := m.sessions[connectionID]
	m.mu.Unlock()
	if s == nil {
		return ErrNoSession
	}
	s.End()
	return nil
}

// EndAll ends every session and rejects new ones.
func (m *Manager) EndAll() {
	m.mu.Lock()
	m.closed = true
	active := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s != nil {
			active = append(active, s)
		}
	}
	m.mu.Unlock()

	for _, s := range active {
		s.End()
	}
	logger.Info("all voice sessions ended", "count", len(active))
}

// Get returns the running session bound to the connection id.
func (m *Manager) Get(connectionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[connectionID]
	return s, s != nil
}

// Len returns the number of running sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s != nil {
			n++
		}
	}
	return n
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.ConnectionID()] == s {
		delete(m.sessions, s.ConnectionID())
	}
}
