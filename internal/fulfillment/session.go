package fulfillment

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wholesale-shop/backoffice/internal/gateway"
	"github.com/wholesale-shop/backoffice/internal/inventory"
)

// Session owns one saga. The mutex makes each session a single actor even
// if two requests race on the same session id.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu   sync.Mutex
	saga *Saga
}

// Do runs fn with exclusive access to the session's saga.
func (s *Session) Do(fn func(*Saga) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.saga)
}

type SessionManager struct {
	gw       gateway.Gateway
	ledger   *inventory.Ledger
	pub      Publisher
	compPub  Publisher
	producer string

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionManager(gw gateway.Gateway, ledger *inventory.Ledger, pub, compPub Publisher, producer string) *SessionManager {
	return &SessionManager{
		gw: gw, ledger: ledger, pub: pub, compPub: compPub, producer: producer,
		sessions: make(map[string]*Session),
	}
}

func (m *SessionManager) Create() *Session {
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		saga:      New(m.gw, m.ledger, m.pub, m.compPub, m.producer),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("no wizard session %s", id)
	}
	return s, nil
}

// Abandon drops a session. Before commit nothing has been persisted, so
// there is nothing to clean up beyond forgetting the state.
func (m *SessionManager) Abandon(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}
