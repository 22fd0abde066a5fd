package donations

import (
	"errors"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// The admin review flow is a two-step conversation: pick a claim, then
// pick an outcome. Session state lives here, apart from the claims
// themselves, so a timed-out session can be dropped without touching
// any DonationClaim record.

type SessionState int

const (
	StateAwaitingSelection SessionState = iota
	StateAwaitingOutcome
)

var ErrNoSession = errors.New("no active review session, run /claims first")

const sessionTimeout = 5 * time.Minute

type Session struct {
	AdminID   snowflake.ID
	State     SessionState
	ClaimID   int64
	ExpiresAt time.Time
}

type SessionManager struct {
	mu       sync.Mutex
	sessions map[snowflake.ID]*Session
	timeout  time.Duration
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[snowflake.ID]*Session),
		timeout:  sessionTimeout,
	}
}

// Begin starts (or restarts) a review session for an admin.
func (m *SessionManager) Begin(adminID snowflake.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[adminID] = &Session{
		AdminID:   adminID,
		State:     StateAwaitingSelection,
		ExpiresAt: time.Now().Add(m.timeout),
	}
}

// Select records the chosen claim and advances to awaiting-outcome.
func (m *SessionManager) Select(adminID snowflake.ID, claimID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.liveLocked(adminID)
	if s == nil || s.State != StateAwaitingSelection {
		return ErrNoSession
	}
	s.ClaimID = claimID
	s.State = StateAwaitingOutcome
	s.ExpiresAt = time.Now().Add(m.timeout)
	return nil
}

// Current returns the live session, if any. Expired sessions are
// discarded on sight.
func (m *SessionManager) Current(adminID snowflake.ID) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.liveLocked(adminID)
	if s == nil {
		return Session{}, false
	}
	return *s, true
}

// End discards the session, done or abandoned.
func (m *SessionManager) End(adminID snowflake.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, adminID)
}

func (m *SessionManager) liveLocked(adminID snowflake.ID) *Session {
	s, ok := m.sessions[adminID]
	if !ok {
		return nil
	}
	if time.Now().After(s.ExpiresAt) {
		delete(m.sessions, adminID)
		return nil
	}
	return s
}
