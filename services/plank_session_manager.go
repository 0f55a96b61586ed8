package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PlankSessionManager holds the live plank sessions, at most one per user
// per challenge. Sessions leave the map when they finalize or are cancelled,
// so a fresh start after a cancel begins again at attempt 1.
type PlankSessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*PlankSession
	recorder plankRecorder
	now      func() time.Time
}

func NewPlankSessionManager(recorder plankRecorder) *PlankSessionManager {
	return &PlankSessionManager{
		sessions: make(map[string]*PlankSession),
		recorder: recorder,
		now:      time.Now,
	}
}

func sessionKey(userID, challengeID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", userID, challengeID)
}

// StartSession returns the user's live session for the challenge, creating
// one if none exists. A reconnecting client gets the session it left rather
// than a new attempt.
func (m *PlankSessionManager) StartSession(cfg PlankSessionConfig) *PlankSession {
	key := sessionKey(cfg.UserID, cfg.ChallengeID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[key]; ok && !existing.Finished() {
		return existing
	}

	session := NewPlankSession(cfg, m.recorder, m.now)
	session.onTerminal = func() {
		m.remove(key, session)
	}
	m.sessions[key] = session
	return session
}

// GetSession returns the live session for the user and challenge, if any.
func (m *PlankSessionManager) GetSession(userID, challengeID uuid.UUID) (*PlankSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[sessionKey(userID, challengeID)]
	return session, ok
}

// remove is called from a session's terminal transition, which holds the
// session mutex, so the delete happens on a separate goroutine to keep the
// lock order one-way. By the time it runs a fresh session may already own
// the key; only the finished session itself is evicted.
func (m *PlankSessionManager) remove(key string, session *PlankSession) {
	go func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.sessions[key] == session {
			delete(m.sessions, key)
		}
	}()
}

// ActiveSessions reports the number of live sessions, for monitoring.
func (m *PlankSessionManager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
