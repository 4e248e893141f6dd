package memory

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/entities"
)

// AuthSessionStore keeps pending logins per user, each owning its own expiry timer
type AuthSessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	gen      uint64
	entries  map[int64]*authEntry
	onExpire func(*entities.AuthSession)
	logger   zerolog.Logger
}

type authEntry struct {
	session *entities.AuthSession
	timer   *time.Timer
	gen     uint64
}

// NewAuthSessionStore creates a store expiring logins after ttl of inactivity.
// onExpire may be nil.
func NewAuthSessionStore(ttl time.Duration, onExpire func(*entities.AuthSession), logger zerolog.Logger) *AuthSessionStore {
	return &AuthSessionStore{
		ttl:      ttl,
		entries:  make(map[int64]*authEntry),
		onExpire: onExpire,
		logger:   logger.With().Str("component", "auth_session_store").Logger(),
	}
}

// Put stores s, replacing and closing any previous login of the same user
func (s *AuthSessionStore) Put(session *entities.AuthSession) {
	s.mu.Lock()
	previous := s.entries[session.UserID]
	if previous != nil {
		previous.timer.Stop()
	}
	s.entries[session.UserID] = s.newEntryLocked(session)
	s.mu.Unlock()

	if previous != nil && previous.session.Remote != nil && previous.session.Remote != session.Remote {
		s.logger.Debug().Int64("user_id", session.UserID).Msg("pending login replaced")
		previous.session.Remote.Close()
	}
}

// Get returns the pending login of a user
func (s *AuthSessionStore) Get(userID int64) (*entities.AuthSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[userID]
	if !ok {
		return nil, false
	}
	return entry.session, true
}

// Touch restarts the inactivity timer of a pending login
func (s *AuthSessionStore) Touch(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[userID]
	if !ok {
		return
	}
	// A fresh generation turns an already fired timer into a no-op
	entry.timer.Stop()
	s.entries[userID] = s.newEntryLocked(entry.session)
}

// Delete drops and closes the pending login of a user
func (s *AuthSessionStore) Delete(userID int64) {
	s.mu.Lock()
	entry, ok := s.entries[userID]
	if ok {
		entry.timer.Stop()
		delete(s.entries, userID)
	}
	s.mu.Unlock()

	if ok && entry.session.Remote != nil {
		entry.session.Remote.Close()
	}
}

// Len returns the number of pending logins
func (s *AuthSessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop drops every pending login
func (s *AuthSessionStore) Stop() {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[int64]*authEntry)
	s.mu.Unlock()

	for _, entry := range entries {
		entry.timer.Stop()
		if entry.session.Remote != nil {
			entry.session.Remote.Close()
		}
	}
}

func (s *AuthSessionStore) newEntryLocked(session *entities.AuthSession) *authEntry {
	s.gen++
	gen := s.gen
	userID := session.UserID
	return &authEntry{
		session: session,
		gen:     gen,
		timer:   time.AfterFunc(s.ttl, func() { s.expire(userID, gen) }),
	}
}

func (s *AuthSessionStore) expire(userID int64, gen uint64) {
	s.mu.Lock()
	entry, ok := s.entries[userID]
	if !ok || entry.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.entries, userID)
	s.mu.Unlock()

	s.logger.Info().Int64("user_id", userID).Msg("pending login expired")
	if entry.session.Remote != nil {
		entry.session.Remote.Close()
	}
	if s.onExpire != nil {
		s.onExpire(entry.session)
	}
}

var _ deps.AuthSessionStore = (*AuthSessionStore)(nil)
