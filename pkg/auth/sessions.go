package auth

import (
	"context"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkg/errors"
)

const (
	// SessionTTL is how long an interactive session survives without being
	// touched.
	SessionTTL = 3600 * time.Second

	sweepInterval = time.Minute
)

// OIDCSecrets is the state of a pending OIDC login. A session carries at
// most one; starting a new login replaces it and the callback consumes it.
type OIDCSecrets struct {
	Provider     string
	CSRFToken    string
	Nonce        string
	PKCEVerifier string
}

// Session is one interactive browser session. It exists before login so the
// OIDC flow has somewhere to keep its secrets; UserID is zero until a login
// succeeds. Roles are looked up fresh when a token is minted, so they are
// deliberately not cached here.
type Session struct {
	ID     string
	UserID int64
	Email  string
	OIDC   *OIDCSecrets
}

// LoggedIn reports whether a user is bound to the session.
func (s *Session) LoggedIn() bool {
	return s.UserID != 0
}

// Store keeps interactive sessions. Implementations must be safe for
// concurrent use. Get returns nil without error for unknown or expired ids.
type Store interface {
	Create(ctx context.Context) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id string) error
}

type sessionEntry struct {
	session  Session
	lastSeen time.Time
}

// MemoryStore is the in-process session store. Sessions vanish on restart,
// which only costs users a new login.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	ttl      time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a session store with the given idle TTL and starts
// its eviction janitor.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*sessionEntry),
		ttl:      ttl,
		done:     make(chan struct{}),
	}

	go s.janitor()

	return s
}

// Create registers a fresh, anonymous session.
func (s *MemoryStore) Create(_ context.Context) (*Session, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	session := Session{ID: id}

	s.mu.Lock()
	s.sessions[id] = &sessionEntry{session: session, lastSeen: time.Now()}
	s.mu.Unlock()

	return copySession(&session), nil
}

// Get returns a copy of the session and refreshes its idle timer. Unknown
// and expired ids both come back nil.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	if time.Since(entry.lastSeen) > s.ttl {
		delete(s.sessions, id)
		return nil, nil
	}

	entry.lastSeen = time.Now()
	return copySession(&entry.session), nil
}

// Save writes the session back. Saving an id the store no longer knows is an
// error; the session expired between Get and Save.
func (s *MemoryStore) Save(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[session.ID]
	if !ok {
		return errors.Errorf("session %s expired", session.ID)
	}

	entry.session = *copySession(session)
	entry.lastSeen = time.Now()
	return nil
}

// Delete removes the session. Deleting an unknown id is a no-op.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// Stop shuts down the eviction janitor.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

// Len reports the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(time.Now().Add(-s.ttl))
		}
	}
}

func (s *MemoryStore) sweep(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.sessions {
		if entry.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}

// copySession clones the session so callers and the store never share
// mutable state.
func copySession(session *Session) *Session {
	clone := *session
	if session.OIDC != nil {
		secrets := *session.OIDC
		clone.OIDC = &secrets
	}
	return &clone
}
