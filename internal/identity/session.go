// Package identity tracks who a client is. A Gate resolves sessions against
// the auth provider and keeps them current as session events arrive.
package identity

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/google/uuid"
)

type State int

const (
	Unresolved State = iota
	Resolving
	Authenticated
	Anonymous
)

var ErrInvalidTransition = errors.New("invalid identity transition")

func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolving:
		return "resolving"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CanTransitionTo reports whether next follows s in the identity state
// machine.
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case Unresolved:
		return next == Resolving
	case Resolving:
		return next == Authenticated || next == Anonymous
	case Authenticated:
		return next == Anonymous
	case Anonymous:
		return next == Authenticated
	default:
		return false
	}
}

type adminStatus struct {
	userID  uuid.UUID
	isAdmin bool
	known   bool
}

// Session is one client's view of its identity. It is safe for concurrent
// use; readers see the user, loading flag and display name published by the
// last applied change.
type Session struct {
	clientID string

	mu          sync.RWMutex
	state       State
	user        *models.User
	displayName *string
	busy        int
	version     uint64
	admin       adminStatus
}

// NewSession returns an unresolved session for clientID.
func NewSession(clientID string) *Session {
	return &Session{clientID: clientID, state: Unresolved}
}

// NewAnonymous returns a settled anonymous session, for callers that cannot
// resolve one.
func NewAnonymous(clientID string) *Session {
	return &Session{clientID: clientID, state: Anonymous}
}

func (s *Session) ClientID() string { return s.clientID }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// User returns the signed-in user, or nil.
func (s *Session) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// UserID returns the signed-in user's id, or uuid.Nil.
func (s *Session) UserID() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return uuid.Nil
	}
	return s.user.ID
}

func (s *Session) DisplayName() *string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.displayName
}

// Loading is true while the session resolves and during explicit sign-in
// and sign-out calls.
func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == Resolving || s.busy > 0
}

// Settled reports whether the state is Authenticated or Anonymous.
func (s *Session) Settled() bool {
	st := s.State()
	return st == Authenticated || st == Anonymous
}

// Admin returns the last recorded role check for the current user.
func (s *Session) Admin() (isAdmin, known bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil || !s.admin.known || s.admin.userID != s.user.ID {
		return false, false
	}
	return s.admin.isAdmin, true
}

// Snapshot is a consistent copy of a session's published values.
type Snapshot struct {
	ClientID    string       `json:"-"`
	State       string       `json:"state"`
	User        *models.User `json:"user"`
	Loading     bool         `json:"loading"`
	DisplayName *string      `json:"display_name"`
	IsAdmin     *bool        `json:"is_admin,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		ClientID:    s.clientID,
		State:       s.state.String(),
		User:        s.user,
		Loading:     s.state == Resolving || s.busy > 0,
		DisplayName: s.displayName,
	}
	if s.user != nil && s.admin.known && s.admin.userID == s.user.ID {
		isAdmin := s.admin.isAdmin
		snap.IsAdmin = &isAdmin
	}
	return snap
}

func (s *Session) transitionLocked(next State) error {
	if !s.state.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, s.state, next)
	}
	s.state = next
	return nil
}

// beginResolve moves Unresolved to Resolving and returns the version a
// resolution result must match to be applied.
func (s *Session) beginResolve() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(Resolving); err != nil {
		return 0, err
	}
	s.version++
	return s.version, nil
}

// finishResolve applies a resolution result unless a newer change already
// settled the session.
func (s *Session) finishResolve(version uint64, user *models.User, name *string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != version || s.state != Resolving {
		return false
	}
	if user == nil {
		s.state = Anonymous
		s.user, s.displayName = nil, nil
		return true
	}
	s.state = Authenticated
	s.user, s.displayName = user, name
	return true
}

// signedIn records user as the session's identity. A different user
// replacing the current one passes through Anonymous.
func (s *Session) signedIn(user *models.User, name *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Authenticated && s.user != nil && s.user.ID != user.ID {
		if err := s.transitionLocked(Anonymous); err != nil {
			return err
		}
	}
	if s.state != Authenticated {
		if err := s.transitionLocked(Authenticated); err != nil {
			return err
		}
	}
	s.version++
	s.user, s.displayName = user, name
	return nil
}

// signedOut clears the identity. Clearing an anonymous session is a no-op.
func (s *Session) signedOut() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	if s.state == Anonymous {
		return nil
	}
	if err := s.transitionLocked(Anonymous); err != nil {
		return err
	}
	s.user, s.displayName = nil, nil
	s.admin = adminStatus{}
	return nil
}

// setDisplayName replaces the name if userID is still the session's user.
func (s *Session) setDisplayName(userID uuid.UUID, name *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user != nil && s.user.ID == userID {
		s.displayName = name
	}
}

// recordAdmin stores a role check made for userID. A result for a user the
// session no longer holds is dropped.
func (s *Session) recordAdmin(userID uuid.UUID, isAdmin bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil || s.user.ID != userID {
		return false
	}
	s.admin = adminStatus{userID: userID, isAdmin: isAdmin, known: true}
	return true
}

func (s *Session) forgetAdmin(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.admin.userID == userID {
		s.admin = adminStatus{}
	}
}

func (s *Session) holds(userID uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.user.ID == userID
}

func (s *Session) beginBusy() {
	s.mu.Lock()
	s.busy++
	s.mu.Unlock()
}

func (s *Session) endBusy() {
	s.mu.Lock()
	if s.busy > 0 {
		s.busy--
	}
	s.mu.Unlock()
}
