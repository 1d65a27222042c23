// Package oauth talks to external identity providers and keeps the short-lived
// state values that tie a consent redirect to its callback.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

type UserInfo struct {
	Email         string
	EmailVerified bool
	Name          string
	AvatarURL     string
	ID            string
	Provider      string
}

type Provider interface {
	GetConsentURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*UserInfo, error)
	Name() string
}

func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Pending is what a consent redirect remembers until its callback.
type Pending struct {
	Provider string
	// Next is the local path to return to after sign-in.
	Next      string
	ExpiresAt time.Time
}

// StateStore holds pending consent states in memory. Each state can be taken
// once.
type StateStore struct {
	ttl    time.Duration
	states sync.Map
	now    func() time.Time
}

func NewStateStore(ttl time.Duration) *StateStore {
	return &StateStore{ttl: ttl, now: time.Now}
}

// Issue creates a new state for provider and records next.
func (s *StateStore) Issue(provider, next string) (string, error) {
	state, err := GenerateState()
	if err != nil {
		return "", err
	}
	s.states.Store(state, Pending{Provider: provider, Next: next, ExpiresAt: s.now().Add(s.ttl)})
	return state, nil
}

// Take removes and returns the pending entry for state. Expired or unknown
// states report false.
func (s *StateStore) Take(state string) (Pending, bool) {
	v, ok := s.states.LoadAndDelete(state)
	if !ok {
		return Pending{}, false
	}
	p := v.(Pending)
	if s.now().After(p.ExpiresAt) {
		return Pending{}, false
	}
	return p, true
}

// Sweep drops expired states and returns how many were removed.
func (s *StateStore) Sweep() int {
	now := s.now()
	removed := 0
	s.states.Range(func(key, value any) bool {
		if now.After(value.(Pending).ExpiresAt) {
			s.states.Delete(key)
			removed++
		}
		return true
	})
	return removed
}
