package testutil

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/dimitrije/reclama-api/internal/identity"
	"github.com/dimitrije/reclama-api/internal/logging"
	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/dimitrije/reclama-api/internal/retry"
	"github.com/dimitrije/reclama-api/internal/rolecache"
	"github.com/dimitrije/reclama-api/internal/services"
	"github.com/google/uuid"
)

// FakeAuth is an in-memory auth provider. Access tokens map to users, and
// sign-in and sign-out publish session events the way the real provider does.
type FakeAuth struct {
	mu        sync.Mutex
	tokens    map[string]*models.User
	passwords map[string]string
	subs      map[int]func(models.SessionEvent)
	next      int

	Registered []services.RegisterInput
	SignOutErr error

	// AutoConfirm makes Register behave as with mail unconfigured.
	AutoConfirm bool
}

func NewFakeAuth() *FakeAuth {
	return &FakeAuth{
		tokens:    make(map[string]*models.User),
		passwords: make(map[string]string),
		subs:      make(map[int]func(models.SessionEvent)),
	}
}

// AddUser registers user with an access token and a password.
func (f *FakeAuth) AddUser(token, password string, user *models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token] = user
	f.passwords[user.Email] = password
}

func (f *FakeAuth) tokenFor(email string) (string, *models.User) {
	for token, u := range f.tokens {
		if u.Email == email {
			return token, u
		}
	}
	return "", nil
}

func (f *FakeAuth) CurrentUser(_ context.Context, accessToken string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.tokens[accessToken]; ok {
		return u, nil
	}
	return nil, services.ErrUnauthorized
}

// errClientIDColumn mirrors the refresh_tokens.client_id column rejecting a
// value that does not fit.
var errClientIDColumn = errors.New("value too long for type character varying(100)")

func (f *FakeAuth) SignIn(_ context.Context, clientID, email, password string) (*models.AuthSession, error) {
	if len(clientID) > 100 {
		return nil, errClientIDColumn
	}
	f.mu.Lock()
	token, user := f.tokenFor(email)
	ok := user != nil && f.passwords[email] == password
	f.mu.Unlock()
	if !ok {
		return nil, services.ErrInvalidCredentials
	}
	f.Publish(models.SessionEvent{Type: models.EventSignedIn, ClientID: clientID, UserID: user.ID, User: user, At: time.Now()})
	return &models.AuthSession{User: user, AccessToken: token, RefreshToken: "refresh-" + token, ExpiresIn: 900}, nil
}

func (f *FakeAuth) ConsentURL(provider, next string) (string, error) {
	if provider != models.ProviderGoogle {
		return "", services.ErrUnsupportedProvider
	}
	return "https://accounts.google.test/consent?next=" + url.QueryEscape(next), nil
}

func (f *FakeAuth) Register(_ context.Context, in services.RegisterInput) (*services.RegisterResult, error) {
	f.mu.Lock()
	f.Registered = append(f.Registered, in)
	autoConfirm := f.AutoConfirm
	f.mu.Unlock()
	if autoConfirm {
		return &services.RegisterResult{Message: services.AccountCreatedMessage}, nil
	}
	return &services.RegisterResult{NeedsConfirmation: true, Message: services.ConfirmationSentMessage}, nil
}

func (f *FakeAuth) SignOut(_ context.Context, clientID, _ string) error {
	if f.SignOutErr != nil {
		return f.SignOutErr
	}
	f.Publish(models.SessionEvent{Type: models.EventSignedOut, ClientID: clientID, At: time.Now()})
	return nil
}

func (f *FakeAuth) Subscribe(fn func(models.SessionEvent)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// Publish delivers evt to every subscriber.
func (f *FakeAuth) Publish(evt models.SessionEvent) {
	f.mu.Lock()
	fns := make([]func(models.SessionEvent), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(evt)
	}
}

// FakeRoles answers admin lookups from a set of user ids.
type FakeRoles struct {
	mu     sync.Mutex
	admins map[uuid.UUID]bool
	Err    error
	Calls  int
}

func NewFakeRoles(admins ...uuid.UUID) *FakeRoles {
	r := &FakeRoles{admins: make(map[uuid.UUID]bool)}
	for _, id := range admins {
		r.admins[id] = true
	}
	return r
}

func (r *FakeRoles) IsAdmin(_ context.Context, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	if r.Err != nil {
		return false, r.Err
	}
	return r.admins[userID], nil
}

// FakeProfiles serves profile names from a map.
type FakeProfiles map[uuid.UUID]string

func (p FakeProfiles) GetName(_ context.Context, userID uuid.UUID) (*string, error) {
	if name, ok := p[userID]; ok {
		return &name, nil
	}
	return nil, nil
}

// NewGate starts an identity gate over auth and roles with an in-memory role
// cache and a single-attempt role policy. It is closed when the test ends.
func NewGate(t *testing.T, auth *FakeAuth, roles *FakeRoles, profiles FakeProfiles) *identity.Gate {
	t.Helper()
	cache := rolecache.NewMemory(5 * time.Minute)
	gate := identity.NewGate(auth, profiles, roles, identity.Options{
		Cache:      cache,
		RolePolicy: retry.None(),
		Log:        logging.Discard(),
	})
	if err := gate.Start(); err != nil {
		t.Fatalf("failed to start gate: %v", err)
	}
	t.Cleanup(func() {
		_ = gate.Close()
		cache.Close()
	})
	return gate
}

// NewUser returns a confirmed email user.
func NewUser(email string) *models.User {
	now := time.Now()
	return &models.User{
		ID:               uuid.New(),
		Email:            email,
		Provider:         models.ProviderEmail,
		EmailConfirmedAt: &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
