package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dimitrije/reclama-api/internal/logging"
	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/dimitrije/reclama-api/internal/retry"
	"github.com/dimitrije/reclama-api/internal/rolecache"
	"github.com/dimitrije/reclama-api/internal/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu       sync.Mutex
	users    map[string]*models.User
	err      error
	signIn   func(clientID, email, password string) (*models.AuthSession, error)
	signOut  func(clientID string) error
	subs     map[int]func(models.SessionEvent)
	next     int
	register *services.RegisterResult
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{users: make(map[string]*models.User), subs: make(map[int]func(models.SessionEvent))}
}

func (p *fakeProvider) CurrentUser(_ context.Context, token string) (*models.User, error) {
	if p.err != nil {
		return nil, p.err
	}
	if u, ok := p.users[token]; ok {
		return u, nil
	}
	return nil, services.ErrUnauthorized
}

func (p *fakeProvider) SignIn(_ context.Context, clientID, email, password string) (*models.AuthSession, error) {
	return p.signIn(clientID, email, password)
}

func (p *fakeProvider) ConsentURL(provider, next string) (string, error) {
	if provider != "google" {
		return "", services.ErrUnsupportedProvider
	}
	return "https://accounts.example.com/?next=" + next, nil
}

func (p *fakeProvider) Register(context.Context, services.RegisterInput) (*services.RegisterResult, error) {
	return p.register, nil
}

func (p *fakeProvider) SignOut(_ context.Context, clientID, _ string) error {
	if p.signOut != nil {
		return p.signOut(clientID)
	}
	return nil
}

func (p *fakeProvider) Subscribe(fn func(models.SessionEvent)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *fakeProvider) publish(evt models.SessionEvent) {
	p.mu.Lock()
	var fns []func(models.SessionEvent)
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(evt)
	}
}

type fakeProfiles struct {
	names map[uuid.UUID]string
	err   error
}

func (f *fakeProfiles) GetName(_ context.Context, id uuid.UUID) (*string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if n, ok := f.names[id]; ok {
		return &n, nil
	}
	return nil, nil
}

type fakeRoles struct {
	mu     sync.Mutex
	admins map[uuid.UUID]bool
	errs   []error
	calls  int
	before func()
}

func (f *fakeRoles) IsAdmin(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	f.calls++
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	before := f.before
	f.mu.Unlock()
	if before != nil {
		before()
	}
	if err != nil {
		return false, err
	}
	return f.admins[id], nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.SessionEvent
}

func (r *recordingSink) Publish(evt models.SessionEvent) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

type gateFixture struct {
	gate     *Gate
	provider *fakeProvider
	profiles *fakeProfiles
	roles    *fakeRoles
	cache    *rolecache.Memory
	sink     *recordingSink
}

func setupGate(t *testing.T) *gateFixture {
	t.Helper()
	f := &gateFixture{
		provider: newFakeProvider(),
		profiles: &fakeProfiles{names: map[uuid.UUID]string{}},
		roles:    &fakeRoles{admins: map[uuid.UUID]bool{}},
		cache:    rolecache.NewMemory(5 * time.Minute),
		sink:     &recordingSink{},
	}
	t.Cleanup(f.cache.Close)
	f.gate = NewGate(f.provider, f.profiles, f.roles, Options{
		Cache:      f.cache,
		Sink:       f.sink,
		RolePolicy: retry.Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1, Retryable: services.IsTransient},
		Log:        logging.Discard(),
	})
	require.NoError(t, f.gate.Start())
	t.Cleanup(func() { _ = f.gate.Close() })
	return f
}

func newUser(email string) *models.User {
	return &models.User{ID: uuid.New(), Email: email}
}

func TestState_Transitions(t *testing.T) {
	valid := map[State][]State{
		Unresolved:    {Resolving},
		Resolving:     {Authenticated, Anonymous},
		Authenticated: {Anonymous},
		Anonymous:     {Authenticated},
	}
	all := []State{Unresolved, Resolving, Authenticated, Anonymous}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, v := range valid[from] {
				if v == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestResolveDisplayName_Order(t *testing.T) {
	profile := "Ana Perfil"
	meta := "Ana Cadastro"
	user := &models.User{Email: "ana.silva@example.com", MetadataName: &meta}

	assert.Equal(t, "Ana Perfil", *ResolveDisplayName(&profile, user))
	assert.Equal(t, "Ana Cadastro", *ResolveDisplayName(nil, user))

	blank := "  "
	assert.Equal(t, "Ana Cadastro", *ResolveDisplayName(&blank, user))

	user.MetadataName = nil
	assert.Equal(t, "ana.silva", *ResolveDisplayName(nil, user))

	user.Email = ""
	assert.Nil(t, ResolveDisplayName(nil, user))
	assert.Nil(t, ResolveDisplayName(nil, nil))
}

func TestGate_Resolve_Authenticated(t *testing.T) {
	f := setupGate(t)
	user := newUser("ana@example.com")
	f.provider.users["tok"] = user
	f.profiles.names[user.ID] = "Ana"

	s := f.gate.Resolve(context.Background(), "c1", "tok")
	defer f.gate.Release(s)

	assert.Equal(t, Authenticated, s.State())
	assert.Equal(t, user.ID, s.UserID())
	assert.Equal(t, "Ana", *s.DisplayName())
	assert.False(t, s.Loading())
}

func TestGate_Resolve_FailsOpenToAnonymous(t *testing.T) {
	f := setupGate(t)
	f.provider.err = errors.New("provider unreachable")

	s := f.gate.Resolve(context.Background(), "c1", "tok")
	defer f.gate.Release(s)

	assert.Equal(t, Anonymous, s.State())
	assert.Nil(t, s.User())
	assert.False(t, s.Loading())
}

func TestGate_Resolve_NoToken(t *testing.T) {
	f := setupGate(t)

	s := f.gate.Resolve(context.Background(), "c1", "")
	defer f.gate.Release(s)

	assert.Equal(t, Anonymous, s.State())
}

func TestGate_Resolve_ProfileFailureFallsBack(t *testing.T) {
	f := setupGate(t)
	meta := "Ana Cadastro"
	user := newUser("ana@example.com")
	user.MetadataName = &meta
	f.provider.users["tok"] = user
	f.profiles.err = errors.New("profiles down")

	s := f.gate.Resolve(context.Background(), "c1", "tok")
	defer f.gate.Release(s)

	assert.Equal(t, Authenticated, s.State())
	assert.Equal(t, "Ana Cadastro", *s.DisplayName())
}

func TestGate_SignIn_FailureLeavesSessionUntouched(t *testing.T) {
	f := setupGate(t)
	f.provider.signIn = func(string, string, string) (*models.AuthSession, error) {
		return nil, services.ErrInvalidCredentials
	}
	s := f.gate.Resolve(context.Background(), "c1", "")
	defer f.gate.Release(s)

	_, err := f.gate.SignIn(context.Background(), s, "ana@example.com", "x")

	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
	assert.Equal(t, Anonymous, s.State())
	assert.False(t, s.Loading())
}

func TestGate_SignIn_AppliesOnlyThroughEvent(t *testing.T) {
	f := setupGate(t)
	user := newUser("ana@example.com")
	publish := false
	f.provider.signIn = func(clientID, _, _ string) (*models.AuthSession, error) {
		if publish {
			f.provider.publish(models.SessionEvent{Type: models.EventSignedIn, ClientID: clientID, UserID: user.ID, User: user})
		}
		return &models.AuthSession{User: user, AccessToken: "a", RefreshToken: "r"}, nil
	}
	s := f.gate.Resolve(context.Background(), "c1", "")
	defer f.gate.Release(s)

	_, err := f.gate.SignIn(context.Background(), s, "ana@example.com", "segredo")
	require.NoError(t, err)
	assert.Equal(t, Anonymous, s.State(), "return value alone does not authenticate")

	publish = true
	_, err = f.gate.SignIn(context.Background(), s, "ana@example.com", "segredo")
	require.NoError(t, err)
	assert.Equal(t, Authenticated, s.State())
	assert.Equal(t, "ana", *s.DisplayName())
}

func TestGate_SignIn_LoadingDuringCall(t *testing.T) {
	f := setupGate(t)
	s := f.gate.Resolve(context.Background(), "c1", "")
	defer f.gate.Release(s)

	var loadingDuring bool
	f.provider.signIn = func(string, string, string) (*models.AuthSession, error) {
		loadingDuring = s.Loading()
		return nil, services.ErrInvalidCredentials
	}

	_, _ = f.gate.SignIn(context.Background(), s, "a@example.com", "x")

	assert.True(t, loadingDuring)
	assert.False(t, s.Loading())
}

func TestGate_SignOut_ClearsBeforeProviderCall(t *testing.T) {
	f := setupGate(t)
	user := newUser("ana@example.com")
	f.provider.users["tok"] = user
	s := f.gate.Resolve(context.Background(), "c1", "tok")
	defer f.gate.Release(s)
	require.Equal(t, Authenticated, s.State())

	release := make(chan struct{})
	observed := make(chan State, 1)
	f.provider.signOut = func(string) error {
		observed <- s.State()
		<-release
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- f.gate.SignOut(context.Background(), s, "refresh") }()

	assert.Equal(t, Anonymous, <-observed)
	assert.Nil(t, s.User())
	assert.True(t, s.Loading())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, s.Loading())
}

func TestGate_SignOut_ProviderErrorKeepsLocalClear(t *testing.T) {
	f := setupGate(t)
	f.provider.users["tok"] = newUser("ana@example.com")
	f.provider.signOut = func(string) error { return errors.New("network down") }
	s := f.gate.Resolve(context.Background(), "c1", "tok")
	defer f.gate.Release(s)

	err := f.gate.SignOut(context.Background(), s, "refresh")

	assert.Error(t, err)
	assert.Equal(t, Anonymous, s.State())
}

func TestGate_Events_UpdateAttachedSessions(t *testing.T) {
	f := setupGate(t)
	user := newUser("ana@example.com")
	f.provider.users["tok"] = user
	a := f.gate.Resolve(context.Background(), "c1", "tok")
	b := f.gate.Resolve(context.Background(), "c2", "tok")
	other := f.gate.Resolve(context.Background(), "c3", "")
	defer f.gate.Release(a)
	defer f.gate.Release(b)
	defer f.gate.Release(other)

	f.provider.publish(models.SessionEvent{Type: models.EventSignedOut, ClientID: "c1", UserID: user.ID})
	assert.Equal(t, Anonymous, a.State())
	assert.Equal(t, Authenticated, b.State())

	f.provider.publish(models.SessionEvent{Type: models.EventSignedOut, UserID: user.ID})
	assert.Equal(t, Anonymous, b.State())
	assert.Equal(t, Anonymous, other.State())

	f.sink.mu.Lock()
	assert.Len(t, f.sink.events, 2)
	f.sink.mu.Unlock()
}

func TestGate_Events_UserUpdatedRefreshesName(t *testing.T) {
	f := setupGate(t)
	user := newUser("ana@example.com")
	f.provider.users["tok"] = user
	s := f.gate.Resolve(context.Background(), "c1", "tok")
	defer f.gate.Release(s)
	require.Equal(t, "ana", *s.DisplayName())

	f.profiles.names[user.ID] = "Ana Paula"
	f.provider.publish(models.SessionEvent{Type: models.EventUserUpdated, UserID: user.ID})

	assert.Equal(t, "Ana Paula", *s.DisplayName())
}

func TestGate_Release_StopsUpdates(t *testing.T) {
	f := setupGate(t)
	user := newUser("ana@example.com")
	f.provider.users["tok"] = user
	s := f.gate.Resolve(context.Background(), "c1", "tok")
	f.gate.Release(s)

	f.provider.publish(models.SessionEvent{Type: models.EventSignedOut, ClientID: "c1", UserID: user.ID})

	assert.Equal(t, Authenticated, s.State())
}

func TestGate_StartClose(t *testing.T) {
	f := setupGate(t)

	assert.ErrorIs(t, f.gate.Start(), ErrAlreadyStarted)
	require.NoError(t, f.gate.Close())
	assert.ErrorIs(t, f.gate.Close(), ErrNotStarted)
	assert.Empty(t, f.provider.subs)
}

func TestGate_IsAdmin_CachesByUser(t *testing.T) {
	f := setupGate(t)
	user := newUser("admin@example.com")
	f.provider.users["tok"] = user
	f.roles.admins[user.ID] = true
	s := f.gate.Resolve(context.Background(), "c1", "tok")
	defer f.gate.Release(s)

	first, err := f.gate.IsAdmin(context.Background(), s)
	require.NoError(t, err)
	second, err := f.gate.IsAdmin(context.Background(), s)
	require.NoError(t, err)

	assert.True(t, first.IsAdmin)
	assert.False(t, first.Cached)
	assert.True(t, second.IsAdmin)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, f.roles.calls)

	isAdmin, known := s.Admin()
	assert.True(t, known)
	assert.True(t, isAdmin)
}

func TestGate_IsAdmin_Anonymous(t *testing.T) {
	f := setupGate(t)
	s := f.gate.Resolve(context.Background(), "c1", "")
	defer f.gate.Release(s)

	check, err := f.gate.IsAdmin(context.Background(), s)

	require.NoError(t, err)
	assert.False(t, check.IsAdmin)
	assert.Equal(t, uuid.Nil, check.UserID)
	assert.Zero(t, f.roles.calls)
}

func TestGate_IsAdmin_RetriesTransientErrors(t *testing.T) {
	f := setupGate(t)
	user := newUser("admin@example.com")
	f.provider.users["tok"] = user
	f.roles.admins[user.ID] = true
	f.roles.errs = []error{services.ErrUnavailable}
	s := f.gate.Resolve(context.Background(), "c1", "tok")
	defer f.gate.Release(s)

	check, err := f.gate.IsAdmin(context.Background(), s)

	require.NoError(t, err)
	assert.True(t, check.IsAdmin)
	assert.Equal(t, 2, f.roles.calls)
}

func TestGate_IsAdmin_ErrorDenies(t *testing.T) {
	f := setupGate(t)
	user := newUser("admin@example.com")
	f.provider.users["tok"] = user
	f.roles.admins[user.ID] = true
	f.roles.errs = []error{services.ErrUnavailable, services.ErrUnavailable}
	s := f.gate.Resolve(context.Background(), "c1", "tok")
	defer f.gate.Release(s)

	check, err := f.gate.IsAdmin(context.Background(), s)

	assert.Error(t, err)
	assert.False(t, check.IsAdmin)
	_, known := s.Admin()
	assert.False(t, known)
	_, found, _ := f.cache.Get(context.Background(), user.ID)
	assert.False(t, found, "errors are not cached")
}

func TestGate_IsAdmin_DiscardsResultForPreviousUser(t *testing.T) {
	f := setupGate(t)
	user := newUser("admin@example.com")
	f.provider.users["tok"] = user
	f.roles.admins[user.ID] = true
	s := f.gate.Resolve(context.Background(), "c1", "tok")
	defer f.gate.Release(s)

	f.roles.before = func() {
		f.provider.publish(models.SessionEvent{Type: models.EventSignedOut, ClientID: "c1", UserID: user.ID})
	}

	check, err := f.gate.IsAdmin(context.Background(), s)

	require.NoError(t, err)
	assert.Equal(t, user.ID, check.UserID)
	assert.NotEqual(t, s.UserID(), check.UserID)
	_, known := s.Admin()
	assert.False(t, known)
}

func TestGate_RegisterAndExternal(t *testing.T) {
	f := setupGate(t)
	f.provider.register = &services.RegisterResult{Message: services.ConfirmationSentMessage}

	msg, err := f.gate.Register(context.Background(), "ana@example.com", "segredo", "Ana")
	require.NoError(t, err)
	assert.Equal(t, services.ConfirmationSentMessage, msg)

	url, err := f.gate.SignInWithExternalProvider("google", "/my-reports")
	require.NoError(t, err)
	assert.Contains(t, url, "/my-reports")

	_, err = f.gate.SignInWithExternalProvider("github", "/")
	assert.ErrorIs(t, err, services.ErrUnsupportedProvider)
}
