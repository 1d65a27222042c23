package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dimitrije/reclama-api/internal/logging"
	"github.com/dimitrije/reclama-api/internal/metrics"
	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/dimitrije/reclama-api/internal/retry"
	"github.com/dimitrije/reclama-api/internal/rolecache"
	"github.com/dimitrije/reclama-api/internal/services"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrAlreadyStarted = errors.New("identity gate already started")
	ErrNotStarted     = errors.New("identity gate not started")
)

const eventLookupTimeout = 5 * time.Second

type AuthProvider interface {
	CurrentUser(ctx context.Context, accessToken string) (*models.User, error)
	SignIn(ctx context.Context, clientID, email, password string) (*models.AuthSession, error)
	ConsentURL(provider, next string) (string, error)
	Register(ctx context.Context, in services.RegisterInput) (*services.RegisterResult, error)
	SignOut(ctx context.Context, clientID, refreshToken string) error
	Subscribe(fn func(models.SessionEvent)) func()
}

type ProfileReader interface {
	GetName(ctx context.Context, userID uuid.UUID) (*string, error)
}

type RoleChecker interface {
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}

// EventSink receives every session event after the gate has applied it.
type EventSink interface {
	Publish(evt models.SessionEvent)
}

type Options struct {
	Cache rolecache.Cache
	Sink  EventSink
	// RolePolicy retries role lookups. The zero value selects
	// retry.RoleLookup.
	RolePolicy retry.Policy
	Log        logrus.FieldLogger
	Metrics    *metrics.Metrics
}

// Gate resolves client sessions and keeps attached sessions in step with
// the provider's session events between Start and Close.
type Gate struct {
	provider   AuthProvider
	profiles   ProfileReader
	roles      RoleChecker
	cache      rolecache.Cache
	sink       EventSink
	rolePolicy retry.Policy
	log        logrus.FieldLogger
	metrics    *metrics.Metrics

	mu          sync.Mutex
	sessions    map[string]map[*Session]struct{}
	unsubscribe func()
}

func NewGate(provider AuthProvider, profiles ProfileReader, roles RoleChecker, opts Options) *Gate {
	g := &Gate{
		provider:   provider,
		profiles:   profiles,
		roles:      roles,
		cache:      opts.Cache,
		sink:       opts.Sink,
		rolePolicy: opts.RolePolicy,
		log:        opts.Log,
		metrics:    opts.Metrics,
		sessions:   make(map[string]map[*Session]struct{}),
	}
	if g.log == nil {
		g.log = logging.Discard()
	}
	if g.rolePolicy.MaxAttempts == 0 {
		g.rolePolicy = retry.RoleLookup(services.IsTransient)
	}
	return g
}

// Start subscribes to session events.
func (g *Gate) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.unsubscribe != nil {
		return ErrAlreadyStarted
	}
	g.unsubscribe = g.provider.Subscribe(g.handleEvent)
	return nil
}

// Close unsubscribes from session events and detaches every session.
func (g *Gate) Close() error {
	g.mu.Lock()
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	g.sessions = make(map[string]map[*Session]struct{})
	g.mu.Unlock()

	if unsubscribe == nil {
		return ErrNotStarted
	}
	unsubscribe()
	return nil
}

// Resolve builds the session for clientID from an access token. Any provider
// failure yields an anonymous session. The session stays attached and follows
// session events until Release.
func (g *Gate) Resolve(ctx context.Context, clientID, accessToken string) *Session {
	s := NewSession(clientID)
	g.attach(s)

	version, err := s.beginResolve()
	if err != nil {
		g.log.WithError(err).Error("session resolve from unexpected state")
		return s
	}

	user, err := g.provider.CurrentUser(ctx, accessToken)
	if err != nil {
		entry := g.log.WithError(err).WithField("client_id", clientID)
		if services.KindOf(err) == services.KindUnauthorized {
			entry.Debug("no valid session, continuing anonymous")
		} else {
			entry.Warn("session lookup failed, continuing anonymous")
		}
		s.finishResolve(version, nil, nil)
		return s
	}

	s.finishResolve(version, user, g.DisplayName(ctx, user))
	return s
}

// Release detaches s from session events.
func (g *Gate) Release(s *Session) {
	if s == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if set, ok := g.sessions[s.clientID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(g.sessions, s.clientID)
		}
	}
}

func (g *Gate) attach(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.sessions[s.clientID]
	if !ok {
		set = make(map[*Session]struct{})
		g.sessions[s.clientID] = set
	}
	set[s] = struct{}{}
}

// DisplayName resolves the name shown for user. A failed profile lookup
// falls through to the next source.
func (g *Gate) DisplayName(ctx context.Context, user *models.User) *string {
	if user == nil {
		return nil
	}
	var profileName *string
	if g.profiles != nil {
		name, err := g.profiles.GetName(ctx, user.ID)
		if err != nil {
			g.log.WithError(err).WithField("user_id", user.ID).Warn("profile name lookup failed")
		} else {
			profileName = name
		}
	}
	return ResolveDisplayName(profileName, user)
}

// SignIn verifies credentials for the session's client. The session itself
// changes only when the provider's SignedIn event arrives; the returned
// credentials are for the transport layer.
func (g *Gate) SignIn(ctx context.Context, s *Session, email, password string) (*models.AuthSession, error) {
	s.beginBusy()
	defer s.endBusy()
	return g.provider.SignIn(ctx, s.clientID, email, password)
}

// SignInWithExternalProvider returns the consent URL that starts a redirect
// sign-in. Completion arrives as a SignedIn event.
func (g *Gate) SignInWithExternalProvider(provider, next string) (string, error) {
	return g.provider.ConsentURL(provider, next)
}

// Register creates an account and returns the message for the user. It does
// not sign anyone in.
func (g *Gate) Register(ctx context.Context, email, password, name string) (string, error) {
	res, err := g.provider.Register(ctx, services.RegisterInput{Email: email, Password: password, Name: name})
	if err != nil {
		return "", err
	}
	return res.Message, nil
}

// SignOut clears s before asking the provider to end the session, so guards
// see the signed-out state without waiting on the provider.
func (g *Gate) SignOut(ctx context.Context, s *Session, refreshToken string) error {
	userID := s.UserID()
	if err := s.signedOut(); err != nil {
		g.log.WithError(err).Error("sign-out from unexpected state")
	}
	if g.cache != nil && userID != uuid.Nil {
		if err := g.cache.Invalidate(ctx, userID); err != nil {
			g.log.WithError(err).Warn("role cache invalidation failed")
		}
	}

	s.beginBusy()
	defer s.endBusy()
	if err := g.provider.SignOut(ctx, s.clientID, refreshToken); err != nil {
		g.log.WithError(err).WithField("client_id", s.clientID).Warn("provider sign-out failed")
		return err
	}
	return nil
}

// AdminCheck is a role lookup result tagged with the user it was made for.
type AdminCheck struct {
	UserID  uuid.UUID
	IsAdmin bool
	Cached  bool
}

// IsAdmin checks the admin role of the session's user as of the call. Cached
// results are served for the cache TTL. Lookups are retried on connectivity
// errors; an error means the role is unknown and must be treated as absent.
// Callers compare AdminCheck.UserID with the session's current user before
// acting on the result.
func (g *Gate) IsAdmin(ctx context.Context, s *Session) (AdminCheck, error) {
	userID := s.UserID()
	check := AdminCheck{UserID: userID}
	if userID == uuid.Nil {
		return check, nil
	}

	if g.cache != nil {
		isAdmin, found, err := g.cache.Get(ctx, userID)
		if err != nil {
			g.log.WithError(err).Warn("role cache read failed")
		} else if found {
			g.metrics.RoleLookup("cached")
			check.IsAdmin, check.Cached = isAdmin, true
			s.recordAdmin(userID, isAdmin)
			return check, nil
		}
	}

	policy := g.rolePolicy
	policy.OnRetry = func(err error, wait time.Duration) {
		g.log.WithError(err).WithFields(logrus.Fields{"user_id": userID, "wait": wait.String()}).
			Warn("role lookup failed, retrying")
	}
	isAdmin, err := retry.Value(ctx, policy, func(ctx context.Context) (bool, error) {
		return g.roles.IsAdmin(ctx, userID)
	})
	if err != nil {
		g.metrics.RoleLookup("error")
		g.log.WithError(err).WithField("user_id", userID).Error("role lookup failed, denying admin access")
		return check, err
	}

	if isAdmin {
		g.metrics.RoleLookup("admin")
	} else {
		g.metrics.RoleLookup("user")
	}
	if g.cache != nil {
		if err := g.cache.Set(ctx, userID, isAdmin); err != nil {
			g.log.WithError(err).Warn("role cache write failed")
		}
	}
	if !s.recordAdmin(userID, isAdmin) {
		g.log.WithField("user_id", userID).Debug("discarding role lookup for a user no longer signed in")
	}

	check.IsAdmin = isAdmin
	return check, nil
}

func (g *Gate) handleEvent(evt models.SessionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), eventLookupTimeout)
	defer cancel()

	if g.cache != nil && evt.UserID != uuid.Nil {
		if err := g.cache.Invalidate(ctx, evt.UserID); err != nil {
			g.log.WithError(err).Warn("role cache invalidation failed")
		}
	}

	targets := g.targets(evt)
	switch evt.Type {
	case models.EventSignedIn, models.EventTokenRefreshed:
		if evt.User != nil {
			name := g.DisplayName(ctx, evt.User)
			for _, s := range targets {
				if err := s.signedIn(evt.User, name); err != nil {
					g.log.WithError(err).WithField("client_id", s.clientID).Error("failed to apply sign-in")
				}
			}
		}
	case models.EventSignedOut:
		for _, s := range targets {
			if err := s.signedOut(); err != nil {
				g.log.WithError(err).WithField("client_id", s.clientID).Error("failed to apply sign-out")
			}
		}
	case models.EventUserUpdated:
		if len(targets) > 0 {
			var user *models.User
			for _, s := range targets {
				if u := s.User(); u != nil && u.ID == evt.UserID {
					user = u
					break
				}
			}
			name := g.DisplayName(ctx, user)
			for _, s := range targets {
				s.setDisplayName(evt.UserID, name)
				s.forgetAdmin(evt.UserID)
			}
		}
	}

	g.log.WithFields(logrus.Fields{
		"event":     evt.Type,
		"user_id":   evt.UserID,
		"client_id": evt.ClientID,
		"sessions":  len(targets),
	}).Debug("session event applied")

	if g.sink != nil {
		g.sink.Publish(evt)
	}
}

// targets returns the attached sessions an event addresses: the sessions of
// its client, or every session holding its user when no client is named.
func (g *Gate) targets(evt models.SessionEvent) []*Session {
	g.mu.Lock()
	var candidates []*Session
	if evt.ClientID != "" {
		for s := range g.sessions[evt.ClientID] {
			candidates = append(candidates, s)
		}
	} else {
		for _, set := range g.sessions {
			for s := range set {
				candidates = append(candidates, s)
			}
		}
	}
	g.mu.Unlock()

	if evt.ClientID != "" {
		return candidates
	}
	out := candidates[:0]
	for _, s := range candidates {
		if s.holds(evt.UserID) {
			out = append(out, s)
		}
	}
	return out
}
