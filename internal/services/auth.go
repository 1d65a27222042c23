package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dimitrije/reclama-api/internal/logging"
	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/dimitrije/reclama-api/internal/oauth"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	ConfirmationSentMessage = "Verifique seu email para confirmar sua conta."
	AccountCreatedMessage   = "Conta criada com sucesso. Você já pode entrar."

	oauthStateTTL = 10 * time.Minute
)

type AuthUsers interface {
	FindOrCreateFromOAuth(ctx context.Context, info *oauth.UserInfo) (*models.User, error)
	CreateWithPassword(ctx context.Context, email, passwordHash, name string, confirmed bool) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetCredentials(ctx context.Context, email string) (*models.User, string, error)
	ConfirmEmail(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type AuthProfiles interface {
	Upsert(ctx context.Context, userID uuid.UUID, name string) (*models.Profile, error)
}

type RefreshTokens interface {
	StoreRefreshToken(ctx context.Context, userID uuid.UUID, clientID, tokenHash string, expiresAt time.Time) error
	ValidateRefreshToken(ctx context.Context, tokenHash string) (uuid.UUID, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) (uuid.UUID, error)
	RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error
	CleanupExpired(ctx context.Context) (int64, error)
}

type ConfirmationMailer interface {
	IsConfigured() bool
	SendConfirmation(to, name, confirmURL string) error
}

type AuthOptions struct {
	// BaseURL prefixes links sent by email.
	BaseURL   string
	Providers []oauth.Provider
	Log       logrus.FieldLogger
}

// AuthService is the auth provider: password and external sign-in, token
// rotation, sign-out and account confirmation. Every change to a client's
// session is published to subscribers.
type AuthService struct {
	users     AuthUsers
	profiles  AuthProfiles
	tokens    RefreshTokens
	jwt       *JWTService
	mailer    ConfirmationMailer
	validator *Validator
	providers map[string]oauth.Provider
	states    *oauth.StateStore
	baseURL   string
	log       logrus.FieldLogger
	now       func() time.Time

	mu          sync.RWMutex
	subscribers map[int]func(models.SessionEvent)
	nextSub     int
}

func NewAuthService(users AuthUsers, profiles AuthProfiles, tokens RefreshTokens, jwt *JWTService, mailer ConfirmationMailer, opts AuthOptions) *AuthService {
	s := &AuthService{
		users:       users,
		profiles:    profiles,
		tokens:      tokens,
		jwt:         jwt,
		mailer:      mailer,
		validator:   NewValidator(),
		providers:   make(map[string]oauth.Provider),
		states:      oauth.NewStateStore(oauthStateTTL),
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		log:         opts.Log,
		now:         time.Now,
		subscribers: make(map[int]func(models.SessionEvent)),
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	for _, p := range opts.Providers {
		s.providers[p.Name()] = p
	}
	return s
}

// Subscribe registers fn for session events and returns its cancel func.
// Delivery is synchronous, in publish order.
func (s *AuthService) Subscribe(fn func(models.SessionEvent)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *AuthService) publish(evt models.SessionEvent) {
	evt.At = s.now()
	s.mu.RLock()
	subs := make([]func(models.SessionEvent), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(evt)
	}
}

type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=6,max=72"`
	Name     string `json:"name" validate:"notblank,max=255"`
}

type RegisterResult struct {
	User              *models.User
	NeedsConfirmation bool
	Message           string
}

// Register creates a password account and its profile. It never signs the
// caller in. When mail is configured the account stays unconfirmed until the
// emailed link is followed.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	needsConfirmation := s.mailer != nil && s.mailer.IsConfigured()
	name := strings.TrimSpace(in.Name)

	user, err := s.users.CreateWithPassword(ctx, in.Email, string(hash), name, !needsConfirmation)
	if err != nil {
		return nil, err
	}

	if _, err := s.profiles.Upsert(ctx, user.ID, name); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("failed to create profile at sign-up")
	}

	result := &RegisterResult{User: user, NeedsConfirmation: needsConfirmation, Message: AccountCreatedMessage}
	if !needsConfirmation {
		return result, nil
	}

	result.Message = ConfirmationSentMessage
	token, err := s.jwt.GenerateConfirmationToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create confirmation token: %w", err)
	}
	link := s.baseURL + "/confirm-email?token=" + url.QueryEscape(token)
	if err := s.mailer.SendConfirmation(user.Email, name, link); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Error("failed to send confirmation email")
	}
	return result, nil
}

// ConfirmEmail marks the account of a valid confirmation token as verified.
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.jwt.ValidateConfirmationToken(token)
	if err != nil {
		return nil, fmt.Errorf("invalid confirmation token: %w", ErrUnauthorized)
	}
	user, err := s.users.ConfirmEmail(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.log.WithField("user_id", user.ID).Info("email confirmed")
	return user, nil
}

// SignIn verifies a password and opens a session for clientID.
func (s *AuthService) SignIn(ctx context.Context, clientID, email, password string) (*models.AuthSession, error) {
	user, hash, err := s.users.GetCredentials(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.EmailConfirmed() {
		return nil, ErrEmailNotConfirmed
	}

	session, err := s.issue(ctx, clientID, user)
	if err != nil {
		return nil, err
	}
	s.publish(models.SessionEvent{Type: models.EventSignedIn, ClientID: clientID, UserID: user.ID, User: user})
	return session, nil
}

// Refresh rotates a refresh token. The presented token is revoked whether or
// not a new pair can be issued.
func (s *AuthService) Refresh(ctx context.Context, clientID, refreshToken string) (*models.AuthSession, error) {
	userID, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", ErrUnauthorized)
	}

	hash := HashToken(refreshToken)
	storedUserID, err := s.tokens.ValidateRefreshToken(ctx, hash)
	if err != nil {
		return nil, err
	}
	if storedUserID != userID {
		return nil, fmt.Errorf("refresh token owner mismatch: %w", ErrUnauthorized)
	}
	if _, err := s.tokens.RevokeRefreshToken(ctx, hash); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}

	session, err := s.issue(ctx, clientID, user)
	if err != nil {
		return nil, err
	}
	s.publish(models.SessionEvent{Type: models.EventTokenRefreshed, ClientID: clientID, UserID: user.ID, User: user})
	return session, nil
}

// SignOut revokes the client's refresh token. An unknown or empty token is
// not an error; the client is signed out either way.
func (s *AuthService) SignOut(ctx context.Context, clientID, refreshToken string) error {
	var userID uuid.UUID
	var err error
	if refreshToken != "" {
		userID, err = s.tokens.RevokeRefreshToken(ctx, HashToken(refreshToken))
	}
	s.publish(models.SessionEvent{Type: models.EventSignedOut, ClientID: clientID, UserID: userID})
	return err
}

// SignOutAll revokes every refresh token of the user and signs out all of
// their clients.
func (s *AuthService) SignOutAll(ctx context.Context, userID uuid.UUID) error {
	if err := s.tokens.RevokeAllUserTokens(ctx, userID); err != nil {
		return err
	}
	s.publish(models.SessionEvent{Type: models.EventSignedOut, UserID: userID})
	return nil
}

// CurrentUser returns the account behind an access token.
func (s *AuthService) CurrentUser(ctx context.Context, accessToken string) (*models.User, error) {
	if accessToken == "" {
		return nil, ErrUnauthorized
	}
	claims, err := s.jwt.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", ErrUnauthorized)
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrUnauthorized
	}
	return user, err
}

// ConsentURL starts an external sign-in and remembers next for the callback.
func (s *AuthService) ConsentURL(provider, next string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", ErrUnsupportedProvider
	}
	state, err := s.states.Issue(provider, next)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return p.GetConsentURL(state), nil
}

// CompleteExternal finishes an external sign-in for clientID and returns the
// session together with the path recorded by ConsentURL.
func (s *AuthService) CompleteExternal(ctx context.Context, provider, state, code, clientID string) (*models.AuthSession, string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, "", ErrUnsupportedProvider
	}
	pending, ok := s.states.Take(state)
	if !ok || pending.Provider != provider {
		return nil, "", fmt.Errorf("invalid or expired state: %w", ErrUnauthorized)
	}
	if code == "" {
		return nil, "", fmt.Errorf("missing authorization code: %w", ErrUnauthorized)
	}

	info, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if !info.EmailVerified {
		return nil, "", ErrEmailNotConfirmed
	}

	user, err := s.users.FindOrCreateFromOAuth(ctx, info)
	if err != nil {
		return nil, "", err
	}

	session, err := s.issue(ctx, clientID, user)
	if err != nil {
		return nil, "", err
	}
	s.publish(models.SessionEvent{Type: models.EventSignedIn, ClientID: clientID, UserID: user.ID, User: user})
	return session, pending.Next, nil
}

// UpdateName sets the user's profile name and notifies all of their clients.
func (s *AuthService) UpdateName(ctx context.Context, userID uuid.UUID, name string) (*models.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 255 {
		return nil, &ValidationError{Fields: map[string]string{"name": messageFor("name", "notblank")}}
	}
	profile, err := s.profiles.Upsert(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	s.publish(models.SessionEvent{Type: models.EventUserUpdated, UserID: userID})
	return profile, nil
}

// RunMaintenance sweeps expired consent states and refresh tokens every
// interval until ctx is done.
func (s *AuthService) RunMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.states.Sweep()
			n, err := s.tokens.CleanupExpired(ctx)
			if err != nil {
				s.log.WithError(err).Warn("refresh token cleanup failed")
				continue
			}
			if n > 0 {
				s.log.WithField("removed", n).Debug("expired refresh tokens removed")
			}
		}
	}
}

func (s *AuthService) issue(ctx context.Context, clientID string, user *models.User) (*models.AuthSession, error) {
	pair, err := s.jwt.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(s.jwt.RefreshExpiry())
	if err := s.tokens.StoreRefreshToken(ctx, user.ID, clientID, HashToken(pair.RefreshToken), expiresAt); err != nil {
		return nil, err
	}
	return &models.AuthSession{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}
