package services

import (
	"context"
	"testing"
	"time"

	"github.com/dimitrije/reclama-api/internal/database"
	"github.com/dimitrije/reclama-api/internal/oauth"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userRowColumns = []string{
	"id", "email", "metadata_name", "avatar_url", "provider", "provider_id", "email_confirmed_at", "created_at", "updated_at",
}

func setupUserService(t *testing.T) (*UserService, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	db := &database.DB{Pool: mock}
	return NewUserService(db), mock
}

func strPtr(s string) *string { return &s }

func TestUserService_FindOrCreateFromOAuth_CreateNew(t *testing.T) {
	svc, mock := setupUserService(t)
	info := &oauth.UserInfo{
		Email:     "Joana@Example.com",
		Name:      "Joana Silva",
		AvatarURL: "https://example.com/avatar.png",
		ID:        "google-123",
		Provider:  "google",
	}
	userID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM users\s+WHERE provider = .+ AND provider_id`).
		WithArgs(info.Provider, info.ID).
		WillReturnError(pgx.ErrNoRows)

	mock.ExpectQuery(`INSERT INTO users .+ ON CONFLICT \(email\)`).
		WithArgs("joana@example.com", &info.Name, &info.AvatarURL, info.Provider, info.ID).
		WillReturnRows(pgxmock.NewRows(userRowColumns).
			AddRow(userID, "joana@example.com", &info.Name, &info.AvatarURL, "google", &info.ID, &now, now, now))

	user, err := svc.FindOrCreateFromOAuth(context.Background(), info)

	require.NoError(t, err)
	assert.Equal(t, userID, user.ID)
	assert.Equal(t, "joana@example.com", user.Email)
	assert.Equal(t, "Joana Silva", *user.MetadataName)
	assert.True(t, user.EmailConfirmed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_FindOrCreateFromOAuth_FindExisting(t *testing.T) {
	svc, mock := setupUserService(t)
	info := &oauth.UserInfo{
		Email:    "joana@example.com",
		Name:     "Joana",
		ID:       "google-456",
		Provider: "google",
	}
	userID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM users\s+WHERE provider = .+ AND provider_id`).
		WithArgs(info.Provider, info.ID).
		WillReturnRows(pgxmock.NewRows(userRowColumns).
			AddRow(userID, info.Email, strPtr("Joana"), nil, "google", &info.ID, &now, now, now))

	user, err := svc.FindOrCreateFromOAuth(context.Background(), info)

	require.NoError(t, err)
	assert.Equal(t, userID, user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_FindOrCreateFromOAuth_LookupUnavailable(t *testing.T) {
	svc, mock := setupUserService(t)
	info := &oauth.UserInfo{Email: "a@example.com", ID: "x", Provider: "google"}

	mock.ExpectQuery(`SELECT .+ FROM users`).
		WithArgs(info.Provider, info.ID).
		WillReturnError(&pgconn.PgError{Code: "08001"})

	_, err := svc.FindOrCreateFromOAuth(context.Background(), info)

	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestUserService_CreateWithPassword(t *testing.T) {
	svc, mock := setupUserService(t)
	userID := uuid.New()
	now := time.Now()
	name := "Carlos"

	mock.ExpectQuery(`INSERT INTO users \(email, password_hash`).
		WithArgs("carlos@example.com", "hash", &name, "email", false).
		WillReturnRows(pgxmock.NewRows(userRowColumns).
			AddRow(userID, "carlos@example.com", &name, nil, "email", nil, nil, now, now))

	user, err := svc.CreateWithPassword(context.Background(), " Carlos@example.com ", "hash", name, false)

	require.NoError(t, err)
	assert.Equal(t, userID, user.ID)
	assert.False(t, user.EmailConfirmed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_CreateWithPassword_EmailTaken(t *testing.T) {
	svc, mock := setupUserService(t)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("carlos@example.com", "hash", (*string)(nil), "email", true).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := svc.CreateWithPassword(context.Background(), "carlos@example.com", "hash", "", true)

	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestUserService_GetByID_NotFound(t *testing.T) {
	svc, mock := setupUserService(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := svc.GetByID(context.Background(), id)

	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserService_GetCredentials(t *testing.T) {
	svc, mock := setupUserService(t)
	userID := uuid.New()
	now := time.Now()
	hash := "$2a$10$hash"

	mock.ExpectQuery(`SELECT .+ password_hash FROM users WHERE email`).
		WithArgs("carlos@example.com").
		WillReturnRows(pgxmock.NewRows(append(append([]string{}, userRowColumns...), "password_hash")).
			AddRow(userID, "carlos@example.com", nil, nil, "email", nil, &now, now, now, &hash))

	user, got, err := svc.GetCredentials(context.Background(), "carlos@example.com")

	require.NoError(t, err)
	assert.Equal(t, userID, user.ID)
	assert.Equal(t, hash, got)
}

func TestUserService_GetCredentials_OAuthOnly(t *testing.T) {
	svc, mock := setupUserService(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ password_hash FROM users WHERE email`).
		WithArgs("g@example.com").
		WillReturnRows(pgxmock.NewRows(append(append([]string{}, userRowColumns...), "password_hash")).
			AddRow(uuid.New(), "g@example.com", nil, nil, "google", strPtr("g-1"), &now, now, now, nil))

	_, got, err := svc.GetCredentials(context.Background(), "g@example.com")

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUserService_ConfirmEmail(t *testing.T) {
	svc, mock := setupUserService(t)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`UPDATE users SET email_confirmed_at`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(userRowColumns).
			AddRow(id, "c@example.com", nil, nil, "email", nil, &now, now, now))

	user, err := svc.ConfirmEmail(context.Background(), id)

	require.NoError(t, err)
	assert.True(t, user.EmailConfirmed())
	assert.NoError(t, mock.ExpectationsWereMet())
}
