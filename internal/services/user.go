package services

import (
	"context"
	"errors"
	"strings"

	"github.com/dimitrije/reclama-api/internal/database"
	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/dimitrije/reclama-api/internal/oauth"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, metadata_name, avatar_url, provider, provider_id, email_confirmed_at, created_at, updated_at`

// UserService owns the auth provider's account records.
type UserService struct {
	db *database.DB
}

func NewUserService(db *database.DB) *UserService {
	return &UserService{db: db}
}

func scanUser(row pgx.Row, extra ...any) (*models.User, error) {
	var user models.User
	dest := []any{
		&user.ID, &user.Email, &user.MetadataName, &user.AvatarURL,
		&user.Provider, &user.ProviderID, &user.EmailConfirmedAt, &user.CreatedAt, &user.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindOrCreateFromOAuth returns the account linked to the external identity.
// An existing password account with the same email is linked to it.
func (s *UserService) FindOrCreateFromOAuth(ctx context.Context, info *oauth.UserInfo) (*models.User, error) {
	email := normalizeEmail(info.Email)

	user, err := scanUser(s.db.Pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE provider = $1 AND provider_id = $2
	`, info.Provider, info.ID))

	if err == nil {
		if user.Email != email || (user.AvatarURL == nil && info.AvatarURL != "") {
			_, _ = s.db.Pool.Exec(ctx, `
				UPDATE users SET email = $1, avatar_url = COALESCE(avatar_url, $2), updated_at = NOW()
				WHERE id = $3
			`, email, nullableString(info.AvatarURL), user.ID)
			user.Email = email
			if user.AvatarURL == nil && info.AvatarURL != "" {
				user.AvatarURL = &info.AvatarURL
			}
		}
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, classify("find oauth user", err, nil)
	}

	user, err = scanUser(s.db.Pool.QueryRow(ctx, `
		INSERT INTO users (email, metadata_name, avatar_url, provider, provider_id, email_confirmed_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (email) DO UPDATE SET
			provider = EXCLUDED.provider,
			provider_id = EXCLUDED.provider_id,
			metadata_name = COALESCE(users.metadata_name, EXCLUDED.metadata_name),
			avatar_url = COALESCE(users.avatar_url, EXCLUDED.avatar_url),
			email_confirmed_at = COALESCE(users.email_confirmed_at, NOW()),
			updated_at = NOW()
		RETURNING `+userColumns+`
	`, email, nullableString(info.Name), nullableString(info.AvatarURL), info.Provider, info.ID))
	if err != nil {
		return nil, classify("create user", err, nil)
	}

	return user, nil
}

// CreateWithPassword registers an email account. confirmed marks the email
// as verified immediately.
func (s *UserService) CreateWithPassword(ctx context.Context, email, passwordHash, name string, confirmed bool) (*models.User, error) {
	user, err := scanUser(s.db.Pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, metadata_name, provider, email_confirmed_at)
		VALUES ($1, $2, $3, $4, CASE WHEN $5 THEN NOW() END)
		RETURNING `+userColumns+`
	`, normalizeEmail(email), passwordHash, nullableString(name), models.ProviderEmail, confirmed))
	if isPgCode(err, uniqueViolation) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, classify("create user", err, nil)
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := scanUser(s.db.Pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1
	`, id))
	if err != nil {
		return nil, classify("get user", err, ErrUserNotFound)
	}
	return user, nil
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := scanUser(s.db.Pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE email = $1
	`, normalizeEmail(email)))
	if err != nil {
		return nil, classify("get user", err, ErrUserNotFound)
	}
	return user, nil
}

// GetCredentials returns the account and its password hash. OAuth-only
// accounts have an empty hash.
func (s *UserService) GetCredentials(ctx context.Context, email string) (*models.User, string, error) {
	var hash *string
	user, err := scanUser(s.db.Pool.QueryRow(ctx, `
		SELECT `+userColumns+`, password_hash FROM users WHERE email = $1
	`, normalizeEmail(email)), &hash)
	if err != nil {
		return nil, "", classify("get credentials", err, ErrUserNotFound)
	}
	if hash == nil {
		return user, "", nil
	}
	return user, *hash, nil
}

func (s *UserService) ConfirmEmail(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := scanUser(s.db.Pool.QueryRow(ctx, `
		UPDATE users SET email_confirmed_at = COALESCE(email_confirmed_at, NOW()), updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns+`
	`, id))
	if err != nil {
		return nil, classify("confirm email", err, ErrUserNotFound)
	}
	return user, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

