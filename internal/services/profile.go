package services

import (
	"context"
	"errors"

	"github.com/dimitrije/reclama-api/internal/database"
	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ProfileService struct {
	db *database.DB
}

func NewProfileService(db *database.DB) *ProfileService {
	return &ProfileService{db: db}
}

// GetName returns the profile name, or nil when the user has no profile or
// the profile has no name.
func (s *ProfileService) GetName(ctx context.Context, userID uuid.UUID) (*string, error) {
	var name *string
	err := s.db.Pool.QueryRow(ctx, `SELECT name FROM profiles WHERE id = $1`, userID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get profile", err, nil)
	}
	if name != nil && *name == "" {
		return nil, nil
	}
	return name, nil
}

func (s *ProfileService) Upsert(ctx context.Context, userID uuid.UUID, name string) (*models.Profile, error) {
	var p models.Profile
	err := s.db.Pool.QueryRow(ctx, `
		INSERT INTO profiles (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()
		RETURNING id, name, created_at, updated_at
	`, userID, nullableString(name)).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if isPgCode(err, fkViolation) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, classify("save profile", err, nil)
	}
	return &p, nil
}
