package services

import (
	"context"

	"github.com/dimitrije/reclama-api/internal/database"
	"github.com/dimitrije/reclama-api/internal/logging"
	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RoleService reads and grants role assignments. Absence of an admin row
// means an ordinary user.
type RoleService struct {
	db  *database.DB
	log logrus.FieldLogger
}

func NewRoleService(db *database.DB, log logrus.FieldLogger) *RoleService {
	if log == nil {
		log = logging.Discard()
	}
	return &RoleService{db: db, log: log}
}

func (s *RoleService) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	var isAdmin bool
	err := s.db.Pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)
	`, userID, models.RoleAdmin).Scan(&isAdmin)
	if err != nil {
		return false, classify("check role", err, nil)
	}
	return isAdmin, nil
}

// GrantAdminByEmail assigns the admin role to the account with email.
// grantedBy is uuid.Nil when the grant comes from the operator CLI.
func (s *RoleService) GrantAdminByEmail(ctx context.Context, email string, grantedBy uuid.UUID) (*models.RoleAssignment, error) {
	var userID uuid.UUID
	err := s.db.Pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, normalizeEmail(email)).Scan(&userID)
	if err != nil {
		return nil, classify("find user", err, ErrUserNotFound)
	}

	var granter *uuid.UUID
	if grantedBy != uuid.Nil {
		granter = &grantedBy
	}

	var ra models.RoleAssignment
	err = s.db.Pool.QueryRow(ctx, `
		INSERT INTO user_roles (user_id, role, granted_by)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, role, granted_by, created_at
	`, userID, models.RoleAdmin, granter).Scan(&ra.ID, &ra.UserID, &ra.Role, &ra.GrantedBy, &ra.CreatedAt)
	if isPgCode(err, uniqueViolation) {
		return nil, ErrRoleAlreadyGranted
	}
	if err != nil {
		return nil, classify("grant role", err, nil)
	}

	entry := s.log.WithFields(logrus.Fields{
		"audit":   "role_granted",
		"role":    models.RoleAdmin,
		"user_id": userID,
		"email":   normalizeEmail(email),
	})
	if granter != nil {
		entry = entry.WithField("granted_by", *granter)
	} else {
		entry = entry.WithField("granted_by", "operator")
	}
	entry.Info("admin role granted")

	return &ra, nil
}
