package handlers

import (
	"context"

	"github.com/dimitrije/reclama-api/internal/identity"
	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/dimitrije/reclama-api/internal/services"
	"github.com/dimitrije/reclama-api/internal/sse"
	"github.com/google/uuid"
)

// SessionGateInterface defines the methods used by handlers from identity.Gate
type SessionGateInterface interface {
	SignIn(ctx context.Context, s *identity.Session, email, password string) (*models.AuthSession, error)
	SignInWithExternalProvider(provider, next string) (string, error)
	Register(ctx context.Context, email, password, name string) (string, error)
	SignOut(ctx context.Context, s *identity.Session, refreshToken string) error
	IsAdmin(ctx context.Context, s *identity.Session) (identity.AdminCheck, error)
}

// AuthServiceInterface defines the methods used by handlers from AuthService
type AuthServiceInterface interface {
	Refresh(ctx context.Context, clientID, refreshToken string) (*models.AuthSession, error)
	SignOutAll(ctx context.Context, userID uuid.UUID) error
	ConfirmEmail(ctx context.Context, token string) (*models.User, error)
	CompleteExternal(ctx context.Context, provider, state, code, clientID string) (*models.AuthSession, string, error)
	UpdateName(ctx context.Context, userID uuid.UUID, name string) (*models.Profile, error)
}

// ReportServiceInterface defines the methods used by handlers from ReportService
type ReportServiceInterface interface {
	Create(ctx context.Context, in services.CreateReportInput) (*services.CreateReportResult, error)
	List(ctx context.Context, scope services.ReportScope, filter services.ReportFilter) (*services.ReportList, error)
	Get(ctx context.Context, id uuid.UUID) (*services.ReportDetail, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ReportStatus) (*models.Report, error)
}

// RoleServiceInterface defines the methods used by handlers from RoleService
type RoleServiceInterface interface {
	GrantAdminByEmail(ctx context.Context, email string, grantedBy uuid.UUID) (*models.RoleAssignment, error)
}

// HubInterface defines the methods used by handlers from the SSE hub
type HubInterface interface {
	Register(client *sse.Client)
	Unregister(client *sse.Client)
}
