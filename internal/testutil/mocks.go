package testutil

import (
	"context"

	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/dimitrije/reclama-api/internal/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockReportService mocks the ReportService
type MockReportService struct {
	mock.Mock
}

func (m *MockReportService) Create(ctx context.Context, in services.CreateReportInput) (*services.CreateReportResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CreateReportResult), args.Error(1)
}

func (m *MockReportService) List(ctx context.Context, scope services.ReportScope, filter services.ReportFilter) (*services.ReportList, error) {
	args := m.Called(ctx, scope, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ReportList), args.Error(1)
}

func (m *MockReportService) Get(ctx context.Context, id uuid.UUID) (*services.ReportDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ReportDetail), args.Error(1)
}

func (m *MockReportService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ReportStatus) (*models.Report, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Report), args.Error(1)
}

// MockAuthService mocks the AuthService operations not covered by the gate
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Refresh(ctx context.Context, clientID, refreshToken string) (*models.AuthSession, error) {
	args := m.Called(ctx, clientID, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuthSession), args.Error(1)
}

func (m *MockAuthService) SignOutAll(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockAuthService) ConfirmEmail(ctx context.Context, token string) (*models.User, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockAuthService) CompleteExternal(ctx context.Context, provider, state, code, clientID string) (*models.AuthSession, string, error) {
	args := m.Called(ctx, provider, state, code, clientID)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(*models.AuthSession), args.String(1), args.Error(2)
}

func (m *MockAuthService) UpdateName(ctx context.Context, userID uuid.UUID, name string) (*models.Profile, error) {
	args := m.Called(ctx, userID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

// MockRoleService mocks the RoleService
type MockRoleService struct {
	mock.Mock
}

func (m *MockRoleService) GrantAdminByEmail(ctx context.Context, email string, grantedBy uuid.UUID) (*models.RoleAssignment, error) {
	args := m.Called(ctx, email, grantedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoleAssignment), args.Error(1)
}
