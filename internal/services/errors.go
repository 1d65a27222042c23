package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrUnavailable marks connectivity failures. Reads may be retried.
	ErrUnavailable = errors.New("service temporarily unavailable")

	ErrNotFound       = errors.New("not found")
	ErrReportNotFound = fmt.Errorf("report %w", ErrNotFound)
	ErrUserNotFound   = fmt.Errorf("user %w", ErrNotFound)

	ErrUnauthorized       = errors.New("not authenticated")
	ErrInvalidCredentials = fmt.Errorf("invalid email or password: %w", ErrUnauthorized)
	ErrEmailNotConfirmed  = fmt.Errorf("email not confirmed: %w", ErrUnauthorized)
	ErrForbidden          = errors.New("access denied")

	ErrEmailTaken           = errors.New("email already registered")
	ErrRoleAlreadyGranted   = errors.New("user is already an administrator")
	ErrTransitionNotAllowed = errors.New("status transition not allowed")
	ErrUnsupportedProvider  = errors.New("unsupported provider")

	// ErrImageUpload is reported as a warning: the report was created without
	// its image.
	ErrImageUpload = errors.New("image upload failed")
)

const (
	uniqueViolation = "23505"
	fkViolation     = "23503"
)

// ValidationError carries one message per rejected field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindConnectivity
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindValidation
	KindConflict
)

// KindOf places err in the error taxonomy.
func KindOf(err error) ErrorKind {
	var ve *ValidationError
	switch {
	case err == nil:
		return KindInternal
	case errors.As(err, &ve), errors.Is(err, ErrUnsupportedProvider):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrTransitionNotAllowed):
		return KindForbidden
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrRoleAlreadyGranted):
		return KindConflict
	case IsTransient(err):
		return KindConnectivity
	default:
		return KindInternal
	}
}

// IsTransient reports whether err is a connectivity failure worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 08: connection exception, 53: insufficient resources,
		// 57P0x: server shutdown, 40001: serialization failure.
		return strings.HasPrefix(pgErr.Code, "08") ||
			strings.HasPrefix(pgErr.Code, "53") ||
			strings.HasPrefix(pgErr.Code, "57P0") ||
			pgErr.Code == "40001"
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// classify wraps transient store errors in ErrUnavailable and maps
// pgx.ErrNoRows to notFound. Other errors are returned wrapped with op.
func classify(op string, err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows) && notFound != nil:
		return notFound
	case IsTransient(err):
		return fmt.Errorf("failed to %s: %w: %w", op, ErrUnavailable, err)
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
