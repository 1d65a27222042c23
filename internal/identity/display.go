package identity

import (
	"strings"

	"github.com/dimitrije/reclama-api/internal/models"
)

// ResolveDisplayName picks the name shown for a user: the profile name, then
// the name given at sign-up, then the local part of the email. It returns nil
// when none of them is usable.
func ResolveDisplayName(profileName *string, user *models.User) *string {
	if name := trimmed(profileName); name != "" {
		return &name
	}
	if user == nil {
		return nil
	}
	if name := trimmed(user.MetadataName); name != "" {
		return &name
	}
	if local, _, ok := strings.Cut(user.Email, "@"); ok && local != "" {
		return &local
	}
	return nil
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
