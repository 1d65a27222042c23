package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ProviderEmail  = "email"
	ProviderGoogle = "google"
)

// User is the auth provider's account record. MetadataName is the name
// captured at sign-up or reported by the external provider; it is not the
// profile name.
type User struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	MetadataName     *string    `json:"metadata_name,omitempty"`
	AvatarURL        *string    `json:"avatar_url,omitempty"`
	Provider         string     `json:"provider"`
	ProviderID       *string    `json:"-"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (u *User) EmailConfirmed() bool {
	return u.EmailConfirmedAt != nil
}

type Profile struct {
	ID        uuid.UUID `json:"id"`
	Name      *string   `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
