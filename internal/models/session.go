package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionEventType string

const (
	EventSignedIn       SessionEventType = "signed_in"
	EventSignedOut      SessionEventType = "signed_out"
	EventTokenRefreshed SessionEventType = "token_refreshed"
	EventUserUpdated    SessionEventType = "user_updated"
)

// SessionEvent is published by the auth provider whenever a client's session
// changes. An empty ClientID addresses every client of UserID.
type SessionEvent struct {
	Type     SessionEventType `json:"type"`
	ClientID string           `json:"-"`
	UserID   uuid.UUID        `json:"user_id"`
	User     *User            `json:"-"`
	At       time.Time        `json:"at"`
}

// AuthSession is the credential pair issued on sign-in or refresh.
type AuthSession struct {
	User         *User
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}
