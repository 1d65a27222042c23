package dto

import "github.com/google/uuid"

type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName *string   `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	Provider    string    `json:"provider"`
}

type UpdateUserRequest struct {
	Name string `json:"name"`
}

type SessionResponse struct {
	State   string        `json:"state"`
	Loading bool          `json:"loading"`
	User    *UserResponse `json:"user"`
	IsAdmin *bool         `json:"is_admin,omitempty"`
}

type GrantRoleRequest struct {
	Email string `json:"email"`
}

type RoleResponse struct {
	UserID    uuid.UUID  `json:"user_id"`
	Role      string     `json:"role"`
	GrantedBy *uuid.UUID `json:"granted_by,omitempty"`
	CreatedAt string     `json:"created_at"`
}
