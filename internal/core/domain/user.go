package domain

import (
	"errors"
	"time"
)

const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
	RoleClient = "client"
)

var ErrInvalidCredentials = errors.New("invalid credentials")
var ErrUserNotFound = errors.New("user not found")
var ErrUserExists = errors.New("user already exists")

// User models a viewer account: anyone who opens a console or dashboard.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	ClientID     string    `json:"client_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ValidRole reports whether role is one of the known viewer roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleSeller, RoleClient:
		return true
	}
	return false
}

// AudienceForRole maps a viewer role to the sender type whose own messages
// must not notify that viewer.
func AudienceForRole(role string) (SenderType, error) {
	switch role {
	case RoleAdmin:
		return SenderAdmin, nil
	case RoleSeller:
		return SenderSeller, nil
	case RoleClient:
		return SenderClient, nil
	}
	return "", ErrForbidden
}

// Presence is the heartbeat a viewer sends while it is open.
type Presence struct {
	ViewerID string    `json:"viewer_id"`
	Role     string    `json:"role"`
	ClientID string    `json:"client_id,omitempty"`
	SeenAt   time.Time `json:"seen_at"`
}
