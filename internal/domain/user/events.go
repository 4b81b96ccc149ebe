package user

import "time"

const (
	EventUserRegistered         = "UserRegistered"
	EventPasswordResetRequested = "PasswordResetRequested"
)

// UserRegistered is published after sign-up
type UserRegistered struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
}

// PasswordResetRequested carries the raw token for the reset email
type PasswordResetRequested struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
