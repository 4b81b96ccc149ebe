package user

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/google/uuid"
)

var (
	ErrResetTokenInvalid = errors.New("reset token is invalid or has expired")
	ErrResetUnavailable  = errors.New("password reset is not configured")
)

// ResetTokenStore keeps single-use password reset tokens
type ResetTokenStore interface {
	Save(ctx context.Context, token, userID string, ttl time.Duration) error
	// Consume returns the user id for token and deletes it; ErrResetTokenInvalid
	// if the token is unknown or expired
	Consume(ctx context.Context, token string) (string, error)
}

// RequestPasswordReset issues a reset token and publishes it for the
// notifier to mail. Unknown emails succeed silently so the endpoint cannot
// be used to probe for accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if s.tokens == nil {
		return ErrResetUnavailable
	}
	u, err := s.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrInvalidEmail) {
		return nil
	}
	if err != nil {
		return err
	}

	token := uuid.New().String()
	if err := s.tokens.Save(ctx, token, u.ID, s.resetTTL); err != nil {
		return err
	}

	s.publish(ctx, EventPasswordResetRequested, u.ID, PasswordResetRequested{
		UserID:    u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Token:     token,
		ExpiresAt: time.Now().Add(s.resetTTL).UTC(),
	})
	return nil
}

// ResetPassword sets a new password using a reset token. The password is
// checked first so a typo does not burn the token.
func (s *Service) ResetPassword(ctx context.Context, token, password string) (*User, error) {
	if s.tokens == nil {
		return nil, ErrResetUnavailable
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, err
	}

	userID, err := s.tokens.Consume(ctx, token)
	if err != nil {
		return nil, err
	}
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.setPassword(ctx, u, password); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) publish(ctx context.Context, eventType, key string, data any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, key, data); err != nil {
		log.Printf("[User] failed to publish %s for %s: %v", eventType, key, err)
	}
}
