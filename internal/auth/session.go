package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is a refresh-token login. Only a hash of the current refresh
// token is stored; refreshing rotates it.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"token_hash"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// SessionManager issues token pairs and keeps their sessions in the
// document store
type SessionManager struct {
	jwt   *JWTService
	store store.DocumentStore
}

func NewSessionManager(jwtService *JWTService, s store.DocumentStore) *SessionManager {
	return &SessionManager{jwt: jwtService, store: s}
}

// Issue starts a new session for a freshly authenticated user
func (m *SessionManager) Issue(ctx context.Context, userID, email, role string) (*TokenPair, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
	}
	pair, err := m.sign(sess, email, role)
	if err != nil {
		return nil, err
	}
	if err := m.store.Insert(ctx, store.Sessions, sess.ID, sess); err != nil {
		return nil, err
	}
	return pair, nil
}

// Verify checks a refresh token against its stored session. A token that
// was already rotated away no longer matches.
func (m *SessionManager) Verify(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := m.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	sess, err := store.GetAs[Session](ctx, m.store, store.Sessions, claims.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if sess.UserID != claims.UserID || time.Now().After(sess.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(sess.TokenHash), []byte(hashToken(refreshToken))) != 1 {
		return nil, ErrInvalidToken
	}
	return sess, nil
}

// Rotate issues a new token pair for a verified session
func (m *SessionManager) Rotate(ctx context.Context, sess *Session, email, role string) (*TokenPair, error) {
	pair, err := m.sign(sess, email, role)
	if err != nil {
		return nil, err
	}
	if err := m.store.Replace(ctx, store.Sessions, sess.ID, sess); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return pair, nil
}

// Revoke ends one session; unknown sessions are ignored
func (m *SessionManager) Revoke(ctx context.Context, sessionID string) error {
	err := m.store.Delete(ctx, store.Sessions, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// RevokeUser ends every session of a user, e.g. after a password change
func (m *SessionManager) RevokeUser(ctx context.Context, userID string) error {
	sessions, err := store.FindAs[Session](ctx, m.store, store.Sessions, "user_id", userID)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if err := m.Revoke(ctx, sess.ID); err != nil {
			return err
		}
	}
	return nil
}

func (m *SessionManager) sign(sess *Session, email, role string) (*TokenPair, error) {
	access, accessExp, err := m.jwt.GenerateAccessToken(sess.UserID, email, role)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := m.jwt.GenerateRefreshToken(sess.UserID, sess.ID)
	if err != nil {
		return nil, err
	}

	sess.TokenHash = hashToken(refresh)
	sess.ExpiresAt = refreshExp.UTC()
	sess.UpdatedAt = time.Now().UTC()

	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
