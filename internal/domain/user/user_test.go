package user

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedEvent struct {
	Type string
	Key  string
	Data any
}

type mockPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (m *mockPublisher) Publish(ctx context.Context, eventType, key string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, publishedEvent{Type: eventType, Key: key, Data: data})
	return m.err
}

func (m *mockPublisher) ofType(eventType string) []publishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []publishedEvent
	for _, e := range m.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type memoryTokens struct {
	mu     sync.Mutex
	tokens map[string]string
	ttls   map[string]time.Duration
}

func newMemoryTokens() *memoryTokens {
	return &memoryTokens{tokens: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryTokens) Save(ctx context.Context, token, userID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = userID
	m.ttls[token] = ttl
	return nil
}

func (m *memoryTokens) Consume(ctx context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.tokens[token]
	if !ok {
		return "", ErrResetTokenInvalid
	}
	delete(m.tokens, token)
	return userID, nil
}

func newTestUserService() (*Service, *mockPublisher, *memoryTokens) {
	publisher := &mockPublisher{}
	tokens := newMemoryTokens()
	return NewService(mocks.NewMockDocumentStore(), tokens, publisher, time.Hour), publisher, tokens
}

func registerTestUser(t *testing.T, s *Service, email string) *User {
	t.Helper()
	u, err := s.Register(context.Background(), "Test User", email, "password123")
	require.NoError(t, err)
	return u
}

// ============================================
// Register Tests
// ============================================

func TestService_Register(t *testing.T) {
	service, publisher, _ := newTestUserService()

	u, err := service.Register(context.Background(), " Ann ", " Ann@Example.COM ", "password123")

	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "Ann", u.Name)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.Equal(t, RoleCustomer, u.Role)
	assert.NotEqual(t, "password123", u.PasswordHash)
	assert.Len(t, publisher.ofType(EventUserRegistered), 1)
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	service, _, _ := newTestUserService()
	registerTestUser(t, service, "ann@example.com")

	_, err := service.Register(context.Background(), "Other", "ANN@example.com", "password123")

	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestService_Register_Validation(t *testing.T) {
	tests := []struct {
		name     string
		userName string
		email    string
		password string
	}{
		{"empty name", "", "a@example.com", "password123"},
		{"bad email", "Ann", "not-an-email", "password123"},
		{"display-name email", "Ann", "Ann <a@example.com>", "password123"},
		{"short password", "Ann", "a@example.com", "short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, _, _ := newTestUserService()
			_, err := service.Register(context.Background(), tt.userName, tt.email, tt.password)
			assert.Error(t, err)
		})
	}
}

func TestService_Register_PublishFailureIsNotFatal(t *testing.T) {
	service, publisher, _ := newTestUserService()
	publisher.err = errors.New("broker down")

	_, err := service.Register(context.Background(), "Ann", "ann@example.com", "password123")

	assert.NoError(t, err)
}

func TestService_Register_InsertFailureReleasesEmail(t *testing.T) {
	docs := mocks.NewMockDocumentStore()
	service := NewService(docs, nil, nil, time.Hour)
	insertErr := errors.New("connection reset")
	docs.FailOn = func(call mocks.Call) error {
		if call.Op == mocks.OpInsert && call.Collection == store.Users {
			return insertErr
		}
		return nil
	}

	_, err := service.Register(context.Background(), "Ann", "ann@example.com", "password123")
	assert.ErrorIs(t, err, insertErr)

	docs.FailOn = nil
	registerTestUser(t, service, "ann@example.com")
}

func TestService_Register_ReleaseFailureKeepsOriginalError(t *testing.T) {
	docs := mocks.NewMockDocumentStore()
	service := NewService(docs, nil, nil, time.Hour)
	insertErr := errors.New("connection reset")
	releaseErr := errors.New("store unavailable")
	docs.FailOn = func(call mocks.Call) error {
		switch {
		case call.Op == mocks.OpInsert && call.Collection == store.Users:
			return insertErr
		case call.Op == mocks.OpDelete && call.Collection == store.UserEmails:
			return releaseErr
		}
		return nil
	}

	_, err := service.Register(context.Background(), "Ann", "ann@example.com", "password123")

	assert.ErrorIs(t, err, insertErr)
	assert.NotErrorIs(t, err, releaseErr)
	deletes := docs.CallsFor(mocks.OpDelete)
	require.Len(t, deletes, 1)
	assert.Equal(t, store.UserEmails, deletes[0].Collection)
	assert.Equal(t, "ann@example.com", deletes[0].ID)
}

// ============================================
// Authenticate Tests
// ============================================

func TestService_Authenticate(t *testing.T) {
	service, _, _ := newTestUserService()
	ctx := context.Background()
	registered := registerTestUser(t, service, "ann@example.com")

	u, err := service.Authenticate(ctx, "ANN@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)

	_, err = service.Authenticate(ctx, "ann@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = service.Authenticate(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

// ============================================
// Profile Tests
// ============================================

func TestService_UpdateProfile_ChangesEmail(t *testing.T) {
	service, _, _ := newTestUserService()
	ctx := context.Background()
	u := registerTestUser(t, service, "ann@example.com")

	newEmail := "ann@new.example.com"
	addr := Address{City: "Springfield"}
	updated, err := service.UpdateProfile(ctx, u.ID, ProfileUpdate{Email: &newEmail, Address: &addr})
	require.NoError(t, err)
	assert.Equal(t, newEmail, updated.Email)
	assert.Equal(t, "Springfield", updated.Address.City)
	assert.Equal(t, "Test User", updated.Name)

	// the old address is free again
	registerTestUser(t, service, "ann@example.com")

	found, err := service.GetByEmail(ctx, newEmail)
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)
}

func TestService_UpdateProfile_EmailTaken(t *testing.T) {
	service, _, _ := newTestUserService()
	ctx := context.Background()
	registerTestUser(t, service, "ann@example.com")
	bo := registerTestUser(t, service, "bo@example.com")

	taken := "ann@example.com"
	_, err := service.UpdateProfile(ctx, bo.ID, ProfileUpdate{Email: &taken})
	assert.ErrorIs(t, err, ErrEmailTaken)

	stored, err := service.Get(ctx, bo.ID)
	require.NoError(t, err)
	assert.Equal(t, "bo@example.com", stored.Email)
}

func TestService_ChangePassword(t *testing.T) {
	service, _, _ := newTestUserService()
	ctx := context.Background()
	u := registerTestUser(t, service, "ann@example.com")

	assert.ErrorIs(t, service.ChangePassword(ctx, u.ID, "wrong-password", "newpassword1"), ErrInvalidCredentials)
	require.NoError(t, service.ChangePassword(ctx, u.ID, "password123", "newpassword1"))

	_, err := service.Authenticate(ctx, "ann@example.com", "newpassword1")
	assert.NoError(t, err)
}

// ============================================
// Admin Tests
// ============================================

func TestService_SetRole(t *testing.T) {
	service, _, _ := newTestUserService()
	ctx := context.Background()
	u := registerTestUser(t, service, "ann@example.com")

	updated, err := service.SetRole(ctx, u.ID, RoleAdmin)
	require.NoError(t, err)
	assert.True(t, updated.IsAdmin())

	_, err = service.SetRole(ctx, u.ID, Role("root"))
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestService_Delete(t *testing.T) {
	service, _, _ := newTestUserService()
	ctx := context.Background()
	u := registerTestUser(t, service, "ann@example.com")

	require.NoError(t, service.Delete(ctx, u.ID))

	_, err := service.Get(ctx, u.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
	// email can be reused
	registerTestUser(t, service, "ann@example.com")
}

func TestService_EnsureAdmin(t *testing.T) {
	service, _, _ := newTestUserService()
	ctx := context.Background()

	created, err := service.EnsureAdmin(ctx, "admin@example.com", "adminpass1")
	require.NoError(t, err)
	assert.True(t, created.IsAdmin())

	again, err := service.EnsureAdmin(ctx, "admin@example.com", "ignored-pass")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	customer := registerTestUser(t, service, "ann@example.com")
	promoted, err := service.EnsureAdmin(ctx, "ann@example.com", "whatever1")
	require.NoError(t, err)
	assert.Equal(t, customer.ID, promoted.ID)
	assert.True(t, promoted.IsAdmin())

	count, err := service.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// ============================================
// Password Reset Tests
// ============================================

func TestService_PasswordReset(t *testing.T) {
	service, publisher, tokens := newTestUserService()
	ctx := context.Background()
	u := registerTestUser(t, service, "ann@example.com")

	require.NoError(t, service.RequestPasswordReset(ctx, "ann@example.com"))

	events := publisher.ofType(EventPasswordResetRequested)
	require.Len(t, events, 1)
	req := events[0].Data.(PasswordResetRequested)
	assert.Equal(t, u.ID, req.UserID)
	assert.Equal(t, time.Hour, tokens.ttls[req.Token])

	_, err := service.ResetPassword(ctx, req.Token, "short")
	assert.Error(t, err, "weak password is rejected")

	reset, err := service.ResetPassword(ctx, req.Token, "brandnewpass")
	require.NoError(t, err)
	assert.Equal(t, u.ID, reset.ID)

	_, err = service.Authenticate(ctx, "ann@example.com", "brandnewpass")
	assert.NoError(t, err)

	_, err = service.ResetPassword(ctx, req.Token, "anotherpass1")
	assert.ErrorIs(t, err, ErrResetTokenInvalid, "tokens are single use")
}

func TestService_RequestPasswordReset_UnknownEmail(t *testing.T) {
	service, publisher, _ := newTestUserService()

	err := service.RequestPasswordReset(context.Background(), "nobody@example.com")

	assert.NoError(t, err)
	assert.Empty(t, publisher.ofType(EventPasswordResetRequested))
}

func TestService_PasswordReset_Unavailable(t *testing.T) {
	service := NewService(mocks.NewMockDocumentStore(), nil, nil, time.Hour)

	assert.ErrorIs(t, service.RequestPasswordReset(context.Background(), "a@example.com"), ErrResetUnavailable)
}
