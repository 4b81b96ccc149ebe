package user

import (
	"context"
	"errors"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/google/uuid"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidEmail       = errors.New("a valid email is required")
	ErrInvalidName        = errors.New("name is required")
	ErrInvalidRole        = errors.New("role must be customer or admin")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Role         Role      `json:"role"`
	Address      Address   `json:"address"`
	Avatar       string    `json:"avatar"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ProfileUpdate is a partial profile update; nil fields are left alone
type ProfileUpdate struct {
	Name    *string  `json:"name"`
	Email   *string  `json:"email"`
	Address *Address `json:"address"`
	Avatar  *string  `json:"avatar"`
}

type emailEntry struct {
	Email  string `json:"email"`
	UserID string `json:"user_id"`
}

// EventPublisher publishes domain events, e.g. kafka.Producer
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, data any) error
}

type Service struct {
	store     store.DocumentStore
	tokens    ResetTokenStore
	publisher EventPublisher
	resetTTL  time.Duration
}

// NewService creates a user service. tokens and publisher may be nil, in
// which case password reset is unavailable and events are not published.
func NewService(s store.DocumentStore, tokens ResetTokenStore, publisher EventPublisher, resetTTL time.Duration) *Service {
	return &Service{
		store:     s,
		tokens:    tokens,
		publisher: publisher,
		resetTTL:  resetTTL,
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// Register creates a customer account
func (s *Service) Register(ctx context.Context, name, email, password string) (*User, error) {
	return s.register(ctx, name, email, password, RoleCustomer)
}

func (s *Service) register(ctx context.Context, name, email, password string, role Role) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	u := &User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.claimEmail(ctx, email, u.ID); err != nil {
		return nil, err
	}
	if err := s.store.Insert(ctx, store.Users, u.ID, u); err != nil {
		s.releaseEmail(ctx, email)
		return nil, err
	}

	s.publish(ctx, EventUserRegistered, u.ID, UserRegistered{
		UserID:       u.ID,
		Email:        u.Email,
		Name:         u.Name,
		RegisteredAt: now,
	})
	return u, nil
}

// Authenticate checks credentials. Unknown email and wrong password give the
// same error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrInvalidEmail) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	u, err := store.GetAs[User](ctx, s.store, store.Users, id)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	entry, err := store.GetAs[emailEntry](ctx, s.store, store.UserEmails, email)
	if err != nil {
		return nil, notFound(err)
	}
	return s.Get(ctx, entry.UserID)
}

func (s *Service) List(ctx context.Context) ([]*User, error) {
	return store.ListAs[User](ctx, s.store, store.Users)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	raws, err := s.store.List(ctx, store.Users)
	if err != nil {
		return 0, err
	}
	return len(raws), nil
}

func (s *Service) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, ErrInvalidName
		}
		u.Name = name
	}
	oldEmail := ""
	if upd.Email != nil {
		email, err := normalizeEmail(*upd.Email)
		if err != nil {
			return nil, err
		}
		if email != u.Email {
			if err := s.claimEmail(ctx, email, u.ID); err != nil {
				return nil, err
			}
			oldEmail = u.Email
			u.Email = email
		}
	}
	if upd.Address != nil {
		u.Address = *upd.Address
	}
	if upd.Avatar != nil {
		u.Avatar = *upd.Avatar
	}
	u.UpdatedAt = time.Now().UTC()

	if err := s.store.Replace(ctx, store.Users, id, u); err != nil {
		if oldEmail != "" {
			s.releaseEmail(ctx, u.Email)
		}
		return nil, notFound(err)
	}
	if oldEmail != "" {
		s.releaseEmail(ctx, oldEmail)
	}
	return u, nil
}

// ChangePassword verifies the current password before setting a new one
func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(current, u.PasswordHash) {
		return ErrInvalidCredentials
	}
	return s.setPassword(ctx, u, next)
}

func (s *Service) setPassword(ctx context.Context, u *User, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	return notFound(s.store.Replace(ctx, store.Users, u.ID, u))
}

func (s *Service) SetRole(ctx context.Context, id string, role Role) (*User, error) {
	if role != RoleCustomer && role != RoleAdmin {
		return nil, ErrInvalidRole
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	if err := s.store.Replace(ctx, store.Users, id, u); err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, store.Users, id); err != nil {
		return notFound(err)
	}
	if err := s.store.Delete(ctx, store.UserEmails, u.Email); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// EnsureAdmin makes sure an admin account exists for email, creating it or
// promoting the existing user. The password is only used on creation.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (*User, error) {
	u, err := s.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return s.register(ctx, "Administrator", email, password, RoleAdmin)
	}
	if err != nil {
		return nil, err
	}
	if u.IsAdmin() {
		return u, nil
	}
	return s.SetRole(ctx, u.ID, RoleAdmin)
}

// releaseEmail frees an address claimed by claimEmail. Failures are logged,
// not returned: the caller is already reporting its own error.
func (s *Service) releaseEmail(ctx context.Context, email string) {
	err := s.store.Delete(ctx, store.UserEmails, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("[User] failed to release email %s: %v", email, err)
	}
}

func (s *Service) claimEmail(ctx context.Context, email, userID string) error {
	err := s.store.Insert(ctx, store.UserEmails, email, emailEntry{Email: email, UserID: userID})
	if errors.Is(err, store.ErrDuplicate) {
		return ErrEmailTaken
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}
