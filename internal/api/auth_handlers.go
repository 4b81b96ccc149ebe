package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/domain/user"
	"github.com/go-chi/chi/v5"
)

const refreshCookiePath = "/api/auth"

// AuthHandlers handles authentication and user account requests
type AuthHandlers struct {
	userService  *user.Service
	sessions     *auth.SessionManager
	secureCookie bool
}

func NewAuthHandlers(userService *user.Service, sessions *auth.SessionManager, secureCookie bool) *AuthHandlers {
	return &AuthHandlers{
		userService:  userService,
		sessions:     sessions,
		secureCookie: secureCookie,
	}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the tokens too, for clients that use the
// Authorization header instead of cookies
type AuthResponse struct {
	User             UserResponse `json:"user"`
	AccessToken      string       `json:"access_token"`
	AccessExpiresAt  time.Time    `json:"access_expires_at"`
	RefreshToken     string       `json:"refresh_token"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
	Message          string       `json:"message,omitempty"`
}

// UserResponse is a user without credentials
type UserResponse struct {
	ID        string       `json:"id"`
	Email     string       `json:"email"`
	Name      string       `json:"name"`
	Role      user.Role    `json:"role"`
	Address   user.Address `json:"address"`
	Avatar    string       `json:"avatar"`
	CreatedAt time.Time    `json:"created_at"`
}

func toUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		Address:   u.Address,
		Avatar:    u.Avatar,
		CreatedAt: u.CreatedAt,
	}
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	newUser, err := h.userService.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.startSession(w, r, newUser, http.StatusCreated, "Registration successful")
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	u, err := h.userService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.startSession(w, r, u, http.StatusOK, "Login successful")
}

// Logout revokes the session behind the refresh token, if any, and clears
// the cookies. It always succeeds.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if token := refreshTokenFrom(r); token != "" {
		if sess, err := h.sessions.Verify(r.Context(), token); err == nil {
			if err := h.sessions.Revoke(r.Context(), sess.ID); err != nil {
				log.Printf("[API] Failed to revoke session %s: %v", sess.ID, err)
			}
		}
	}

	h.clearAuthCookies(w)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

// Refresh rotates the refresh token. The old one stops working.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	token := refreshTokenFrom(r)
	if token == "" {
		respondJSONError(w, "No refresh token", http.StatusUnauthorized)
		return
	}

	sess, err := h.sessions.Verify(r.Context(), token)
	if err != nil {
		h.clearAuthCookies(w)
		respondError(w, r, err)
		return
	}

	u, err := h.userService.Get(r.Context(), sess.UserID)
	if err != nil {
		_ = h.sessions.Revoke(r.Context(), sess.ID)
		h.clearAuthCookies(w)
		respondJSONError(w, "User not found", http.StatusUnauthorized)
		return
	}

	pair, err := h.sessions.Rotate(r.Context(), sess, u.Email, string(u.Role))
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.setAuthCookies(w, pair)
	respondJSON(w, http.StatusOK, newAuthResponse(u, pair, "Token refreshed"))
}

func (h *AuthHandlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.userService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "If the email is registered, a reset link has been sent",
	})
}

func (h *AuthHandlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	u, err := h.userService.ResetPassword(r.Context(), req.Token, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.sessions.RevokeUser(r.Context(), u.ID); err != nil {
		log.Printf("[API] Failed to revoke sessions of user %s: %v", u.ID, err)
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Password has been reset"})
}

// Me returns the current authenticated user's information
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.userService.Get(r.Context(), getUserID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *AuthHandlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var upd user.ProfileUpdate
	if err := decodeJSON(r, &upd); err != nil {
		respondError(w, r, err)
		return
	}

	u, err := h.userService.UpdateProfile(r.Context(), getUserID(r), upd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(u))
}

// ChangePassword also ends every other login of the user; the caller gets a
// fresh session
func (h *AuthHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	userID := getUserID(r)
	err := h.userService.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword)
	if errors.Is(err, user.ErrInvalidCredentials) {
		respondJSONError(w, "Current password is incorrect", http.StatusBadRequest)
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.sessions.RevokeUser(r.Context(), userID); err != nil {
		log.Printf("[API] Failed to revoke sessions of user %s: %v", userID, err)
	}
	u, err := h.userService.Get(r.Context(), userID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.startSession(w, r, u, http.StatusOK, "Password changed successfully")
}

// Admin user management

func (h *AuthHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *AuthHandlers) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.userService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *AuthHandlers) SetUserRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role user.Role `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if id == getUserID(r) && req.Role != user.RoleAdmin {
		respondJSONError(w, "Cannot remove your own admin role", http.StatusBadRequest)
		return
	}
	u, err := h.userService.SetRole(r.Context(), id, req.Role)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *AuthHandlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == getUserID(r) {
		respondJSONError(w, "Cannot delete your own account", http.StatusBadRequest)
		return
	}
	if err := h.userService.Delete(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.sessions.RevokeUser(r.Context(), id); err != nil {
		log.Printf("[API] Failed to revoke sessions of user %s: %v", id, err)
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "User deleted"})
}

// Helper methods

func (h *AuthHandlers) startSession(w http.ResponseWriter, r *http.Request, u *user.User, status int, message string) {
	pair, err := h.sessions.Issue(r.Context(), u.ID, u.Email, string(u.Role))
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.setAuthCookies(w, pair)
	respondJSON(w, status, newAuthResponse(u, pair, message))
}

func newAuthResponse(u *user.User, pair *auth.TokenPair, message string) AuthResponse {
	return AuthResponse{
		User:             toUserResponse(u),
		AccessToken:      pair.AccessToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		Message:          message,
	}
}

// refreshTokenFrom reads the refresh token from its cookie or, for API
// clients, from an X-Refresh-Token header
func refreshTokenFrom(r *http.Request) string {
	if cookie, err := r.Cookie(middleware.RefreshTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.Header.Get("X-Refresh-Token")
}

func (h *AuthHandlers) setAuthCookies(w http.ResponseWriter, pair *auth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.AccessExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.RefreshTokenCookie,
		Value:    pair.RefreshToken,
		Path:     refreshCookiePath,
		Expires:  pair.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandlers) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.RefreshTokenCookie,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
	})
}
