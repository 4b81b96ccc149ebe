package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/command"
	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/conversation"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/domain/user"
	"github.com/example/ec-storefront/internal/infrastructure/store"
)

var errInvalidBody = errors.New("invalid request body")

// StockErrorResponse is the body of a 409 for insufficient stock
type StockErrorResponse struct {
	Error     string `json:"error"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

var notFoundErrors = []error{
	product.ErrProductNotFound,
	product.ErrReviewNotFound,
	cart.ErrItemNotFound,
	order.ErrOrderNotFound,
	user.ErrUserNotFound,
	conversation.ErrConversationNotFound,
}

var badRequestErrors = []error{
	errInvalidBody,
	product.ErrInvalidPrice,
	product.ErrInvalidName,
	product.ErrInvalidStock,
	product.ErrInvalidQuantity,
	product.ErrInvalidRating,
	cart.ErrInvalidQuantity,
	cart.ErrInvalidProduct,
	order.ErrEmptyOrder,
	order.ErrInvalidQuantity,
	order.ErrInvalidAddress,
	order.ErrInvalidPaymentMethod,
	order.ErrInvalidPaymentStatus,
	order.ErrInvalidStatus,
	user.ErrInvalidEmail,
	user.ErrInvalidName,
	user.ErrInvalidRole,
	user.ErrResetTokenInvalid,
	auth.ErrPasswordTooShort,
	auth.ErrPasswordTooLong,
	conversation.ErrInvalidMessage,
	conversation.ErrInvalidStatus,
	conversation.ErrInvalidSender,
}

var conflictErrors = []error{
	product.ErrAlreadyReviewed,
	user.ErrEmailTaken,
	order.ErrOrderCancelled,
	order.ErrOrderDelivered,
	order.ErrOrderShipped,
}

var unauthorizedErrors = []error{
	user.ErrInvalidCredentials,
	auth.ErrInvalidToken,
	auth.ErrExpiredToken,
	auth.ErrSessionNotFound,
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondError maps a domain error to its HTTP status. Anything unknown is
// a 500 with an opaque body; the cause only goes to the log.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *product.StockError
	if errors.As(err, &stockErr) {
		respondJSON(w, http.StatusConflict, StockErrorResponse{
			Error:     product.ErrInsufficientStock.Error(),
			ProductID: stockErr.ProductID,
			Name:      stockErr.Name,
			Requested: stockErr.Requested,
			Available: stockErr.Available,
		})
		return
	}

	switch {
	case isAny(err, notFoundErrors):
		respondJSONError(w, err.Error(), http.StatusNotFound)
	case isAny(err, badRequestErrors):
		respondJSONError(w, err.Error(), http.StatusBadRequest)
	case isAny(err, conflictErrors):
		respondJSONError(w, err.Error(), http.StatusConflict)
	case isAny(err, unauthorizedErrors):
		respondJSONError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, command.ErrNotOrderOwner):
		respondJSONError(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, store.ErrConditionFailed):
		log.Printf("[API] %s %s gave up on a contended write: %v", r.Method, r.URL.Path, err)
		respondJSONError(w, "resource was modified concurrently, please retry", http.StatusConflict)
	case errors.Is(err, user.ErrResetUnavailable):
		respondJSONError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		log.Printf("[API] %s %s failed: %v", r.Method, r.URL.Path, err)
		respondJSONError(w, "internal server error", http.StatusInternalServerError)
	}
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errInvalidBody
	}
	return nil
}
