package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/user"
	"github.com/example/ec-storefront/internal/email"
	"github.com/example/ec-storefront/internal/infrastructure/kafka"
)

// Mailer is implemented by email.Service
type Mailer interface {
	SendOrderConfirmation(to string, data email.OrderConfirmation) error
	SendStatusUpdate(to string, data email.StatusUpdate) error
	SendPasswordReset(to string, data email.PasswordReset) error
	SendWelcome(to string, data email.Welcome) error
}

// Handler turns domain events into customer emails
type Handler struct {
	mailer Mailer
}

// NewHandler creates a new notification handler
func NewHandler(mailer Mailer) *Handler {
	return &Handler{mailer: mailer}
}

// HandleEvent processes an event from Kafka. Unknown event types are ignored.
func (h *Handler) HandleEvent(ctx context.Context, event *kafka.Event) error {
	switch event.Type {
	case order.EventOrderPlaced:
		return h.handleOrderPlaced(event)
	case order.EventOrderStatusChanged:
		return h.handleOrderStatusChanged(event)
	case user.EventPasswordResetRequested:
		return h.handlePasswordReset(event)
	case user.EventUserRegistered:
		return h.handleUserRegistered(event)
	}
	return nil
}

func (h *Handler) handleOrderPlaced(event *kafka.Event) error {
	var e order.OrderPlaced
	if err := decode(event, &e); err != nil {
		return err
	}
	if e.Email == "" {
		log.Printf("[Notifier] No email on order %s, skipping confirmation", e.OrderID)
		return nil
	}

	items := make([]email.OrderItem, len(e.Items))
	for i, item := range e.Items {
		name := item.Name
		if name == "" {
			name = item.ProductID
		}
		items[i] = email.OrderItem{
			Name:     name,
			Size:     item.Size,
			Color:    item.Color,
			Quantity: item.Quantity,
			Price:    item.Price,
		}
	}

	err := h.mailer.SendOrderConfirmation(e.Email, email.OrderConfirmation{
		CustomerName: e.CustomerName,
		OrderID:      e.OrderID,
		Items:        items,
		Total:        e.TotalAmount,
		ShipTo:       formatAddress(e.ShippingAddress),
	})
	if err != nil {
		log.Printf("[Notifier] Failed to send confirmation to %s: %v", e.Email, err)
		return err
	}
	log.Printf("[Notifier] Order confirmation sent to %s for order %s", e.Email, e.OrderID)
	return nil
}

func (h *Handler) handleOrderStatusChanged(event *kafka.Event) error {
	var e order.OrderStatusChanged
	if err := decode(event, &e); err != nil {
		return err
	}
	// payment-only updates do not change what the customer sees
	if e.From == e.To || e.Email == "" {
		return nil
	}

	err := h.mailer.SendStatusUpdate(e.Email, email.StatusUpdate{
		CustomerName:   e.CustomerName,
		OrderID:        e.OrderID,
		Status:         string(e.To),
		Carrier:        e.DeliveryInfo.Carrier,
		TrackingNumber: e.DeliveryInfo.TrackingNumber,
		Reason:         e.Reason,
	})
	if err != nil {
		log.Printf("[Notifier] Failed to send status update to %s: %v", e.Email, err)
		return err
	}
	log.Printf("[Notifier] Order %s status %s -> %s mailed to %s", e.OrderID, e.From, e.To, e.Email)
	return nil
}

func (h *Handler) handlePasswordReset(event *kafka.Event) error {
	var e user.PasswordResetRequested
	if err := decode(event, &e); err != nil {
		return err
	}
	if err := h.mailer.SendPasswordReset(e.Email, email.PasswordReset{
		Name:      e.Name,
		Token:     e.Token,
		ExpiresAt: e.ExpiresAt,
	}); err != nil {
		log.Printf("[Notifier] Failed to send reset link to %s: %v", e.Email, err)
		return err
	}
	log.Printf("[Notifier] Password reset link sent for user %s", e.UserID)
	return nil
}

func (h *Handler) handleUserRegistered(event *kafka.Event) error {
	var e user.UserRegistered
	if err := decode(event, &e); err != nil {
		return err
	}
	return h.mailer.SendWelcome(e.Email, email.Welcome{Name: e.Name})
}

func decode(event *kafka.Event, v any) error {
	if err := json.Unmarshal(event.Data, v); err != nil {
		log.Printf("[Notifier] Failed to unmarshal %s event %s: %v", event.Type, event.ID, err)
		return fmt.Errorf("decode %s: %w", event.Type, err)
	}
	return nil
}

func formatAddress(a order.ShippingAddress) string {
	parts := make([]string, 0, 5)
	for _, p := range []string{a.Street, a.City, a.State, a.ZipCode, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
