package command

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/domain/user"
)

var (
	ErrNotOrderOwner = errors.New("order belongs to another user")

	// ErrPartialCheckout means the order was written but a later step
	// failed. Nothing is rolled back.
	ErrPartialCheckout = errors.New("order placed but checkout did not complete")
)

// EventPublisher publishes domain events, e.g. kafka.Producer
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, data any) error
}

type Handler struct {
	productSvc *product.Service
	cartSvc    *cart.Service
	orderSvc   *order.Service
	userSvc    *user.Service
	publisher  EventPublisher
}

// NewHandler wires the checkout flow. publisher may be nil.
func NewHandler(
	productSvc *product.Service,
	cartSvc *cart.Service,
	orderSvc *order.Service,
	userSvc *user.Service,
	publisher EventPublisher,
) *Handler {
	return &Handler{
		productSvc: productSvc,
		cartSvc:    cartSvc,
		orderSvc:   orderSvc,
		userSvc:    userSvc,
		publisher:  publisher,
	}
}

// PlaceOrder runs checkout: validate stock, write the order, decrement
// stock, clear the cart. Any failure before the order is written leaves
// every record untouched.
func (h *Handler) PlaceOrder(ctx context.Context, cmd PlaceOrder) (*order.Order, error) {
	items, err := h.validateStock(ctx, cmd.Items)
	if err != nil {
		return nil, err
	}

	o, err := h.orderSvc.Create(ctx, cmd.UserID, items, cmd.ShippingAddress, cmd.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if !cmd.TotalAmount.IsZero() && !cmd.TotalAmount.Equal(o.TotalAmount) {
		log.Printf("[Checkout] order %s: client total %s differs from computed %s", o.ID, cmd.TotalAmount, o.TotalAmount)
	}

	for _, item := range o.Items {
		if _, err := h.productSvc.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			log.Printf("[Checkout] order %s written but stock decrement failed for product %s: %v", o.ID, item.ProductID, err)
			return nil, fmt.Errorf("%w: order %s: decrement stock for %s: %v", ErrPartialCheckout, o.ID, item.ProductID, err)
		}
	}

	if err := h.cartSvc.Clear(ctx, cmd.UserID); err != nil {
		log.Printf("[Checkout] order %s placed but cart of user %s was not cleared: %v", o.ID, cmd.UserID, err)
		return nil, fmt.Errorf("%w: order %s: clear cart: %v", ErrPartialCheckout, o.ID, err)
	}

	log.Printf("[Checkout] order %s placed by user %s, total %s", o.ID, o.UserID, o.TotalAmount.StringFixed(2))

	event := order.OrderPlaced{
		OrderID:         o.ID,
		UserID:          o.UserID,
		Items:           o.Items,
		TotalAmount:     o.TotalAmount,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		PlacedAt:        o.CreatedAt,
	}
	event.Email, event.CustomerName = h.contact(ctx, o.UserID)
	h.publish(ctx, order.EventOrderPlaced, o.ID, event)

	return o, nil
}

// validateStock checks every line against its product and captures the
// product's name, image and price. Quantities of lines for the same product
// are summed before comparing with stock. It has no side effects.
func (h *Handler) validateStock(ctx context.Context, lines []OrderLine) ([]order.Item, error) {
	if len(lines) == 0 {
		return nil, order.ErrEmptyOrder
	}

	wanted := make(map[string]int)
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, order.ErrInvalidQuantity
		}
		wanted[line.ProductID] += line.Quantity
	}

	checked := make(map[string]*product.Product, len(wanted))
	items := make([]order.Item, 0, len(lines))
	for _, line := range lines {
		p, ok := checked[line.ProductID]
		if !ok {
			var err error
			p, err = h.productSvc.CheckStock(ctx, line.ProductID, wanted[line.ProductID])
			if err != nil {
				return nil, err
			}
			checked[line.ProductID] = p
		}
		items = append(items, order.Item{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.MainImage(),
			Quantity:  line.Quantity,
			Price:     p.Price,
			Size:      line.Size,
			Color:     line.Color,
		})
	}
	return items, nil
}

// CancelOrder cancels a pending or processing order for its owner or an
// admin and puts the items back in stock
func (h *Handler) CancelOrder(ctx context.Context, cmd CancelOrder) (*order.Order, error) {
	current, err := h.orderSvc.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !cmd.IsAdmin && current.UserID != cmd.UserID {
		return nil, ErrNotOrderOwner
	}

	o, err := h.orderSvc.Cancel(ctx, cmd.OrderID, cmd.Reason)
	if err != nil {
		return nil, err
	}
	h.restoreStock(ctx, o)
	h.publishStatusChange(ctx, current.OrderStatus, o)
	return o, nil
}

// UpdateOrderStatus applies an admin status update. Cancelling this way also
// restores stock.
func (h *Handler) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatus) (*order.Order, error) {
	current, err := h.orderSvc.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	o, err := h.orderSvc.UpdateStatus(ctx, cmd.OrderID, cmd.Update)
	if err != nil {
		return nil, err
	}
	if current.OrderStatus != order.StatusCancelled && o.OrderStatus == order.StatusCancelled {
		h.restoreStock(ctx, o)
	}
	h.publishStatusChange(ctx, current.OrderStatus, o)
	return o, nil
}

func (h *Handler) restoreStock(ctx context.Context, o *order.Order) {
	for _, item := range o.Items {
		if _, err := h.productSvc.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
			// a deleted product has nowhere to go back to
			log.Printf("[Checkout] order %s: could not restore %d of product %s: %v", o.ID, item.Quantity, item.ProductID, err)
		}
	}
}

func (h *Handler) publishStatusChange(ctx context.Context, from order.Status, o *order.Order) {
	event := order.OrderStatusChanged{
		OrderID:       o.ID,
		UserID:        o.UserID,
		From:          from,
		To:            o.OrderStatus,
		PaymentStatus: o.PaymentStatus,
		DeliveryInfo:  o.DeliveryInfo,
		Reason:        o.CancelReason,
		ChangedAt:     time.Now().UTC(),
	}
	event.Email, event.CustomerName = h.contact(ctx, o.UserID)
	h.publish(ctx, order.EventOrderStatusChanged, o.ID, event)
}

func (h *Handler) contact(ctx context.Context, userID string) (string, string) {
	if h.userSvc == nil {
		return "", ""
	}
	u, err := h.userSvc.Get(ctx, userID)
	if err != nil {
		log.Printf("[Checkout] could not load user %s for notification: %v", userID, err)
		return "", ""
	}
	return u.Email, u.Name
}

func (h *Handler) publish(ctx context.Context, eventType, key string, data any) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(ctx, eventType, key, data); err != nil {
		log.Printf("[Checkout] failed to publish %s for %s: %v", eventType, key, err)
	}
}
