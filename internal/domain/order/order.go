package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentCreditCard     PaymentMethod = "credit_card"
	PaymentPayPal         PaymentMethod = "paypal"
	PaymentBankTransfer   PaymentMethod = "bank_transfer"
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrEmptyOrder           = errors.New("order must have at least one item")
	ErrInvalidQuantity      = errors.New("quantity must be at least 1")
	ErrInvalidAddress       = errors.New("invalid shipping address")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidPaymentStatus = errors.New("invalid payment status")
	ErrInvalidStatus        = errors.New("invalid order status transition")
	ErrOrderCancelled       = errors.New("order is already cancelled")
	ErrOrderDelivered       = errors.New("order is already delivered")
	ErrOrderShipped         = errors.New("cannot cancel shipped order")
)

// validTransitions defines allowed order status transitions
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {}, // terminal state
	StatusCancelled:  {}, // terminal state
}

var paymentMethods = map[PaymentMethod]bool{
	PaymentCreditCard:     true,
	PaymentPayPal:         true,
	PaymentBankTransfer:   true,
	PaymentCashOnDelivery: true,
}

var paymentStatuses = map[PaymentStatus]bool{
	PaymentPending:   true,
	PaymentCompleted: true,
	PaymentFailed:    true,
	PaymentRefunded:  true,
}

// Item is a point-in-time copy of a purchased product variant
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Size      string          `json:"size"`
	Color     string          `json:"color"`
}

type ShippingAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
}

func (a ShippingAddress) validate() error {
	fields := []struct{ name, value string }{
		{"street", a.Street},
		{"city", a.City},
		{"state", a.State},
		{"zip_code", a.ZipCode},
		{"country", a.Country},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidAddress, f.name)
		}
	}
	return nil
}

type DeliveryInfo struct {
	Carrier           string     `json:"carrier,omitempty"`
	TrackingNumber    string     `json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
}

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Items           []Item          `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	OrderStatus     Status          `json:"order_status"`
	DeliveryInfo    DeliveryInfo    `json:"delivery_info"`
	CancelReason    string          `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	for _, s := range validTransitions[o.OrderStatus] {
		if s == target {
			return true
		}
	}
	return false
}

// transitionError returns an appropriate error for an invalid transition
func (o *Order) transitionError(target Status) error {
	switch {
	case o.OrderStatus == StatusCancelled:
		return ErrOrderCancelled
	case o.OrderStatus == StatusDelivered:
		return ErrOrderDelivered
	case o.OrderStatus == StatusShipped && target == StatusCancelled:
		return ErrOrderShipped
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.OrderStatus, target)
	}
}

// Total sums price × quantity over the items
func Total(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// StatusUpdate is an admin partial update; nil fields are left alone
type StatusUpdate struct {
	OrderStatus   *Status        `json:"order_status"`
	PaymentStatus *PaymentStatus `json:"payment_status"`
	DeliveryInfo  *DeliveryInfo  `json:"delivery_info"`
}

type Service struct {
	store store.DocumentStore
}

func NewService(s store.DocumentStore) *Service {
	return &Service{store: s}
}

// Create persists a new pending order. The items are copied, so later
// changes to the caller's slice or to products never reach the order.
func (s *Service) Create(ctx context.Context, userID string, items []Item, addr ShippingAddress, method PaymentMethod) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, ErrInvalidQuantity
		}
	}
	if err := addr.validate(); err != nil {
		return nil, err
	}
	if !paymentMethods[method] {
		return nil, ErrInvalidPaymentMethod
	}

	snapshot := make([]Item, len(items))
	copy(snapshot, items)

	now := time.Now().UTC()
	o := &Order{
		ID:              uuid.New().String(),
		UserID:          userID,
		Items:           snapshot,
		TotalAmount:     Total(snapshot),
		ShippingAddress: addr,
		PaymentMethod:   method,
		PaymentStatus:   PaymentPending,
		OrderStatus:     StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Insert(ctx, store.Orders, o.ID, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := store.GetAs[Order](ctx, s.store, store.Orders, id)
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Order, error) {
	orders, err := store.FindAs[Order](ctx, s.store, store.Orders, "user_id", userID)
	if err != nil {
		return nil, err
	}
	return newestFirst(orders), nil
}

func (s *Service) ListAll(ctx context.Context) ([]*Order, error) {
	orders, err := store.ListAs[Order](ctx, s.store, store.Orders)
	if err != nil {
		return nil, err
	}
	return newestFirst(orders), nil
}

// UpdateStatus applies an admin status update. Order status changes must
// follow validTransitions; delivering an order stamps delivered_at.
func (s *Service) UpdateStatus(ctx context.Context, id string, upd StatusUpdate) (*Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.PaymentStatus != nil && !paymentStatuses[*upd.PaymentStatus] {
		return nil, ErrInvalidPaymentStatus
	}
	if upd.OrderStatus != nil && *upd.OrderStatus != o.OrderStatus {
		if !o.CanTransitionTo(*upd.OrderStatus) {
			return nil, o.transitionError(*upd.OrderStatus)
		}
		o.OrderStatus = *upd.OrderStatus
	}
	if upd.PaymentStatus != nil {
		o.PaymentStatus = *upd.PaymentStatus
	}
	if upd.DeliveryInfo != nil {
		deliveredAt := o.DeliveryInfo.DeliveredAt
		o.DeliveryInfo = *upd.DeliveryInfo
		if o.DeliveryInfo.DeliveredAt == nil {
			o.DeliveryInfo.DeliveredAt = deliveredAt
		}
	}

	now := time.Now().UTC()
	if o.OrderStatus == StatusDelivered && o.DeliveryInfo.DeliveredAt == nil {
		o.DeliveryInfo.DeliveredAt = &now
	}
	o.UpdatedAt = now

	if err := s.store.Replace(ctx, store.Orders, id, o); err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

// Cancel moves a pending or processing order to cancelled. A completed
// payment is marked refunded.
func (s *Service) Cancel(ctx context.Context, id, reason string) (*Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.CanTransitionTo(StatusCancelled) {
		return nil, o.transitionError(StatusCancelled)
	}

	o.OrderStatus = StatusCancelled
	o.CancelReason = reason
	if o.PaymentStatus == PaymentCompleted {
		o.PaymentStatus = PaymentRefunded
	}
	o.UpdatedAt = time.Now().UTC()

	if err := s.store.Replace(ctx, store.Orders, id, o); err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return notFound(s.store.Delete(ctx, store.Orders, id))
}

func newestFirst(orders []*Order) []*Order {
	for i, j := 0, len(orders)-1; i < j; i, j = i+1, j-1 {
		orders[i], orders[j] = orders[j], orders[i]
	}
	return orders
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrOrderNotFound
	}
	return err
}
