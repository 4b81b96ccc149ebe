package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type OrderPlaced struct {
	OrderID         string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	Email           string          `json:"email"`
	CustomerName    string          `json:"customer_name"`
	Items           []Item          `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PlacedAt        time.Time       `json:"placed_at"`
}

type OrderStatusChanged struct {
	OrderID       string        `json:"order_id"`
	UserID        string        `json:"user_id"`
	Email         string        `json:"email"`
	CustomerName  string        `json:"customer_name"`
	From          Status        `json:"from"`
	To            Status        `json:"to"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	DeliveryInfo  DeliveryInfo  `json:"delivery_info"`
	Reason        string        `json:"reason,omitempty"`
	ChangedAt     time.Time     `json:"changed_at"`
}
