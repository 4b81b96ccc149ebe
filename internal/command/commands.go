package command

import (
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/shopspring/decimal"
)

// OrderLine is one requested line item. Price is what the client saw; the
// order is priced from the product record.
type OrderLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Size      string          `json:"size"`
	Color     string          `json:"color"`
}

// Order Commands
type PlaceOrder struct {
	UserID          string                `json:"user_id"`
	Items           []OrderLine           `json:"items"`
	TotalAmount     decimal.Decimal       `json:"total_amount"`
	ShippingAddress order.ShippingAddress `json:"shipping_address"`
	PaymentMethod   order.PaymentMethod   `json:"payment_method"`
}

type CancelOrder struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	IsAdmin bool   `json:"is_admin"`
	Reason  string `json:"reason"`
}

type UpdateOrderStatus struct {
	OrderID string             `json:"order_id"`
	Update  order.StatusUpdate `json:"update"`
}
