package query

import (
	"time"

	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/shopspring/decimal"
)

type Dashboard struct {
	TotalRevenue    decimal.Decimal      `json:"total_revenue"`
	TotalOrders     int                  `json:"total_orders"`
	TotalUsers      int                  `json:"total_users"`
	TotalProducts   int                  `json:"total_products"`
	OrdersByStatus  map[order.Status]int `json:"orders_by_status"`
	SalesByMonth    []MonthlySales       `json:"sales_by_month"`
	SalesByCategory []CategorySales      `json:"sales_by_category"`
	LowStock        []LowStockProduct    `json:"low_stock"`
	RecentOrders    []RecentOrder        `json:"recent_orders"`
}

type MonthlySales struct {
	Month   string          `json:"month"` // YYYY-MM
	Revenue decimal.Decimal `json:"revenue"`
	Orders  int             `json:"orders"`
}

type CategorySales struct {
	Category string          `json:"category"`
	Revenue  decimal.Decimal `json:"revenue"`
	Units    int             `json:"units"`
}

type LowStockProduct struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Stock int    `json:"stock"`
}

type RecentOrder struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	OrderStatus order.Status    `json:"order_status"`
	CreatedAt   time.Time       `json:"created_at"`
}
