package query

import (
	"context"
	"log"
	"sort"

	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/domain/user"
	"github.com/shopspring/decimal"
)

const (
	LowStockThreshold = 5
	RecentOrderCount  = 5

	uncategorized = "uncategorized"
)

type Handler struct {
	productSvc *product.Service
	orderSvc   *order.Service
	userSvc    *user.Service
}

func NewHandler(productSvc *product.Service, orderSvc *order.Service, userSvc *user.Service) *Handler {
	return &Handler{
		productSvc: productSvc,
		orderSvc:   orderSvc,
		userSvc:    userSvc,
	}
}

// Dashboard aggregates the admin overview. Cancelled orders count towards
// OrdersByStatus but not towards any revenue figure.
func (h *Handler) Dashboard(ctx context.Context) (*Dashboard, error) {
	products, err := h.productSvc.List(ctx, product.Filter{})
	if err != nil {
		return nil, err
	}
	orders, err := h.orderSvc.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	userCount, err := h.userSvc.Count(ctx)
	if err != nil {
		return nil, err
	}

	categories := make(map[string]string, len(products))
	for _, p := range products {
		categories[p.ID] = p.Category
	}

	d := &Dashboard{
		TotalRevenue:   decimal.Zero,
		TotalOrders:    len(orders),
		TotalUsers:     userCount,
		TotalProducts:  len(products),
		OrdersByStatus: make(map[order.Status]int),
		LowStock:       []LowStockProduct{},
		RecentOrders:   []RecentOrder{},
	}
	for _, s := range []order.Status{order.StatusPending, order.StatusProcessing, order.StatusShipped, order.StatusDelivered, order.StatusCancelled} {
		d.OrdersByStatus[s] = 0
	}

	months := make(map[string]*MonthlySales)
	byCategory := make(map[string]*CategorySales)
	for _, o := range orders {
		d.OrdersByStatus[o.OrderStatus]++
		if o.OrderStatus == order.StatusCancelled {
			continue
		}
		d.TotalRevenue = d.TotalRevenue.Add(o.TotalAmount)

		key := o.CreatedAt.UTC().Format("2006-01")
		m, ok := months[key]
		if !ok {
			m = &MonthlySales{Month: key, Revenue: decimal.Zero}
			months[key] = m
		}
		m.Revenue = m.Revenue.Add(o.TotalAmount)
		m.Orders++

		for _, item := range o.Items {
			category := categories[item.ProductID]
			if category == "" {
				category = uncategorized
			}
			c, ok := byCategory[category]
			if !ok {
				c = &CategorySales{Category: category, Revenue: decimal.Zero}
				byCategory[category] = c
			}
			c.Revenue = c.Revenue.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
			c.Units += item.Quantity
		}
	}

	d.SalesByMonth = make([]MonthlySales, 0, len(months))
	for _, m := range months {
		d.SalesByMonth = append(d.SalesByMonth, *m)
	}
	sort.Slice(d.SalesByMonth, func(i, j int) bool {
		return d.SalesByMonth[i].Month < d.SalesByMonth[j].Month
	})

	d.SalesByCategory = make([]CategorySales, 0, len(byCategory))
	for _, c := range byCategory {
		d.SalesByCategory = append(d.SalesByCategory, *c)
	}
	sort.Slice(d.SalesByCategory, func(i, j int) bool {
		a, b := d.SalesByCategory[i], d.SalesByCategory[j]
		if !a.Revenue.Equal(b.Revenue) {
			return a.Revenue.GreaterThan(b.Revenue)
		}
		return a.Category < b.Category
	})

	for _, p := range products {
		if p.Stock <= LowStockThreshold {
			d.LowStock = append(d.LowStock, LowStockProduct{ID: p.ID, Name: p.Name, Stock: p.Stock})
		}
	}
	sort.SliceStable(d.LowStock, func(i, j int) bool {
		return d.LowStock[i].Stock < d.LowStock[j].Stock
	})

	// ListAll is newest first
	for i, o := range orders {
		if i == RecentOrderCount {
			break
		}
		d.RecentOrders = append(d.RecentOrders, RecentOrder{
			ID:          o.ID,
			UserID:      o.UserID,
			TotalAmount: o.TotalAmount,
			OrderStatus: o.OrderStatus,
			CreatedAt:   o.CreatedAt,
		})
	}

	log.Printf("[Query] Dashboard built: %d orders, %d products, %d users", d.TotalOrders, d.TotalProducts, d.TotalUsers)
	return d, nil
}
