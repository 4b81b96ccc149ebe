package cart

import (
	"context"
	"errors"
	"time"

	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidProduct  = errors.New("product_id is required")
	ErrItemNotFound    = errors.New("cart item not found")
)

type Item struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Size      string          `json:"size"`
	Color     string          `json:"color"`
}

// LineTotal is price × quantity
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Cart struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Items       []Item          `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int             `json:"version"`
}

func (c *Cart) VersionRef() *int { return &c.Version }

func (c *Cart) recalculate() {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	c.TotalAmount = total
}

// quantityOf sums the lines for a product across sizes and colors, leaving
// out the line at skip
func (c *Cart) quantityOf(productID string, skip int) int {
	total := 0
	for i, item := range c.Items {
		if i != skip && item.ProductID == productID {
			total += item.Quantity
		}
	}
	return total
}

func (c *Cart) findItem(itemID string) int {
	for i, item := range c.Items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

type AddItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

type Service struct {
	store    store.DocumentStore
	products *product.Service
}

func NewService(s store.DocumentStore, products *product.Service) *Service {
	return &Service{store: s, products: products}
}

// GetCartID returns the cart ID for a user; each user owns exactly one cart
func GetCartID(userID string) string {
	return "cart-" + userID
}

// Get returns the user's cart, creating an empty one on first access
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	id := GetCartID(userID)
	c, err := store.GetAs[Cart](ctx, s.store, store.Carts, id)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	c = &Cart{
		ID:          id,
		UserID:      userID,
		Items:       []Item{},
		TotalAmount: decimal.Zero,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.store.Insert(ctx, store.Carts, id, c); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// created by a concurrent request
			return store.GetAs[Cart](ctx, s.store, store.Carts, id)
		}
		return nil, err
	}
	return c, nil
}

// AddItem adds a product variant to the cart. A line with the same product,
// size and color is merged. All lines of the product together must fit in
// stock.
func (s *Service) AddItem(ctx context.Context, userID string, in AddItemInput) (*Cart, error) {
	if in.ProductID == "" {
		return nil, ErrInvalidProduct
	}
	if in.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.Get(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}

	return s.update(ctx, userID, func(c *Cart) error {
		idx := -1
		for i, item := range c.Items {
			if item.ProductID == in.ProductID && item.Size == in.Size && item.Color == in.Color {
				idx = i
				break
			}
		}

		line := in.Quantity
		if idx >= 0 {
			line += c.Items[idx].Quantity
		}
		if wanted := c.quantityOf(p.ID, idx) + line; wanted > p.Stock {
			return &product.StockError{ProductID: p.ID, Name: p.Name, Requested: wanted, Available: p.Stock}
		}

		if idx >= 0 {
			c.Items[idx].Quantity = line
			c.Items[idx].Price = p.Price
			return nil
		}
		c.Items = append(c.Items, Item{
			ID:        uuid.New().String(),
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.MainImage(),
			Quantity:  in.Quantity,
			Price:     p.Price,
			Size:      in.Size,
			Color:     in.Color,
		})
		return nil
	})
}

func (s *Service) UpdateItem(ctx context.Context, userID, itemID string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	return s.update(ctx, userID, func(c *Cart) error {
		idx := c.findItem(itemID)
		if idx < 0 {
			return ErrItemNotFound
		}

		p, err := s.products.Get(ctx, c.Items[idx].ProductID)
		if err != nil {
			return err
		}
		if wanted := c.quantityOf(p.ID, idx) + quantity; wanted > p.Stock {
			return &product.StockError{ProductID: p.ID, Name: p.Name, Requested: wanted, Available: p.Stock}
		}

		c.Items[idx].Quantity = quantity
		c.Items[idx].Price = p.Price
		return nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) (*Cart, error) {
	return s.update(ctx, userID, func(c *Cart) error {
		idx := c.findItem(itemID)
		if idx < 0 {
			return ErrItemNotFound
		}
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
		return nil
	})
}

// Clear empties the cart. Clearing an empty cart is a no-op.
func (s *Service) Clear(ctx context.Context, userID string) error {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if len(c.Items) == 0 {
		return nil
	}
	_, err = s.update(ctx, userID, func(c *Cart) error {
		c.Items = []Item{}
		return nil
	})
	return err
}

// update applies mutate to the user's cart and saves it, starting over on
// the latest copy if another request saved in between
func (s *Service) update(ctx context.Context, userID string, mutate func(*Cart) error) (*Cart, error) {
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}
	return store.Update(ctx, s.store, store.Carts, GetCartID(userID), func(c *Cart) error {
		if err := mutate(c); err != nil {
			return err
		}
		c.recalculate()
		c.UpdatedAt = time.Now().UTC()
		return nil
	})
}
