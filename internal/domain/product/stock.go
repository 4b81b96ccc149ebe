package product

import (
	"context"
	"errors"

	"github.com/example/ec-storefront/internal/infrastructure/store"
)

const stockField = "stock"

// CheckStock loads the product and confirms qty units are on hand.
// It has no side effects.
func (s *Service) CheckStock(ctx context.Context, id string, qty int) (*Product, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Stock < qty {
		return nil, &StockError{ProductID: p.ID, Name: p.Name, Requested: qty, Available: p.Stock}
	}
	return p, nil
}

// DecrementStock removes qty units in one guarded update. If fewer than
// qty remain the stock is left as is and a *StockError is returned.
func (s *Service) DecrementStock(ctx context.Context, id string, qty int) (int, error) {
	if qty < 1 {
		return 0, ErrInvalidQuantity
	}
	next, err := s.store.IncrementField(ctx, store.Products, id, stockField, -qty, 0)
	if err == nil {
		return next, nil
	}
	if !errors.Is(err, store.ErrConditionFailed) {
		return 0, notFound(err)
	}

	stockErr := &StockError{ProductID: id, Requested: qty}
	if p, getErr := s.Get(ctx, id); getErr == nil {
		stockErr.Name = p.Name
		stockErr.Available = p.Stock
	}
	return 0, stockErr
}

// RestoreStock puts qty units back, e.g. when an order is cancelled
func (s *Service) RestoreStock(ctx context.Context, id string, qty int) (int, error) {
	if qty < 1 {
		return 0, ErrInvalidQuantity
	}
	next, err := s.store.IncrementField(ctx, store.Products, id, stockField, qty, 0)
	if err != nil {
		return 0, notFound(err)
	}
	return next, nil
}
