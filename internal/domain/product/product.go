package product

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

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInvalidPrice      = errors.New("price must be positive")
	ErrInvalidName       = errors.New("name is required")
	ErrInvalidStock      = errors.New("stock cannot be negative")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrInvalidRating     = errors.New("rating must be between 1 and 5")
	ErrAlreadyReviewed   = errors.New("product already reviewed by this user")
	ErrReviewNotFound    = errors.New("review not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// StockError reports a line item that asks for more than is on hand.
// It matches ErrInsufficientStock.
type StockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d", e.Name, e.Requested, e.Available)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type Rating struct {
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Rating    int       `json:"rating"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Category      string          `json:"category"`
	Stock         int             `json:"stock"`
	Images        []string        `json:"images"`
	Sizes         []string        `json:"sizes"`
	Colors        []string        `json:"colors"`
	Ratings       []Rating        `json:"ratings"`
	AverageRating float64         `json:"average_rating"`
	NumReviews    int             `json:"num_reviews"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int             `json:"version"`
}

// VersionRef exposes the version counter bumped by every stored write,
// stock moves included
func (p *Product) VersionRef() *int { return &p.Version }

// MainImage is the first image, or "" when there is none
func (p *Product) MainImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

type CreateInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
	Images      []string        `json:"images"`
	Sizes       []string        `json:"sizes"`
	Colors      []string        `json:"colors"`
}

// UpdateInput is a partial update: only non-nil fields are applied
type UpdateInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Category    *string          `json:"category"`
	Stock       *int             `json:"stock"`
	Images      *[]string        `json:"images"`
	Sizes       *[]string        `json:"sizes"`
	Colors      *[]string        `json:"colors"`
}

type Filter struct {
	Category string
	Search   string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	InStock  bool
}

func (f Filter) matches(p *Product) bool {
	if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.Description), q) {
			return false
		}
	}
	if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.InStock && p.Stock <= 0 {
		return false
	}
	return true
}

type Service struct {
	store store.DocumentStore
}

func NewService(s store.DocumentStore) *Service {
	return &Service{store: s}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Product, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, ErrInvalidName
	}
	if !in.Price.IsPositive() {
		return nil, ErrInvalidPrice
	}
	if in.Stock < 0 {
		return nil, ErrInvalidStock
	}

	now := time.Now().UTC()
	p := &Product{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		Stock:       in.Stock,
		Images:      nonNil(in.Images),
		Sizes:       nonNil(in.Sizes),
		Colors:      nonNil(in.Colors),
		Ratings:     []Rating{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Insert(ctx, store.Products, p.ID, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	p, err := store.GetAs[Product](ctx, s.store, store.Products, id)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Product, error) {
	all, err := store.ListAs[Product](ctx, s.store, store.Products)
	if err != nil {
		return nil, err
	}
	out := make([]*Product, 0, len(all))
	for _, p := range all {
		if f.matches(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Update applies the set fields of in. Concurrent stock moves are never
// overwritten: the edit is reapplied to the latest copy instead.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Product, error) {
	return s.update(ctx, id, func(p *Product) error {
		if in.Name != nil {
			if strings.TrimSpace(*in.Name) == "" {
				return ErrInvalidName
			}
			p.Name = strings.TrimSpace(*in.Name)
		}
		if in.Description != nil {
			p.Description = *in.Description
		}
		if in.Price != nil {
			if !in.Price.IsPositive() {
				return ErrInvalidPrice
			}
			p.Price = *in.Price
		}
		if in.Category != nil {
			p.Category = *in.Category
		}
		if in.Stock != nil {
			if *in.Stock < 0 {
				return ErrInvalidStock
			}
			p.Stock = *in.Stock
		}
		if in.Images != nil {
			p.Images = nonNil(*in.Images)
		}
		if in.Sizes != nil {
			p.Sizes = nonNil(*in.Sizes)
		}
		if in.Colors != nil {
			p.Colors = nonNil(*in.Colors)
		}
		p.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return notFound(s.store.Delete(ctx, store.Products, id))
}

// AddReview records one rating per user and refreshes the aggregates
func (s *Service) AddReview(ctx context.Context, id, userID, userName string, rating int, text string) (*Product, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	return s.update(ctx, id, func(p *Product) error {
		for _, r := range p.Ratings {
			if r.UserID == userID {
				return ErrAlreadyReviewed
			}
		}
		p.Ratings = append(p.Ratings, Rating{
			UserID:    userID,
			UserName:  userName,
			Rating:    rating,
			Text:      text,
			CreatedAt: time.Now().UTC(),
		})
		p.refreshRatings()
		return nil
	})
}

func (s *Service) DeleteReview(ctx context.Context, id, userID string) (*Product, error) {
	return s.update(ctx, id, func(p *Product) error {
		kept := make([]Rating, 0, len(p.Ratings))
		for _, r := range p.Ratings {
			if r.UserID != userID {
				kept = append(kept, r)
			}
		}
		if len(kept) == len(p.Ratings) {
			return ErrReviewNotFound
		}
		p.Ratings = kept
		p.refreshRatings()
		return nil
	})
}

func (s *Service) update(ctx context.Context, id string, mutate func(*Product) error) (*Product, error) {
	p, err := store.Update(ctx, s.store, store.Products, id, mutate)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (p *Product) refreshRatings() {
	p.NumReviews = len(p.Ratings)
	p.AverageRating = 0
	if p.NumReviews > 0 {
		sum := 0
		for _, r := range p.Ratings {
			sum += r.Rating
		}
		p.AverageRating = float64(sum) / float64(p.NumReviews)
	}
	p.UpdatedAt = time.Now().UTC()
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrProductNotFound
	}
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
