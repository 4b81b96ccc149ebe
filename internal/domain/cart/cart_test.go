package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/infrastructure/store/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCartService() (*Service, *product.Service, *mocks.MockDocumentStore) {
	docs := mocks.NewMockDocumentStore()
	products := product.NewService(docs)
	return NewService(docs, products), products, docs
}

func seedProduct(t *testing.T, products *product.Service, price string, stock int) *product.Product {
	t.Helper()
	p, err := products.Create(context.Background(), product.CreateInput{
		Name:   "Tee",
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Images: []string{"/img/tee.png"},
	})
	require.NoError(t, err)
	return p
}

// ============================================
// Get Tests
// ============================================

func TestService_Get_CreatesLazily(t *testing.T) {
	service, _, docs := newTestCartService()
	ctx := context.Background()

	c, err := service.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, GetCartID("user-1"), c.ID)
	assert.Empty(t, c.Items)
	assert.True(t, c.TotalAmount.IsZero())
	assert.Len(t, docs.CallsFor(mocks.OpInsert), 1)

	_, err = service.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, docs.CallsFor(mocks.OpInsert), 1, "second access reuses the cart")
}

// ============================================
// AddItem Tests
// ============================================

func TestService_AddItem_CapturesProduct(t *testing.T) {
	service, products, _ := newTestCartService()
	p := seedProduct(t, products, "12.50", 10)

	c, err := service.AddItem(context.Background(), "user-1", AddItemInput{ProductID: p.ID, Quantity: 2, Size: "M"})

	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.NotEmpty(t, c.Items[0].ID)
	assert.Equal(t, "Tee", c.Items[0].Name)
	assert.Equal(t, "/img/tee.png", c.Items[0].Image)
	assert.Equal(t, "25.00", c.TotalAmount.StringFixed(2))
}

func TestService_AddItem_MergesSameVariant(t *testing.T) {
	service, products, _ := newTestCartService()
	ctx := context.Background()
	p := seedProduct(t, products, "10.00", 5)

	_, err := service.AddItem(ctx, "user-1", AddItemInput{ProductID: p.ID, Quantity: 2, Size: "M", Color: "red"})
	require.NoError(t, err)
	c, err := service.AddItem(ctx, "user-1", AddItemInput{ProductID: p.ID, Quantity: 3, Size: "M", Color: "red"})
	require.NoError(t, err)

	require.Len(t, c.Items, 1)
	assert.Equal(t, 5, c.Items[0].Quantity)
	assert.Equal(t, "50.00", c.TotalAmount.StringFixed(2))
}

func TestService_AddItem_DifferentVariantIsNewLine(t *testing.T) {
	service, products, _ := newTestCartService()
	ctx := context.Background()
	p := seedProduct(t, products, "10.00", 5)

	_, err := service.AddItem(ctx, "user-1", AddItemInput{ProductID: p.ID, Quantity: 1, Size: "M"})
	require.NoError(t, err)
	c, err := service.AddItem(ctx, "user-1", AddItemInput{ProductID: p.ID, Quantity: 1, Size: "L"})
	require.NoError(t, err)

	assert.Len(t, c.Items, 2)
}

func TestService_AddItem_MergedQuantityExceedsStock(t *testing.T) {
	service, products, _ := newTestCartService()
	ctx := context.Background()
	p := seedProduct(t, products, "10.00", 4)

	_, err := service.AddItem(ctx, "user-1", AddItemInput{ProductID: p.ID, Quantity: 3})
	require.NoError(t, err)
	_, err = service.AddItem(ctx, "user-1", AddItemInput{ProductID: p.ID, Quantity: 2})

	var stockErr *product.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 5, stockErr.Requested)
	assert.Equal(t, 4, stockErr.Available)

	c, err := service.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, c.Items[0].Quantity)
}

func TestService_AddItem_CountsOtherVariantsAgainstStock(t *testing.T) {
	service, products, _ := newTestCartService()
	ctx := context.Background()
	p := seedProduct(t, products, "10.00", 4)

	_, err := service.AddItem(ctx, "user-1", AddItemInput{ProductID: p.ID, Quantity: 3, Size: "S"})
	require.NoError(t, err)
	_, err = service.AddItem(ctx, "user-1", AddItemInput{ProductID: p.ID, Quantity: 3, Size: "M"})

	var stockErr *product.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, 4, stockErr.Available)

	c, err := service.AddItem(ctx, "user-1", AddItemInput{ProductID: p.ID, Quantity: 1, Size: "M"})
	require.NoError(t, err)
	assert.Len(t, c.Items, 2)
}

func TestService_AddItem_ConcurrentAddsAllKept(t *testing.T) {
	service, products, _ := newTestCartService()
	ctx := context.Background()
	_, err := service.Get(ctx, "user-1")
	require.NoError(t, err)

	ids := make([]string, 4)
	for i := range ids {
		ids[i] = seedProduct(t, products, "10.00", 5).ID
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = service.AddItem(ctx, "user-1", AddItemInput{ProductID: id, Quantity: 1})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	c, err := service.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, c.Items, len(ids), "no add overwrote another")
	assert.Equal(t, "40.00", c.TotalAmount.StringFixed(2))
}

func TestService_AddItem_Validation(t *testing.T) {
	service, products, _ := newTestCartService()
	ctx := context.Background()
	p := seedProduct(t, products, "10.00", 4)

	_, err := service.AddItem(ctx, "user-1", AddItemInput{ProductID: p.ID, Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = service.AddItem(ctx, "user-1", AddItemInput{Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidProduct)

	_, err = service.AddItem(ctx, "user-1", AddItemInput{ProductID: "missing", Quantity: 1})
	assert.ErrorIs(t, err, product.ErrProductNotFound)
}

// ============================================
// UpdateItem / RemoveItem Tests
// ============================================

func TestService_UpdateItem(t *testing.T) {
	service, products, _ := newTestCartService()
	ctx := context.Background()
	p := seedProduct(t, products, "10.00", 4)
	c, err := service.AddItem(ctx, "user-1", AddItemInput{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	itemID := c.Items[0].ID

	c, err = service.UpdateItem(ctx, "user-1", itemID, 4)
	require.NoError(t, err)
	assert.Equal(t, "40.00", c.TotalAmount.StringFixed(2))

	_, err = service.UpdateItem(ctx, "user-1", itemID, 5)
	assert.ErrorIs(t, err, product.ErrInsufficientStock)

	_, err = service.UpdateItem(ctx, "user-1", itemID, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = service.UpdateItem(ctx, "user-1", "nope", 1)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestService_UpdateItem_CountsOtherVariantsAgainstStock(t *testing.T) {
	service, products, _ := newTestCartService()
	ctx := context.Background()
	p := seedProduct(t, products, "10.00", 4)
	_, err := service.AddItem(ctx, "user-1", AddItemInput{ProductID: p.ID, Quantity: 3, Size: "S"})
	require.NoError(t, err)
	c, err := service.AddItem(ctx, "user-1", AddItemInput{ProductID: p.ID, Quantity: 1, Size: "M"})
	require.NoError(t, err)
	medium := c.Items[1].ID

	_, err = service.UpdateItem(ctx, "user-1", medium, 3)
	var stockErr *product.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 6, stockErr.Requested)

	// the line being changed is not counted twice
	c, err = service.UpdateItem(ctx, "user-1", medium, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Items[1].Quantity)
}

func TestService_RemoveItem(t *testing.T) {
	service, products, _ := newTestCartService()
	ctx := context.Background()
	p := seedProduct(t, products, "10.00", 4)
	c, err := service.AddItem(ctx, "user-1", AddItemInput{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)

	c, err = service.RemoveItem(ctx, "user-1", c.Items[0].ID)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.True(t, c.TotalAmount.IsZero())

	_, err = service.RemoveItem(ctx, "user-1", "nope")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

// ============================================
// Clear Tests
// ============================================

func TestService_Clear_Idempotent(t *testing.T) {
	service, products, docs := newTestCartService()
	ctx := context.Background()
	p := seedProduct(t, products, "10.00", 4)
	_, err := service.AddItem(ctx, "user-1", AddItemInput{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	require.NoError(t, service.Clear(ctx, "user-1"))
	docs.Reset()
	require.NoError(t, service.Clear(ctx, "user-1"))

	c, err := service.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.True(t, c.TotalAmount.IsZero())
	assert.Empty(t, docs.CallsFor(mocks.OpReplaceIf), "clearing an empty cart writes nothing")
}
