package order

import (
	"context"
	"testing"

	"github.com/example/ec-storefront/internal/infrastructure/store/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrderService() (*Service, *mocks.MockDocumentStore) {
	docs := mocks.NewMockDocumentStore()
	return NewService(docs), docs
}

func testAddress() ShippingAddress {
	return ShippingAddress{
		Street:  "1 Main St",
		City:    "Springfield",
		State:   "IL",
		ZipCode: "62701",
		Country: "US",
	}
}

func testItems() []Item {
	return []Item{
		{ProductID: "p-1", Name: "Tee", Quantity: 1, Price: decimal.RequireFromString("10.00")},
		{ProductID: "p-2", Name: "Cap", Quantity: 2, Price: decimal.RequireFromString("5.00")},
	}
}

func placeTestOrder(t *testing.T, s *Service) *Order {
	t.Helper()
	o, err := s.Create(context.Background(), "user-1", testItems(), testAddress(), PaymentCreditCard)
	require.NoError(t, err)
	return o
}

func statusPtr(s Status) *Status { return &s }

// ============================================
// Create Tests
// ============================================

func TestService_Create_Defaults(t *testing.T) {
	service, docs := newTestOrderService()

	o, err := service.Create(context.Background(), "user-1", testItems(), testAddress(), PaymentPayPal)

	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, StatusPending, o.OrderStatus)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, "20.00", o.TotalAmount.StringFixed(2))
	assert.Len(t, docs.CallsFor(mocks.OpInsert), 1)
}

func TestService_Create_ItemsAreCopied(t *testing.T) {
	service, _ := newTestOrderService()
	items := testItems()

	o, err := service.Create(context.Background(), "user-1", items, testAddress(), PaymentPayPal)
	require.NoError(t, err)
	items[0].Price = decimal.NewFromInt(999)

	stored, err := service.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.00", stored.Items[0].Price.StringFixed(2))
	assert.Equal(t, "10.00", o.Items[0].Price.StringFixed(2))
}

func TestService_Create_Validation(t *testing.T) {
	noCity := testAddress()
	noCity.City = ""

	tests := []struct {
		name   string
		items  []Item
		addr   ShippingAddress
		method PaymentMethod
		want   error
	}{
		{"no items", nil, testAddress(), PaymentPayPal, ErrEmptyOrder},
		{"zero quantity", []Item{{ProductID: "p-1", Quantity: 0}}, testAddress(), PaymentPayPal, ErrInvalidQuantity},
		{"missing city", testItems(), noCity, PaymentPayPal, ErrInvalidAddress},
		{"unknown payment", testItems(), testAddress(), PaymentMethod("bitcoin"), ErrInvalidPaymentMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, docs := newTestOrderService()

			o, err := service.Create(context.Background(), "user-1", tt.items, tt.addr, tt.method)

			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, o)
			assert.Empty(t, docs.CallsFor(mocks.OpInsert))
		})
	}
}

// ============================================
// Query Tests
// ============================================

func TestService_ListByUser(t *testing.T) {
	service, _ := newTestOrderService()
	ctx := context.Background()

	first := placeTestOrder(t, service)
	second := placeTestOrder(t, service)
	_, err := service.Create(ctx, "user-2", testItems(), testAddress(), PaymentPayPal)
	require.NoError(t, err)

	orders, err := service.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID, "newest first")
	assert.Equal(t, first.ID, orders[1].ID)

	all, err := service.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestService_Get_NotFound(t *testing.T) {
	service, _ := newTestOrderService()

	_, err := service.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrOrderNotFound)
}

// ============================================
// Status Transition Tests
// ============================================

func TestOrder_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusShipped, false},
		{StatusProcessing, StatusShipped, true},
		{StatusProcessing, StatusCancelled, true},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			o := &Order{OrderStatus: tt.from}
			assert.Equal(t, tt.want, o.CanTransitionTo(tt.to))
		})
	}
}

func TestService_UpdateStatus_FullLifecycle(t *testing.T) {
	service, _ := newTestOrderService()
	ctx := context.Background()
	o := placeTestOrder(t, service)

	paid := PaymentCompleted
	o, err := service.UpdateStatus(ctx, o.ID, StatusUpdate{OrderStatus: statusPtr(StatusProcessing), PaymentStatus: &paid})
	require.NoError(t, err)
	assert.Equal(t, PaymentCompleted, o.PaymentStatus)

	o, err = service.UpdateStatus(ctx, o.ID, StatusUpdate{
		OrderStatus:  statusPtr(StatusShipped),
		DeliveryInfo: &DeliveryInfo{Carrier: "UPS", TrackingNumber: "1Z999"},
	})
	require.NoError(t, err)
	assert.Nil(t, o.DeliveryInfo.DeliveredAt)

	o, err = service.UpdateStatus(ctx, o.ID, StatusUpdate{OrderStatus: statusPtr(StatusDelivered)})
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, o.OrderStatus)
	assert.Equal(t, "UPS", o.DeliveryInfo.Carrier)
	require.NotNil(t, o.DeliveryInfo.DeliveredAt)
}

func TestService_UpdateStatus_InvalidTransition(t *testing.T) {
	service, docs := newTestOrderService()
	ctx := context.Background()
	o := placeTestOrder(t, service)
	docs.Reset()

	_, err := service.UpdateStatus(ctx, o.ID, StatusUpdate{OrderStatus: statusPtr(StatusShipped)})

	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Empty(t, docs.CallsFor(mocks.OpReplace))
}

func TestService_UpdateStatus_InvalidPaymentStatus(t *testing.T) {
	service, _ := newTestOrderService()
	o := placeTestOrder(t, service)

	bogus := PaymentStatus("maybe")
	_, err := service.UpdateStatus(context.Background(), o.ID, StatusUpdate{PaymentStatus: &bogus})

	assert.ErrorIs(t, err, ErrInvalidPaymentStatus)
}

// ============================================
// Cancel / Delete Tests
// ============================================

func TestService_Cancel(t *testing.T) {
	service, _ := newTestOrderService()
	ctx := context.Background()
	o := placeTestOrder(t, service)
	paid := PaymentCompleted
	_, err := service.UpdateStatus(ctx, o.ID, StatusUpdate{PaymentStatus: &paid})
	require.NoError(t, err)

	cancelled, err := service.Cancel(ctx, o.ID, "changed my mind")

	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.OrderStatus)
	assert.Equal(t, PaymentRefunded, cancelled.PaymentStatus)
	assert.Equal(t, "changed my mind", cancelled.CancelReason)

	_, err = service.Cancel(ctx, o.ID, "again")
	assert.ErrorIs(t, err, ErrOrderCancelled)
}

func TestService_Cancel_ShippedOrder(t *testing.T) {
	service, _ := newTestOrderService()
	ctx := context.Background()
	o := placeTestOrder(t, service)
	_, err := service.UpdateStatus(ctx, o.ID, StatusUpdate{OrderStatus: statusPtr(StatusProcessing)})
	require.NoError(t, err)
	_, err = service.UpdateStatus(ctx, o.ID, StatusUpdate{OrderStatus: statusPtr(StatusShipped)})
	require.NoError(t, err)

	_, err = service.Cancel(ctx, o.ID, "too late")

	assert.ErrorIs(t, err, ErrOrderShipped)
}

func TestService_Delete(t *testing.T) {
	service, _ := newTestOrderService()
	ctx := context.Background()
	o := placeTestOrder(t, service)

	require.NoError(t, service.Delete(ctx, o.ID))
	assert.ErrorIs(t, service.Delete(ctx, o.ID), ErrOrderNotFound)
}
