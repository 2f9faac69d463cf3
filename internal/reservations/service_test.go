package reservations_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/customers"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/reservations"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/testing/memstore"
)

func newFixture(t *testing.T, stock int) (*memstore.Store, *reservations.Service, inventory.Product, customers.Customer) {
	t.Helper()
	store := memstore.New()
	product := store.AddProduct(inventory.Product{
		Code:      "P-00001",
		Name:      "Arroz 5kg",
		SalePrice: decimal.RequireFromString("22.50"),
		Stock:     stock,
		MinStock:  inventory.DefaultMinStock,
		IsActive:  true,
	})
	customer := store.AddCustomer(customers.Customer{Name: "Ana Torres", IsActive: true})
	svc := reservations.NewService(store.Reservations(), nil, store, nil, 0)
	return store, svc, product, customer
}

func intPtr(v int) *int { return &v }

func TestReserveHoldsStock(t *testing.T) {
	store, svc, product, customer := newFixture(t, 10)

	r, err := svc.Reserve(context.Background(), reservations.ReserveInput{
		ProductID: product.ID, CustomerID: &customer.ID, Quantity: 4, ActorID: 7,
	})
	require.NoError(t, err)
	require.Equal(t, reservations.StatusReserved, r.Status)

	p := store.Product(product.ID)
	require.Equal(t, 10, p.Stock)
	require.Equal(t, 4, p.ReservedStock)
	require.Equal(t, 6, p.AvailableStock())
	require.Empty(t, store.Movements(product.ID))

	audits := store.Audits()
	require.Len(t, audits, 1)
	require.Equal(t, "reservations:create", audits[0].Action)
}

func TestReserveRejectsMoreThanAvailable(t *testing.T) {
	store, svc, product, _ := newFixture(t, 5)
	_, err := svc.Reserve(context.Background(), reservations.ReserveInput{ProductID: product.ID, Quantity: 3})
	require.NoError(t, err)

	_, err = svc.Reserve(context.Background(), reservations.ReserveInput{ProductID: product.ID, Quantity: 3})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	insufficient, ok := inventory.IsInsufficientStock(err)
	require.True(t, ok)
	require.Equal(t, 2, insufficient.Allowed)
	require.Equal(t, 3, store.Product(product.ID).ReservedStock)
}

func TestReserveValidatesInput(t *testing.T) {
	_, svc, product, _ := newFixture(t, 5)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, reservations.ReserveInput{ProductID: product.ID, Quantity: 0})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)

	past := time.Now().Add(-time.Minute)
	_, err = svc.Reserve(ctx, reservations.ReserveInput{ProductID: product.ID, Quantity: 1, ExpiresAt: &past})
	require.ErrorIs(t, err, reservations.ErrExpiryInPast)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Reserve(ctx, reservations.ReserveInput{ProductID: 999, Quantity: 1})
	require.ErrorIs(t, err, inventory.ErrProductNotFound)
}

func TestReserveAppliesDefaultTTL(t *testing.T) {
	store := memstore.New()
	product := store.AddProduct(inventory.Product{Code: "P-00001", Name: "Leche", Stock: 3, IsActive: true})
	svc := reservations.NewService(store.Reservations(), nil, nil, nil, 48*time.Hour)

	r, err := svc.Reserve(context.Background(), reservations.ReserveInput{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)
	require.NotNil(t, r.ExpiresAt)
	require.WithinDuration(t, time.Now().Add(48*time.Hour), *r.ExpiresAt, time.Minute)
}

func TestCancelReleasesHoldAndDeleteIsNoop(t *testing.T) {
	store, svc, product, customer := newFixture(t, 10)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, reservations.ReserveInput{ProductID: product.ID, CustomerID: &customer.ID, Quantity: 5})
	require.NoError(t, err)
	require.Equal(t, 5, store.Product(product.ID).ReservedStock)

	canceled, err := svc.Cancel(ctx, r.ID, 1)
	require.NoError(t, err)
	require.Equal(t, reservations.StatusCanceled, canceled.Status)
	require.Equal(t, 0, store.Product(product.ID).ReservedStock)

	_, err = svc.Cancel(ctx, r.ID, 1)
	require.ErrorIs(t, err, reservations.ErrInvalidState)

	require.NoError(t, svc.Delete(ctx, r.ID, 1))
	require.Equal(t, 0, store.Product(product.ID).ReservedStock)
	require.Equal(t, 10, store.Product(product.ID).Stock)

	_, err = svc.Get(ctx, r.ID)
	require.ErrorIs(t, err, reservations.ErrNotFound)
}

func TestDeleteActiveReservationReleasesHold(t *testing.T) {
	store, svc, product, _ := newFixture(t, 10)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, reservations.ReserveInput{ProductID: product.ID, Quantity: 6})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, r.ID, 1))
	require.Equal(t, 0, store.Product(product.ID).ReservedStock)
}

func TestUpdateReconcilesByContribution(t *testing.T) {
	store, svc, product, _ := newFixture(t, 10)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, reservations.ReserveInput{ProductID: product.ID, Quantity: 4})
	require.NoError(t, err)

	_, err = svc.Update(ctx, r.ID, reservations.UpdateInput{Quantity: intPtr(7)})
	require.NoError(t, err)
	require.Equal(t, 7, store.Product(product.ID).ReservedStock)

	_, err = svc.Update(ctx, r.ID, reservations.UpdateInput{Quantity: intPtr(11)})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.Equal(t, 7, store.Product(product.ID).ReservedStock)

	_, err = svc.Update(ctx, r.ID, reservations.UpdateInput{Quantity: intPtr(2)})
	require.NoError(t, err)
	require.Equal(t, 2, store.Product(product.ID).ReservedStock)

	fulfilled := reservations.StatusFulfilled
	done, err := svc.Update(ctx, r.ID, reservations.UpdateInput{Status: &fulfilled})
	require.NoError(t, err)
	require.Equal(t, 2, done.Quantity)
	require.Equal(t, 0, store.Product(product.ID).ReservedStock)

	_, err = svc.Update(ctx, r.ID, reservations.UpdateInput{})
	require.ErrorIs(t, err, shared.ErrValidation)

	bogus := reservations.Status("LOST")
	_, err = svc.Update(ctx, r.ID, reservations.UpdateInput{Status: &bogus})
	require.ErrorIs(t, err, reservations.ErrInvalidStatus)
}

func TestReservedStockMatchesActiveSum(t *testing.T) {
	store, svc, product, customer := newFixture(t, 30)
	ctx := context.Background()

	var ids []int64
	for _, qty := range []int{3, 5, 2, 6} {
		r, err := svc.Reserve(ctx, reservations.ReserveInput{ProductID: product.ID, CustomerID: &customer.ID, Quantity: qty})
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}
	_, err := svc.Cancel(ctx, ids[1], 1)
	require.NoError(t, err)
	_, err = svc.Update(ctx, ids[2], reservations.UpdateInput{Quantity: intPtr(4)})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, ids[3], 1))
	_, err = svc.Reserve(ctx, reservations.ReserveInput{ProductID: product.ID, Quantity: 30})
	require.Error(t, err)

	require.Equal(t, store.ReservedSum(product.ID), store.Product(product.ID).ReservedStock)
	require.Equal(t, 7, store.Product(product.ID).ReservedStock)

	active, err := svc.ListActive(ctx, &customer.ID)
	require.NoError(t, err)
	require.Len(t, active, 2)
}

func TestClampAtZeroIsCounted(t *testing.T) {
	store, _, product, _ := newFixture(t, 10)
	registry := prometheus.NewRegistry()
	manager := reservations.NewManager(nil, observability.NewLedgerMetrics(registry))
	svc := reservations.NewService(store.Reservations(), manager, nil, nil, 0)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, reservations.ReserveInput{ProductID: product.ID, Quantity: 4})
	require.NoError(t, err)
	store.SetReservedStock(product.ID, 1)

	_, err = svc.Cancel(ctx, r.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 0, store.Product(product.ID).ReservedStock)

	count, err := testutil.GatherAndCount(registry, "odyssey_reserved_stock_clamps_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestExpireDueCancelsOnlyExpired(t *testing.T) {
	store, svc, product, _ := newFixture(t, 10)
	ctx := context.Background()
	now := time.Now()

	soon := now.Add(time.Hour)
	later := now.Add(72 * time.Hour)
	expiring, err := svc.Reserve(ctx, reservations.ReserveInput{ProductID: product.ID, Quantity: 2, ExpiresAt: &soon})
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, reservations.ReserveInput{ProductID: product.ID, Quantity: 3, ExpiresAt: &later})
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, reservations.ReserveInput{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)

	n, err := svc.ExpireDue(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 4, store.Product(product.ID).ReservedStock)

	got, err := svc.Get(ctx, expiring.ID)
	require.NoError(t, err)
	require.Equal(t, reservations.StatusCanceled, got.Status)

	n, err = svc.ExpireDue(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestReserveRollsBackOnInsertFailure(t *testing.T) {
	store, svc, product, _ := newFixture(t, 10)
	store.FailNext("InsertReservation", errors.New("boom"))

	_, err := svc.Reserve(context.Background(), reservations.ReserveInput{ProductID: product.ID, Quantity: 2})
	require.Error(t, err)
	require.Zero(t, store.Product(product.ID).ReservedStock)
	require.Empty(t, store.AllReservations(product.ID))
}
