package sales_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/codes"
	"github.com/odyssey-erp/odyssey-pos/internal/customers"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/reservations"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/testing/memstore"
)

const sellerID = 3

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

type countingCache struct{ bumps int }

func (c *countingCache) Bump(context.Context) error {
	c.bumps++
	return nil
}

type fixture struct {
	store *memstore.Store
	svc   *sales.Service
	cache *countingCache
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memstore.New()
	cache := &countingCache{}
	svc := sales.NewService(store.Sales(), nil, nil, sales.Options{
		TaxRate:     dec("0.18"),
		Audit:       store,
		Idempotency: store,
		Cache:       cache,
	}, nil)
	return fixture{store: store, svc: svc, cache: cache}
}

func (f fixture) product(code string, stock int, price string) inventory.Product {
	return f.store.AddProduct(inventory.Product{
		Code:      code,
		Name:      "Producto " + code,
		SalePrice: dec(price),
		Stock:     stock,
		MinStock:  inventory.DefaultMinStock,
		IsActive:  true,
	})
}

func line(p inventory.Product, qty int) sales.LineInput {
	return sales.LineInput{ProductID: p.ID, Quantity: qty, UnitPrice: p.SalePrice}
}

func TestCreateSaleConsumesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product("P-000001", 10, "12.00")
	customer := f.store.AddCustomer(customers.Customer{Name: "Cliente X", IsActive: true})

	resSvc := reservations.NewService(f.store.Reservations(), nil, nil, nil, 0)
	hold, err := resSvc.Reserve(ctx, reservations.ReserveInput{ProductID: p.ID, CustomerID: &customer.ID, Quantity: 4})
	require.NoError(t, err)
	require.Equal(t, 6, f.store.Product(p.ID).AvailableStock())

	result, err := f.svc.CreateSale(ctx, sales.CreateSaleInput{
		CustomerID: &customer.ID,
		Items:      []sales.LineInput{line(p, 4)},
		SellerID:   sellerID,
	})
	require.NoError(t, err)
	require.True(t, codes.Valid(codes.KindSale, result.Sale.Code), result.Sale.Code)
	require.Equal(t, sales.PaymentCash, result.Sale.PaymentMethod)

	after := f.store.Product(p.ID)
	require.Equal(t, 6, after.Stock)
	require.Equal(t, 0, after.ReservedStock)

	got, err := resSvc.Get(ctx, hold.ID)
	require.NoError(t, err)
	require.Equal(t, reservations.StatusFulfilled, got.Status)
	require.Equal(t, 4, got.Quantity)

	movements := f.store.Movements(p.ID)
	require.Len(t, movements, 1)
	require.Equal(t, inventory.MovementSale, movements[0].Type)
	require.Equal(t, -4, movements[0].Quantity)
	require.Equal(t, 10, movements[0].PreviousStock)
	require.Equal(t, 6, movements[0].NewStock)
	require.Equal(t, result.Sale.ID, *movements[0].ReferenceID)
	require.Equal(t, int64(sellerID), movements[0].CreatedBy)
}

func TestCreateSalePartiallyConsumesOldestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product("P-000001", 20, "3.50")
	customer := f.store.AddCustomer(customers.Customer{Name: "Cliente Y", IsActive: true})
	resSvc := reservations.NewService(f.store.Reservations(), nil, nil, nil, 0)

	first, err := resSvc.Reserve(ctx, reservations.ReserveInput{ProductID: p.ID, CustomerID: &customer.ID, Quantity: 3})
	require.NoError(t, err)
	second, err := resSvc.Reserve(ctx, reservations.ReserveInput{ProductID: p.ID, CustomerID: &customer.ID, Quantity: 5})
	require.NoError(t, err)

	_, err = f.svc.CreateSale(ctx, sales.CreateSaleInput{
		CustomerID: &customer.ID,
		Items:      []sales.LineInput{line(p, 4)},
		SellerID:   sellerID,
	})
	require.NoError(t, err)

	gotFirst, _ := resSvc.Get(ctx, first.ID)
	gotSecond, _ := resSvc.Get(ctx, second.ID)
	require.Equal(t, reservations.StatusFulfilled, gotFirst.Status)
	require.Equal(t, reservations.StatusReserved, gotSecond.Status)
	require.Equal(t, 4, gotSecond.Quantity)

	after := f.store.Product(p.ID)
	require.Equal(t, 16, after.Stock)
	require.Equal(t, 4, after.ReservedStock)
	require.Equal(t, f.store.ReservedSum(p.ID), after.ReservedStock)
}

func TestCreateSaleCannotTakeOthersReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product("P-000001", 5, "1.00")
	holder := f.store.AddCustomer(customers.Customer{Name: "Holder", IsActive: true})
	resSvc := reservations.NewService(f.store.Reservations(), nil, nil, nil, 0)
	_, err := resSvc.Reserve(ctx, reservations.ReserveInput{ProductID: p.ID, CustomerID: &holder.ID, Quantity: 4})
	require.NoError(t, err)

	_, err = f.svc.CreateSale(ctx, sales.CreateSaleInput{Items: []sales.LineInput{line(p, 2)}, SellerID: sellerID})
	insufficient, ok := inventory.IsInsufficientStock(err)
	require.True(t, ok)
	require.Equal(t, 1, insufficient.Allowed)
	require.Equal(t, 5, f.store.Product(p.ID).Stock)
}

func TestCreateSaleRejectsInsufficientStock(t *testing.T) {
	f := newFixture(t)
	p := f.product("P-000001", 5, "2.00")

	_, err := f.svc.CreateSale(context.Background(), sales.CreateSaleInput{
		Items:    []sales.LineInput{line(p, 6)},
		SellerID: sellerID,
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, 5, f.store.Product(p.ID).Stock)
	require.Empty(t, f.store.Movements(p.ID))
	require.Zero(t, f.store.SaleCount())
	require.Zero(t, f.cache.bumps)
}

func TestCreateSaleRollsBackEarlierLines(t *testing.T) {
	f := newFixture(t)
	first := f.product("P-000001", 10, "2.00")
	second := f.product("P-000002", 1, "4.00")

	_, err := f.svc.CreateSale(context.Background(), sales.CreateSaleInput{
		Items:    []sales.LineInput{line(first, 3), line(second, 2)},
		SellerID: sellerID,
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.Equal(t, 10, f.store.Product(first.ID).Stock)
	require.Empty(t, f.store.Movements(first.ID))
	require.Zero(t, f.store.SaleCount())
	require.Zero(t, f.store.SaleItemCount())
}

func TestCreateSaleRollsBackOnStorageFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product("P-000001", 10, "2.00")
	f.store.FailNext("InsertMovement", errors.New("connection reset"))

	input := sales.CreateSaleInput{Items: []sales.LineInput{line(p, 1)}, SellerID: sellerID, IdempotencyKey: "retry-me"}
	_, err := f.svc.CreateSale(ctx, input)
	require.Error(t, err)
	require.Zero(t, f.store.SaleCount())
	require.Zero(t, f.store.SaleItemCount())
	require.Equal(t, 10, f.store.Product(p.ID).Stock)

	_, err = f.svc.CreateSale(ctx, input)
	require.NoError(t, err)
	require.Equal(t, 9, f.store.Product(p.ID).Stock)
}

func TestCreateSaleConcurrentLastUnit(t *testing.T) {
	f := newFixture(t)
	p := f.product("P-000001", 1, "9.90")

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.CreateSale(context.Background(), sales.CreateSaleInput{
				Items:    []sales.LineInput{line(p, 1)},
				SellerID: sellerID,
			})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 0, f.store.Product(p.ID).Stock)
	require.Len(t, f.store.Movements(p.ID), 1)
}

func TestCreateSaleTotals(t *testing.T) {
	f := newFixture(t)
	a := f.product("P-000001", 10, "10.10")
	b := f.product("P-000002", 10, "0.10")

	result, err := f.svc.CreateSale(context.Background(), sales.CreateSaleInput{
		Items:         []sales.LineInput{line(a, 3), line(b, 1)},
		Discount:      dec("0.40"),
		PaymentMethod: "yape",
		Subtotal:      decPtr("30.40"),
		Total:         decPtr("35.40"),
		SellerID:      sellerID,
	})
	require.NoError(t, err)
	require.Equal(t, sales.PaymentYape, result.Sale.PaymentMethod)
	require.Equal(t, "5.40", result.Sale.Tax.StringFixed(2))
	require.Equal(t, "35.40", result.Sale.Total.StringFixed(2))
	require.Len(t, result.Sale.Items, 2)
	require.Equal(t, "30.30", result.Sale.Items[0].Subtotal.StringFixed(2))
	require.Equal(t, 1, f.cache.bumps)

	audits := f.store.Audits()
	require.Len(t, audits, 1)
	require.Equal(t, "sales:create", audits[0].Action)
	require.Equal(t, result.Sale.Code, audits[0].EntityID)
}

func TestCreateSaleValidation(t *testing.T) {
	f := newFixture(t)
	p := f.product("P-000001", 10, "5.00")
	customerID := int64(1)

	cases := []struct {
		name  string
		input sales.CreateSaleInput
		want  error
	}{
		{"empty cart", sales.CreateSaleInput{SellerID: sellerID}, sales.ErrEmptyCart},
		{"no seller", sales.CreateSaleInput{Items: []sales.LineInput{line(p, 1)}}, sales.ErrSellerRequired},
		{"zero quantity", sales.CreateSaleInput{Items: []sales.LineInput{line(p, 0)}, SellerID: sellerID}, inventory.ErrInvalidQuantity},
		{"negative price", sales.CreateSaleInput{Items: []sales.LineInput{{ProductID: p.ID, Quantity: 1, UnitPrice: dec("-1")}}, SellerID: sellerID}, sales.ErrInvalidPrice},
		{"bad payment", sales.CreateSaleInput{Items: []sales.LineInput{line(p, 1)}, PaymentMethod: "BARTER", SellerID: sellerID}, sales.ErrInvalidPayment},
		{"discount over subtotal", sales.CreateSaleInput{Items: []sales.LineInput{line(p, 1)}, Discount: dec("6"), SellerID: sellerID}, sales.ErrInvalidDiscount},
		{"total mismatch", sales.CreateSaleInput{Items: []sales.LineInput{line(p, 1)}, Total: decPtr("5.00"), SellerID: sellerID}, sales.ErrTotalsMismatch},
		{"line subtotal mismatch", sales.CreateSaleInput{Items: []sales.LineInput{{ProductID: p.ID, Quantity: 2, UnitPrice: dec("5"), Subtotal: decPtr("9")}}, SellerID: sellerID}, sales.ErrTotalsMismatch},
		{"ambiguous customer", sales.CreateSaleInput{Items: []sales.LineInput{line(p, 1)}, CustomerID: &customerID, NewCustomer: &customers.CreateCustomerRequest{Name: "X"}, SellerID: sellerID}, sales.ErrCustomerAmbiguous},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateSale(context.Background(), tc.input)
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	require.Zero(t, f.store.SaleCount())
	require.Equal(t, 10, f.store.Product(p.ID).Stock)
}

func TestCreateSaleRejectsSubCentAmounts(t *testing.T) {
	f := newFixture(t)
	p := f.product("P-000001", 10, "9.99")

	_, err := f.svc.CreateSale(context.Background(), sales.CreateSaleInput{
		Items:    []sales.LineInput{{ProductID: p.ID, Quantity: 3, UnitPrice: dec("9.999")}},
		SellerID: sellerID,
	})
	require.ErrorIs(t, err, sales.ErrInvalidPrice)

	_, err = f.svc.CreateSale(context.Background(), sales.CreateSaleInput{
		Items:    []sales.LineInput{line(p, 1)},
		Discount: dec("0.005"),
		SellerID: sellerID,
	})
	require.ErrorIs(t, err, sales.ErrInvalidDiscount)

	require.Zero(t, f.store.SaleCount())
	require.Equal(t, 10, f.store.Product(p.ID).Stock)
	require.Empty(t, f.store.Movements(p.ID))
}

func TestCreateSaleRejectsInactiveProduct(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddProduct(inventory.Product{Code: "P-000009", Name: "Retirado", SalePrice: dec("1"), Stock: 5})

	_, err := f.svc.CreateSale(context.Background(), sales.CreateSaleInput{Items: []sales.LineInput{line(p, 1)}, SellerID: sellerID})
	require.ErrorIs(t, err, sales.ErrProductInactive)
	require.Equal(t, 5, f.store.Product(p.ID).Stock)
}

func TestCreateSaleIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product("P-000001", 10, "1.00")
	input := sales.CreateSaleInput{Items: []sales.LineInput{line(p, 1)}, SellerID: sellerID, IdempotencyKey: "cart-42"}

	_, err := f.svc.CreateSale(ctx, input)
	require.NoError(t, err)
	_, err = f.svc.CreateSale(ctx, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Equal(t, 1, f.store.SaleCount())
	require.Equal(t, 9, f.store.Product(p.ID).Stock)
}

func TestCreateSaleGetOrCreatesCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product("P-000001", 10, "1.00")
	newCustomer := &customers.CreateCustomerRequest{DNI: "44556677", Name: "Julia Ramos"}

	first, err := f.svc.CreateSale(ctx, sales.CreateSaleInput{NewCustomer: newCustomer, Items: []sales.LineInput{line(p, 1)}, SellerID: sellerID})
	require.NoError(t, err)
	second, err := f.svc.CreateSale(ctx, sales.CreateSaleInput{NewCustomer: newCustomer, Items: []sales.LineInput{line(p, 1)}, SellerID: sellerID})
	require.NoError(t, err)

	require.Equal(t, 1, f.store.CustomerCount())
	require.Equal(t, *first.Sale.CustomerID, *second.Sale.CustomerID)
	require.Equal(t, "Julia Ramos", second.Sale.CustomerName)
}

func TestCreateSaleReturningDNIWithoutName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product("P-000001", 10, "1.00")

	first, err := f.svc.CreateSale(ctx, sales.CreateSaleInput{NewCustomer: &customers.CreateCustomerRequest{DNI: "44556677", Name: "Julia"}, Items: []sales.LineInput{line(p, 1)}, SellerID: sellerID})
	require.NoError(t, err)
	second, err := f.svc.CreateSale(ctx, sales.CreateSaleInput{NewCustomer: &customers.CreateCustomerRequest{DNI: "44556677"}, Items: []sales.LineInput{line(p, 1)}, SellerID: sellerID})
	require.NoError(t, err)
	require.Equal(t, *first.Sale.CustomerID, *second.Sale.CustomerID)
	require.Equal(t, "Julia", second.Sale.CustomerName)

	third, err := f.svc.CreateSale(ctx, sales.CreateSaleInput{NewCustomer: &customers.CreateCustomerRequest{DNI: "11223344"}, Items: []sales.LineInput{line(p, 1)}, SellerID: sellerID})
	require.NoError(t, err)
	require.Equal(t, "11223344", third.Sale.CustomerName)
	require.Equal(t, 2, f.store.CustomerCount())
}

func TestCreateSaleUnknownCustomer(t *testing.T) {
	f := newFixture(t)
	p := f.product("P-000001", 10, "1.00")
	missing := int64(999)

	_, err := f.svc.CreateSale(context.Background(), sales.CreateSaleInput{CustomerID: &missing, Items: []sales.LineInput{line(p, 1)}, SellerID: sellerID})
	require.ErrorIs(t, err, customers.ErrNotFound)
	require.Zero(t, f.store.SaleCount())
}

func TestGetSaleByCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product("P-000001", 10, "2.50")
	customer := f.store.AddCustomer(customers.Customer{DNI: strPtr("10203040"), Name: "Mario Paz", IsActive: true})

	result, err := f.svc.CreateSale(ctx, sales.CreateSaleInput{CustomerID: &customer.ID, Items: []sales.LineInput{line(p, 2)}, SellerID: sellerID})
	require.NoError(t, err)

	sale, err := f.svc.GetSale(ctx, result.Sale.Code)
	require.NoError(t, err)
	require.Equal(t, "Mario Paz", sale.CustomerName)
	require.Equal(t, "10203040", sale.CustomerDNI)
	require.Len(t, sale.Items, 1)
	require.Equal(t, "Producto P-000001", sale.Items[0].ProductName)

	_, err = f.svc.GetSale(ctx, "not-a-code")
	require.ErrorIs(t, err, sales.ErrNotFound)
	_, err = f.svc.GetSale(ctx, "V-20240101-0000")
	require.ErrorIs(t, err, sales.ErrNotFound)

	list, total, err := f.svc.ListSales(ctx, sales.ListFilter{CustomerID: &customer.ID})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, list, 1)
}

func strPtr(s string) *string { return &s }
