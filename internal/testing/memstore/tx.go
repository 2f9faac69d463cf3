package memstore

import (
	"context"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/codes"
	"github.com/odyssey-erp/odyssey-pos/internal/customers"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/purchases"
	"github.com/odyssey-erp/odyssey-pos/internal/reservations"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
)

// Tx implements every TxRepository. It is only valid inside the callback that received it.
type Tx struct {
	s *Store
}

var (
	_ inventory.TxRepository    = (*Tx)(nil)
	_ reservations.TxRepository = (*Tx)(nil)
	_ customers.TxRepository    = (*Tx)(nil)
	_ sales.TxRepository        = (*Tx)(nil)
	_ purchases.TxRepository    = (*Tx)(nil)
	_ catalog.TxRepository      = (*Tx)(nil)
)

// ============================================================================
// PRODUCTS AND LEDGER
// ============================================================================

func (t *Tx) GetProductForUpdate(_ context.Context, id int64) (inventory.Product, error) {
	p, ok := t.s.st.products[id]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return p, nil
}

func (t *Tx) UpdateProductStock(_ context.Context, id int64, stock int) error {
	p, ok := t.s.st.products[id]
	if !ok {
		return inventory.ErrProductNotFound
	}
	if stock < 0 {
		return inventory.ErrNegativeStock
	}
	p.Stock = stock
	t.s.st.products[id] = p
	return nil
}

func (t *Tx) InsertMovement(_ context.Context, m inventory.StockMovement) (inventory.StockMovement, error) {
	if err := t.s.fault("InsertMovement"); err != nil {
		return inventory.StockMovement{}, err
	}
	m.ID, m.CreatedAt = t.s.next()
	t.s.st.movements = append(t.s.st.movements, m)
	return m, nil
}

func (t *Tx) InsertProduct(_ context.Context, p inventory.Product) (inventory.Product, error) {
	if p.SupplierID != nil {
		if _, ok := t.s.st.suppliers[*p.SupplierID]; !ok {
			return inventory.Product{}, catalog.ErrSupplierNotFound
		}
	}
	id, at := t.s.next()
	p.ID = id
	p.CreatedAt, p.UpdatedAt = at, at
	t.s.st.products[p.ID] = p
	return p, nil
}

func (t *Tx) UpdateProductDetails(_ context.Context, p inventory.Product) (inventory.Product, error) {
	current, ok := t.s.st.products[p.ID]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	p.Code = current.Code
	p.Stock = current.Stock
	p.ReservedStock = current.ReservedStock
	p.CreatedAt = current.CreatedAt
	_, p.UpdatedAt = t.s.next()
	t.s.st.products[p.ID] = p
	return p, nil
}

func (t *Tx) CodeExists(_ context.Context, kind codes.Kind, code string) (bool, error) {
	switch kind {
	case codes.KindSale:
		for _, s := range t.s.st.sales {
			if s.Code == code {
				return true, nil
			}
		}
	case codes.KindPurchase:
		for _, p := range t.s.st.purchases {
			if p.Code == code {
				return true, nil
			}
		}
	case codes.KindProduct:
		for _, p := range t.s.st.products {
			if p.Code == code {
				return true, nil
			}
		}
	default:
		return false, codes.ErrUnknownKind
	}
	return false, nil
}

// ============================================================================
// RESERVATIONS
// ============================================================================

func (t *Tx) UpdateReservedStock(_ context.Context, productID int64, reserved int) error {
	p, ok := t.s.st.products[productID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	p.ReservedStock = reserved
	t.s.st.products[productID] = p
	return nil
}

func (t *Tx) InsertReservation(_ context.Context, r reservations.Reservation) (reservations.Reservation, error) {
	if err := t.s.fault("InsertReservation"); err != nil {
		return reservations.Reservation{}, err
	}
	if r.CustomerID != nil {
		if _, ok := t.s.st.customers[*r.CustomerID]; !ok {
			return reservations.Reservation{}, reservations.ErrCustomerNotFound
		}
	}
	r.ID, r.CreatedAt = t.s.next()
	r.UpdatedAt = r.CreatedAt
	t.s.st.reservations[r.ID] = r
	return r, nil
}

func (t *Tx) GetReservationForUpdate(_ context.Context, id int64) (reservations.Reservation, error) {
	r, ok := t.s.st.reservations[id]
	if !ok {
		return reservations.Reservation{}, reservations.ErrNotFound
	}
	return r, nil
}

func (t *Tx) UpdateReservation(_ context.Context, r reservations.Reservation) (reservations.Reservation, error) {
	current, ok := t.s.st.reservations[r.ID]
	if !ok {
		return reservations.Reservation{}, reservations.ErrNotFound
	}
	current.Quantity = r.Quantity
	current.Status = r.Status
	_, current.UpdatedAt = t.s.next()
	t.s.st.reservations[r.ID] = current
	return current, nil
}

func (t *Tx) DeleteReservation(_ context.Context, id int64) error {
	if _, ok := t.s.st.reservations[id]; !ok {
		return reservations.ErrNotFound
	}
	delete(t.s.st.reservations, id)
	return nil
}

func (t *Tx) ListCustomerReservationsForUpdate(_ context.Context, productID, customerID int64) ([]reservations.Reservation, error) {
	return t.s.filterReservations(func(r reservations.Reservation) bool {
		return r.ProductID == productID && r.CustomerID != nil && *r.CustomerID == customerID && r.Status == reservations.StatusReserved
	}), nil
}

// ============================================================================
// CUSTOMERS AND SUPPLIERS
// ============================================================================

func (t *Tx) GetCustomer(_ context.Context, id int64) (customers.Customer, error) {
	c, ok := t.s.st.customers[id]
	if !ok {
		return customers.Customer{}, customers.ErrNotFound
	}
	return c, nil
}

func (t *Tx) FindCustomerByDNI(_ context.Context, dni string) (customers.Customer, error) {
	for _, c := range t.s.st.customers {
		if c.DNI != nil && *c.DNI == dni {
			return c, nil
		}
	}
	return customers.Customer{}, customers.ErrNotFound
}

func (t *Tx) FindCustomerByNameKey(_ context.Context, key string) (customers.Customer, error) {
	for id, k := range t.s.st.customerKeys {
		c := t.s.st.customers[id]
		if k == key && c.DNI == nil {
			return c, nil
		}
	}
	return customers.Customer{}, customers.ErrNotFound
}

func (t *Tx) InsertCustomer(ctx context.Context, c customers.Customer, nameKey string) (customers.Customer, error) {
	if c.DNI != nil {
		if _, err := t.FindCustomerByDNI(ctx, *c.DNI); err == nil {
			return customers.Customer{}, customers.ErrDuplicate
		}
	} else if _, err := t.FindCustomerByNameKey(ctx, nameKey); err == nil {
		return customers.Customer{}, customers.ErrDuplicate
	}
	c.ID, c.CreatedAt = t.s.next()
	t.s.st.customers[c.ID] = c
	t.s.st.customerKeys[c.ID] = nameKey
	return c, nil
}

func (t *Tx) GetSupplier(_ context.Context, id int64) (catalog.Supplier, error) {
	sup, ok := t.s.st.suppliers[id]
	if !ok {
		return catalog.Supplier{}, catalog.ErrSupplierNotFound
	}
	return sup, nil
}

func (t *Tx) InsertSupplier(_ context.Context, sup catalog.Supplier) (catalog.Supplier, error) {
	for _, existing := range t.s.st.suppliers {
		if strings.EqualFold(existing.RUC, sup.RUC) {
			return catalog.Supplier{}, catalog.ErrDuplicateRUC
		}
	}
	sup.ID, sup.CreatedAt = t.s.next()
	t.s.st.suppliers[sup.ID] = sup
	return sup, nil
}

// ============================================================================
// SALES
// ============================================================================

func (t *Tx) InsertSale(_ context.Context, sale sales.Sale) (sales.Sale, error) {
	if sale.CustomerID != nil {
		if _, ok := t.s.st.customers[*sale.CustomerID]; !ok {
			return sales.Sale{}, customers.ErrNotFound
		}
	}
	sale.ID, sale.CreatedAt = t.s.next()
	sale.Items = nil
	t.s.st.sales[sale.ID] = sale
	return sale, nil
}

func (t *Tx) InsertSaleItem(_ context.Context, item sales.SaleItem) (sales.SaleItem, error) {
	if err := t.s.fault("InsertSaleItem"); err != nil {
		return sales.SaleItem{}, err
	}
	item.ID, _ = t.s.next()
	t.s.st.saleItems = append(t.s.st.saleItems, item)
	return item, nil
}

// ============================================================================
// PURCHASES
// ============================================================================

func (t *Tx) InsertPurchase(_ context.Context, p purchases.Purchase) (purchases.Purchase, error) {
	if _, ok := t.s.st.suppliers[p.SupplierID]; !ok {
		return purchases.Purchase{}, purchases.ErrSupplierNotFound
	}
	p.ID, p.CreatedAt = t.s.next()
	p.UpdatedAt = p.CreatedAt
	p.Items = nil
	t.s.st.purchases[p.ID] = p
	return p, nil
}

func (t *Tx) GetPurchaseForUpdate(_ context.Context, id int64) (purchases.Purchase, error) {
	p, ok := t.s.st.purchases[id]
	if !ok {
		return purchases.Purchase{}, purchases.ErrNotFound
	}
	p.SupplierName = t.s.supplierName(p.SupplierID)
	return p, nil
}

func (t *Tx) InsertPurchaseItem(_ context.Context, item purchases.PurchaseItem) (purchases.PurchaseItem, error) {
	if err := t.s.fault("InsertPurchaseItem"); err != nil {
		return purchases.PurchaseItem{}, err
	}
	item.ID, _ = t.s.next()
	t.s.st.purchaseItems = append(t.s.st.purchaseItems, item)
	return item, nil
}

func (t *Tx) ListPurchaseItems(_ context.Context, purchaseID int64) ([]purchases.PurchaseItem, error) {
	return t.s.purchaseItems(purchaseID), nil
}

func (t *Tx) DeletePurchaseItems(_ context.Context, purchaseID int64) error {
	kept := t.s.st.purchaseItems[:0:0]
	for _, item := range t.s.st.purchaseItems {
		if item.PurchaseID != purchaseID {
			kept = append(kept, item)
		}
	}
	t.s.st.purchaseItems = kept
	return nil
}

func (t *Tx) UpdatePurchase(_ context.Context, p purchases.Purchase) error {
	current, ok := t.s.st.purchases[p.ID]
	if !ok {
		return purchases.ErrNotFound
	}
	current.InvoiceNumber = p.InvoiceNumber
	current.Total = p.Total
	current.IsDraft = p.IsDraft
	_, current.UpdatedAt = t.s.next()
	t.s.st.purchases[p.ID] = current
	return nil
}
