// Package memstore is an in-memory implementation of every repository port used by the ledger
// services. WithTx holds a single mutex for the whole transaction, which stands in for the
// product row locks, and restores a snapshot when the callback fails.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/customers"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/purchases"
	"github.com/odyssey-erp/odyssey-pos/internal/reservations"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type state struct {
	products      map[int64]inventory.Product
	movements     []inventory.StockMovement
	reservations  map[int64]reservations.Reservation
	customers     map[int64]customers.Customer
	customerKeys  map[int64]string
	suppliers     map[int64]catalog.Supplier
	sales         map[int64]sales.Sale
	saleItems     []sales.SaleItem
	purchases     map[int64]purchases.Purchase
	purchaseItems []purchases.PurchaseItem
	seq           int64
}

func (s state) clone() state {
	out := s
	out.products = cloneMap(s.products)
	out.movements = append([]inventory.StockMovement(nil), s.movements...)
	out.reservations = cloneMap(s.reservations)
	out.customers = cloneMap(s.customers)
	out.customerKeys = cloneMap(s.customerKeys)
	out.suppliers = cloneMap(s.suppliers)
	out.sales = cloneMap(s.sales)
	out.saleItems = append([]sales.SaleItem(nil), s.saleItems...)
	out.purchases = cloneMap(s.purchases)
	out.purchaseItems = append([]purchases.PurchaseItem(nil), s.purchaseItems...)
	return out
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Store holds all rows. The zero value is not usable; call New.
type Store struct {
	mu          sync.Mutex
	st          state
	audits      []shared.AuditLog
	idempotency map[string]struct{}
	faults      map[string]error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		st: state{
			products:     map[int64]inventory.Product{},
			reservations: map[int64]reservations.Reservation{},
			customers:    map[int64]customers.Customer{},
			customerKeys: map[int64]string{},
			suppliers:    map[int64]catalog.Supplier{},
			sales:        map[int64]sales.Sale{},
			purchases:    map[int64]purchases.Purchase{},
		},
		idempotency: map[string]struct{}{},
		faults:      map[string]error{},
	}
}

// next returns a store-wide id and a strictly increasing timestamp.
func (s *Store) next() (int64, time.Time) {
	s.st.seq++
	return s.st.seq, epoch.Add(time.Duration(s.st.seq) * time.Millisecond)
}

func (s *Store) withTx(fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(&Tx{s: s}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// FailNext makes the next call of op inside a transaction return err. Supported ops are
// InsertMovement, InsertSaleItem, InsertPurchaseItem and InsertReservation.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	err, ok := s.faults[op]
	if !ok {
		return nil
	}
	delete(s.faults, op)
	return err
}

// ============================================================================
// SEEDING AND INSPECTION
// ============================================================================

// AddProduct stores p as is, assigning an id when zero.
func (s *Store) AddProduct(p inventory.Product) inventory.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, at := s.next()
	if p.ID == 0 {
		p.ID = id
	}
	p.CreatedAt, p.UpdatedAt = at, at
	s.st.products[p.ID] = p
	return p
}

// AddSupplier stores a supplier.
func (s *Store) AddSupplier(sup catalog.Supplier) catalog.Supplier {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, at := s.next()
	if sup.ID == 0 {
		sup.ID = id
	}
	sup.CreatedAt = at
	s.st.suppliers[sup.ID] = sup
	return sup
}

// AddCustomer stores a customer.
func (s *Store) AddCustomer(c customers.Customer) customers.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, at := s.next()
	if c.ID == 0 {
		c.ID = id
	}
	c.CreatedAt = at
	s.st.customers[c.ID] = c
	s.st.customerKeys[c.ID] = customers.NameKey(c.Name)
	return c
}

// SetReservedStock overwrites the counter, e.g. to simulate drift.
func (s *Store) SetReservedStock(productID int64, reserved int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.st.products[productID]
	p.ReservedStock = reserved
	s.st.products[productID] = p
}

// Product returns the committed product row.
func (s *Store) Product(id int64) inventory.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.products[id]
}

// Movements returns the kardex of a product in creation order.
func (s *Store) Movements(productID int64) []inventory.StockMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.StockMovement
	for _, m := range s.st.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out
}

// AllReservations returns every reservation of a product regardless of status, oldest first.
func (s *Store) AllReservations(productID int64) []reservations.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterReservations(func(r reservations.Reservation) bool { return r.ProductID == productID })
}

// ReservedSum is the total quantity of RESERVED reservations of a product.
func (s *Store) ReservedSum(productID int64) int {
	total := 0
	for _, r := range s.AllReservations(productID) {
		total += r.Contribution()
	}
	return total
}

// SaleCount returns the number of committed sales.
func (s *Store) SaleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.sales)
}

// SaleItemCount returns the number of committed sale items.
func (s *Store) SaleItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.saleItems)
}

// CustomerCount returns the number of customers.
func (s *Store) CustomerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.customers)
}

// Audits returns recorded audit entries.
func (s *Store) Audits() []shared.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]shared.AuditLog(nil), s.audits...)
}

// Record implements the audit ports.
func (s *Store) Record(_ context.Context, log shared.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, log)
	return nil
}

// CheckAndInsert implements the idempotency ports.
func (s *Store) CheckAndInsert(_ context.Context, key, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := module + ":" + key
	if _, ok := s.idempotency[k]; ok {
		return shared.ErrIdempotencyConflict
	}
	s.idempotency[k] = struct{}{}
	return nil
}

// Delete implements the idempotency ports.
func (s *Store) Delete(_ context.Context, key, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.idempotency, module+":"+key)
	return nil
}

func (s *Store) filterReservations(keep func(reservations.Reservation) bool) []reservations.Reservation {
	var out []reservations.Reservation
	for _, r := range s.st.reservations {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) purchaseItems(purchaseID int64) []purchases.PurchaseItem {
	var out []purchases.PurchaseItem
	for _, item := range s.st.purchaseItems {
		if item.PurchaseID == purchaseID {
			p := s.st.products[item.ProductID]
			item.ProductCode, item.ProductName = p.Code, p.Name
			out = append(out, item)
		}
	}
	return out
}

func (s *Store) supplierName(id int64) string {
	return s.st.suppliers[id].Name
}

