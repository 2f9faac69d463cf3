package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/customers"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/purchases"
	"github.com/odyssey-erp/odyssey-pos/internal/reservations"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
)

// Inventory adapts the store to inventory.RepositoryPort.
func (s *Store) Inventory() inventory.RepositoryPort { return inventoryRepo{s} }

// Reservations adapts the store to reservations.RepositoryPort.
func (s *Store) Reservations() reservations.RepositoryPort { return reservationRepo{s} }

// Sales adapts the store to sales.RepositoryPort.
func (s *Store) Sales() sales.RepositoryPort { return salesRepo{s} }

// Purchases adapts the store to purchases.RepositoryPort.
func (s *Store) Purchases() purchases.RepositoryPort { return purchaseRepo{s} }

// Customers adapts the store to customers.RepositoryPort.
func (s *Store) Customers() customers.RepositoryPort { return customerRepo{s} }

// Catalog adapts the store to catalog.RepositoryPort.
func (s *Store) Catalog() catalog.RepositoryPort { return catalogRepo{s} }

type inventoryRepo struct{ s *Store }

func (r inventoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.s.withTx(func(tx *Tx) error { return fn(ctx, tx) })
}

func (r inventoryRepo) GetProduct(_ context.Context, id int64) (inventory.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.products[id]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return p, nil
}

func (r inventoryRepo) ListMovements(_ context.Context, filter inventory.KardexFilter) ([]inventory.StockMovement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []inventory.StockMovement
	for _, m := range r.s.st.movements {
		if m.ProductID != filter.ProductID {
			continue
		}
		if !filter.From.IsZero() && m.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && m.CreatedAt.After(filter.To) {
			continue
		}
		out = append(out, m)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r inventoryRepo) ListLowStock(_ context.Context) ([]inventory.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []inventory.Product
	for _, p := range r.s.st.products {
		if p.IsActive && p.IsLowStock() {
			out = append(out, p)
		}
	}
	sortProducts(out)
	return out, nil
}

type reservationRepo struct{ s *Store }

func (r reservationRepo) WithTx(ctx context.Context, fn func(context.Context, reservations.TxRepository) error) error {
	return r.s.withTx(func(tx *Tx) error { return fn(ctx, tx) })
}

func (r reservationRepo) GetReservation(_ context.Context, id int64) (reservations.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.st.reservations[id]
	if !ok {
		return reservations.Reservation{}, reservations.ErrNotFound
	}
	return res, nil
}

func (r reservationRepo) ListActive(_ context.Context, filter reservations.ListFilter) ([]reservations.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.filterReservations(func(res reservations.Reservation) bool {
		if res.Status != reservations.StatusReserved {
			return false
		}
		if filter.CustomerID != nil && (res.CustomerID == nil || *res.CustomerID != *filter.CustomerID) {
			return false
		}
		return filter.ProductID == nil || res.ProductID == *filter.ProductID
	}), nil
}

func (r reservationRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]reservations.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.s.filterReservations(func(res reservations.Reservation) bool { return res.Expired(now) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type salesRepo struct{ s *Store }

func (r salesRepo) WithTx(ctx context.Context, fn func(context.Context, sales.TxRepository) error) error {
	return r.s.withTx(func(tx *Tx) error { return fn(ctx, tx) })
}

func (r salesRepo) GetSaleByCode(_ context.Context, code string) (sales.Sale, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sale := range r.s.st.sales {
		if sale.Code != code {
			continue
		}
		r.s.fillSale(&sale)
		for _, item := range r.s.st.saleItems {
			if item.SaleID == sale.ID {
				p := r.s.st.products[item.ProductID]
				item.ProductCode, item.ProductName = p.Code, p.Name
				sale.Items = append(sale.Items, item)
			}
		}
		return sale, nil
	}
	return sales.Sale{}, sales.ErrNotFound
}

func (r salesRepo) ListSales(_ context.Context, filter sales.ListFilter) ([]sales.Sale, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []sales.Sale
	for _, sale := range r.s.st.sales {
		if filter.CustomerID != nil && (sale.CustomerID == nil || *sale.CustomerID != *filter.CustomerID) {
			continue
		}
		if filter.SellerID != nil && sale.SellerID != *filter.SellerID {
			continue
		}
		if !filter.From.IsZero() && sale.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && sale.CreatedAt.After(filter.To) {
			continue
		}
		r.s.fillSale(&sale)
		out = append(out, sale)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	return page(out, filter.Offset, filter.Limit), total, nil
}

func (s *Store) fillSale(sale *sales.Sale) {
	if sale.CustomerID == nil {
		return
	}
	c := s.st.customers[*sale.CustomerID]
	sale.CustomerName = c.Name
	if c.DNI != nil {
		sale.CustomerDNI = *c.DNI
	}
}

type purchaseRepo struct{ s *Store }

func (r purchaseRepo) WithTx(ctx context.Context, fn func(context.Context, purchases.TxRepository) error) error {
	return r.s.withTx(func(tx *Tx) error { return fn(ctx, tx) })
}

func (r purchaseRepo) GetPurchase(_ context.Context, id int64) (purchases.Purchase, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.purchases[id]
	if !ok {
		return purchases.Purchase{}, purchases.ErrNotFound
	}
	p.SupplierName = r.s.supplierName(p.SupplierID)
	p.Items = r.s.purchaseItems(id)
	return p, nil
}

func (r purchaseRepo) ListPurchases(_ context.Context, filter purchases.ListFilter) ([]purchases.Purchase, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []purchases.Purchase
	for _, p := range r.s.st.purchases {
		if filter.SupplierID != nil && p.SupplierID != *filter.SupplierID {
			continue
		}
		if filter.Draft != nil && p.IsDraft != *filter.Draft {
			continue
		}
		p.SupplierName = r.s.supplierName(p.SupplierID)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	return page(out, filter.Offset, filter.Limit), total, nil
}

func (r purchaseRepo) ListReorderCandidates(_ context.Context) ([]inventory.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	drafted := make(map[int64]bool)
	for _, item := range r.s.st.purchaseItems {
		if r.s.st.purchases[item.PurchaseID].IsDraft {
			drafted[item.ProductID] = true
		}
	}
	var out []inventory.Product
	for _, p := range r.s.st.products {
		if p.IsActive && p.SupplierID != nil && p.IsLowStock() && !drafted[p.ID] {
			out = append(out, p)
		}
	}
	sortProducts(out)
	return out, nil
}

type customerRepo struct{ s *Store }

func (r customerRepo) WithTx(ctx context.Context, fn func(context.Context, customers.TxRepository) error) error {
	return r.s.withTx(func(tx *Tx) error { return fn(ctx, tx) })
}

func (r customerRepo) Get(_ context.Context, id int64) (customers.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.st.customers[id]
	if !ok {
		return customers.Customer{}, customers.ErrNotFound
	}
	return c, nil
}

func (r customerRepo) List(_ context.Context, req customers.ListCustomersRequest) ([]customers.Customer, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	needle := strings.ToLower(req.Search)
	var out []customers.Customer
	for _, c := range r.s.st.customers {
		if needle != "" && !strings.Contains(strings.ToLower(c.Name), needle) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	return page(out, req.Offset, req.Limit), total, nil
}

type catalogRepo struct{ s *Store }

func (r catalogRepo) WithTx(ctx context.Context, fn func(context.Context, catalog.TxRepository) error) error {
	return r.s.withTx(func(tx *Tx) error { return fn(ctx, tx) })
}

func (r catalogRepo) GetProduct(ctx context.Context, id int64) (inventory.Product, error) {
	return inventoryRepo(r).GetProduct(ctx, id)
}

func (r catalogRepo) ListProducts(_ context.Context, filter catalog.ProductFilter) ([]inventory.Product, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	needle := strings.ToLower(filter.Search)
	var out []inventory.Product
	for _, p := range r.s.st.products {
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) && !strings.Contains(strings.ToLower(p.Code), needle) {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.SupplierID != nil && (p.SupplierID == nil || *p.SupplierID != *filter.SupplierID) {
			continue
		}
		if filter.Active != nil && p.IsActive != *filter.Active {
			continue
		}
		out = append(out, p)
	}
	sortProducts(out)
	total := len(out)
	return page(out, filter.Offset, filter.Limit), total, nil
}

func (r catalogRepo) GetSupplier(_ context.Context, id int64) (catalog.Supplier, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sup, ok := r.s.st.suppliers[id]
	if !ok {
		return catalog.Supplier{}, catalog.ErrSupplierNotFound
	}
	return sup, nil
}

func (r catalogRepo) ListSuppliers(_ context.Context) ([]catalog.Supplier, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]catalog.Supplier, 0, len(r.s.st.suppliers))
	for _, sup := range r.s.st.suppliers {
		out = append(out, sup)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func sortProducts(products []inventory.Product) {
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
