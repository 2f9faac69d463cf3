package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/codes"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

const supplierColumns = `id, ruc, name, contact, phone, email, address, is_active, created_at`

// Repository provides PostgreSQL backed catalog persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetProduct loads a product.
func (r *Repository) GetProduct(ctx context.Context, id int64) (inventory.Product, error) {
	return inventory.ScanProduct(r.pool.QueryRow(ctx, `SELECT `+inventory.ProductColumns+` FROM products WHERE id = $1`, id))
}

// ListProducts filters products by search text, category, supplier and active flag.
func (r *Repository) ListProducts(ctx context.Context, filter ProductFilter) ([]inventory.Product, int, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", len(args), len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.SupplierID != nil {
		args = append(args, *filter.SupplierID)
		conditions = append(conditions, fmt.Sprintf("supplier_id = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count products: %w", err)
	}
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+inventory.ProductColumns+` FROM products`+where+
		fmt.Sprintf(` ORDER BY name, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list products: %w", err)
	}
	defer rows.Close()
	var out []inventory.Product
	for rows.Next() {
		p, err := inventory.ScanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// GetSupplier loads a supplier.
func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	return scanSupplier(r.pool.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id))
}

// ListSuppliers returns suppliers ordered by name.
func (r *Repository) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+supplierColumns+` FROM suppliers ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) CodeExists(ctx context.Context, kind codes.Kind, code string) (bool, error) {
	return codes.Exists(ctx, t.tx, kind, code)
}

func (t *txRepository) GetProductForUpdate(ctx context.Context, id int64) (inventory.Product, error) {
	return inventory.ScanProduct(t.tx.QueryRow(ctx, `SELECT `+inventory.ProductColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) InsertProduct(ctx context.Context, p inventory.Product) (inventory.Product, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO products
		(code, name, description, category, supplier_id, purchase_price, sale_price, min_stock, expiration_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+inventory.ProductColumns,
		p.Code, p.Name, p.Description, p.Category, p.SupplierID, p.PurchasePrice, p.SalePrice, p.MinStock, p.ExpirationDate, p.IsActive)
	created, err := inventory.ScanProduct(row)
	if err != nil && db.IsForeignKeyViolation(err) {
		return inventory.Product{}, ErrSupplierNotFound
	}
	return created, err
}

func (t *txRepository) UpdateProductDetails(ctx context.Context, p inventory.Product) (inventory.Product, error) {
	row := t.tx.QueryRow(ctx, `UPDATE products SET name = $2, description = $3, category = $4, supplier_id = $5,
		purchase_price = $6, sale_price = $7, min_stock = $8, expiration_date = $9, is_active = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING `+inventory.ProductColumns,
		p.ID, p.Name, p.Description, p.Category, p.SupplierID, p.PurchasePrice, p.SalePrice, p.MinStock, p.ExpirationDate, p.IsActive)
	return inventory.ScanProduct(row)
}

func (t *txRepository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	return scanSupplier(t.tx.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id))
}

func (t *txRepository) InsertSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO suppliers (ruc, name, contact, phone, email, address, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ruc) DO NOTHING
		RETURNING `+supplierColumns,
		s.RUC, s.Name, s.Contact, s.Phone, s.Email, s.Address, s.IsActive)
	created, err := scanSupplier(row)
	if errors.Is(err, ErrSupplierNotFound) {
		return Supplier{}, ErrDuplicateRUC
	}
	return created, err
}

func scanSupplier(row pgx.Row) (Supplier, error) {
	var s Supplier
	if err := row.Scan(&s.ID, &s.RUC, &s.Name, &s.Contact, &s.Phone, &s.Email, &s.Address, &s.IsActive, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, ErrSupplierNotFound
		}
		return Supplier{}, err
	}
	return s, nil
}

var _ RepositoryPort = (*Repository)(nil)
