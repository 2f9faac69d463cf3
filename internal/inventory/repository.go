package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// ProductColumns lists the products columns in ScanProduct order.
const ProductColumns = `id, code, name, description, category, supplier_id, purchase_price, sale_price,
	stock, reserved_stock, min_stock, expiration_date, is_active, created_at, updated_at`

const movementColumns = `id, product_id, movement_type, quantity, previous_stock, new_stock, reference_id, notes, created_by, created_at`

// DBTX is satisfied by pgx.Tx and *pgxpool.Pool.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence for the ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a ledger transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// GetProduct loads a product without locking.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	return ScanProduct(r.pool.QueryRow(ctx, `SELECT `+ProductColumns+` FROM products WHERE id = $1`, id))
}

// ListMovements returns the kardex of a product in creation order.
func (r *Repository) ListMovements(ctx context.Context, filter KardexFilter) ([]StockMovement, error) {
	var (
		clauses = []string{"product_id = $1"}
		args    = []any{filter.ProductID}
	)
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	query := `SELECT ` + movementColumns + ` FROM stock_movements WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []StockMovement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ListLowStock returns active products whose unreserved stock is at or below min_stock.
func (r *Repository) ListLowStock(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ProductColumns+` FROM products
		WHERE is_active AND stock - reserved_stock <= min_stock
		ORDER BY stock - reserved_stock - min_stock, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		p, err := ScanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

type txRepository struct {
	tx DBTX
}

// NewTxRepository wraps a pgx transaction. Other modules embed it to share the product lock.
func NewTxRepository(tx DBTX) TxRepository {
	return &txRepository{tx: tx}
}

func (t *txRepository) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	return ScanProduct(t.tx.QueryRow(ctx, `SELECT `+ProductColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) UpdateProductStock(ctx context.Context, id int64, stock int) error {
	tag, err := t.tx.Exec(ctx, `UPDATE products SET stock = $2, updated_at = NOW() WHERE id = $1`, id, stock)
	if err != nil {
		if db.IsCheckViolation(err) {
			return ErrNegativeStock
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (t *txRepository) InsertMovement(ctx context.Context, m StockMovement) (StockMovement, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO stock_movements
		(product_id, movement_type, quantity, previous_stock, new_stock, reference_id, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+movementColumns,
		m.ProductID, string(m.Type), m.Quantity, m.PreviousStock, m.NewStock, m.ReferenceID, m.Notes, m.CreatedBy)
	return scanMovement(row)
}

// ScanProduct scans a row selected with ProductColumns.
func ScanProduct(row pgx.Row) (Product, error) {
	var (
		p          Product
		supplierID *int64
		expiration *time.Time
	)
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Category, &supplierID, &p.PurchasePrice, &p.SalePrice,
		&p.Stock, &p.ReservedStock, &p.MinStock, &expiration, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	p.SupplierID = supplierID
	p.ExpirationDate = expiration
	return p, nil
}

func scanMovement(row pgx.Row) (StockMovement, error) {
	var (
		m      StockMovement
		mvType string
	)
	if err := row.Scan(&m.ID, &m.ProductID, &mvType, &m.Quantity, &m.PreviousStock, &m.NewStock, &m.ReferenceID, &m.Notes, &m.CreatedBy, &m.CreatedAt); err != nil {
		return StockMovement{}, err
	}
	m.Type = MovementType(mvType)
	return m, nil
}

var _ RepositoryPort = (*Repository)(nil)
