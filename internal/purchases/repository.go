package purchases

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

const purchaseColumns = `p.id, p.code, p.supplier_id, COALESCE(s.name, ''), p.invoice_number, p.total, p.notes,
	p.is_draft, p.created_by, p.created_at, p.updated_at`

const purchaseFrom = ` FROM purchases p LEFT JOIN suppliers s ON s.id = p.supplier_id`

// Repository provides PostgreSQL backed persistence for purchases.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn within a ledger transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// GetPurchase loads the header and items.
func (r *Repository) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	p, err := scanPurchase(r.pool.QueryRow(ctx, `SELECT `+purchaseColumns+purchaseFrom+` WHERE p.id = $1`, id))
	if err != nil {
		return Purchase{}, err
	}
	p.Items, err = listItems(ctx, r.pool, id)
	return p, err
}

// ListPurchases returns headers newest first.
func (r *Repository) ListPurchases(ctx context.Context, filter ListFilter) ([]Purchase, int, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.SupplierID != nil {
		args = append(args, *filter.SupplierID)
		conditions = append(conditions, fmt.Sprintf("p.supplier_id = $%d", len(args)))
	}
	if filter.Draft != nil {
		args = append(args, *filter.Draft)
		conditions = append(conditions, fmt.Sprintf("p.is_draft = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchases p`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("purchases: count: %w", err)
	}
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+purchaseColumns+purchaseFrom+where+
		fmt.Sprintf(` ORDER BY p.created_at DESC, p.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("purchases: list: %w", err)
	}
	defer rows.Close()
	var out []Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// ListReorderCandidates returns active low-stock products with a supplier that are not
// already on an open draft purchase.
func (r *Repository) ListReorderCandidates(ctx context.Context) ([]inventory.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+inventory.ProductColumns+` FROM products
		WHERE is_active AND supplier_id IS NOT NULL AND stock - reserved_stock <= min_stock
		AND NOT EXISTS (
			SELECT 1 FROM purchase_items pi
			JOIN purchases pu ON pu.id = pi.purchase_id
			WHERE pu.is_draft AND pi.product_id = products.id
		)
		ORDER BY supplier_id, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []inventory.Product
	for rows.Next() {
		p, err := inventory.ScanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type txRepository struct {
	inventory.TxRepository
	tx inventory.DBTX
}

// NewTxRepository wraps a transaction with product and purchase queries.
func NewTxRepository(tx inventory.DBTX) TxRepository {
	return &txRepository{TxRepository: inventory.NewTxRepository(tx), tx: tx}
}

func (t *txRepository) CodeExists(ctx context.Context, kind codes.Kind, code string) (bool, error) {
	return codes.Exists(ctx, t.tx, kind, code)
}

func (t *txRepository) InsertPurchase(ctx context.Context, p Purchase) (Purchase, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO purchases (code, supplier_id, invoice_number, total, notes, is_draft, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		p.Code, p.SupplierID, p.InvoiceNumber, p.Total, p.Notes, p.IsDraft, p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Purchase{}, ErrSupplierNotFound
		}
		return Purchase{}, err
	}
	return p, nil
}

func (t *txRepository) GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, error) {
	return scanPurchase(t.tx.QueryRow(ctx, `SELECT `+purchaseColumns+purchaseFrom+` WHERE p.id = $1 FOR UPDATE OF p`, id))
}

func (t *txRepository) InsertPurchaseItem(ctx context.Context, item PurchaseItem) (PurchaseItem, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_items (purchase_id, product_id, quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		item.PurchaseID, item.ProductID, item.Quantity, item.UnitPrice, item.Subtotal,
	).Scan(&item.ID)
	if err != nil {
		return PurchaseItem{}, err
	}
	return item, nil
}

func (t *txRepository) ListPurchaseItems(ctx context.Context, purchaseID int64) ([]PurchaseItem, error) {
	return listItems(ctx, t.tx, purchaseID)
}

func (t *txRepository) DeletePurchaseItems(ctx context.Context, purchaseID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_items WHERE purchase_id = $1`, purchaseID)
	return err
}

func (t *txRepository) UpdatePurchase(ctx context.Context, p Purchase) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchases SET invoice_number = $2, total = $3, is_draft = $4, updated_at = NOW()
		WHERE id = $1`, p.ID, p.InvoiceNumber, p.Total, p.IsDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func listItems(ctx context.Context, q inventory.DBTX, purchaseID int64) ([]PurchaseItem, error) {
	rows, err := q.Query(ctx, `SELECT i.id, i.purchase_id, i.product_id, p.code, p.name, i.quantity, i.unit_price, i.subtotal
		FROM purchase_items i JOIN products p ON p.id = i.product_id
		WHERE i.purchase_id = $1 ORDER BY i.id`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PurchaseItem
	for rows.Next() {
		var item PurchaseItem
		if err := rows.Scan(&item.ID, &item.PurchaseID, &item.ProductID, &item.ProductCode, &item.ProductName,
			&item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanPurchase(row pgx.Row) (Purchase, error) {
	var p Purchase
	err := row.Scan(&p.ID, &p.Code, &p.SupplierID, &p.SupplierName, &p.InvoiceNumber, &p.Total, &p.Notes,
		&p.IsDraft, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, ErrNotFound
		}
		return Purchase{}, err
	}
	return p, nil
}

var _ RepositoryPort = (*Repository)(nil)
