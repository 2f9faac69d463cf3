package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/codes"
	"github.com/odyssey-erp/odyssey-pos/internal/customers"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/reservations"
)

const saleColumns = `s.id, s.code, s.customer_id, s.seller_id, s.status, s.payment_method,
	s.subtotal, s.discount, s.tax, s.total, s.notes, s.created_at,
	COALESCE(c.name, ''), COALESCE(c.dni, ''), COALESCE(u.username, '')`

const saleFrom = ` FROM sales s
	LEFT JOIN customers c ON c.id = s.customer_id
	LEFT JOIN users u ON u.id = s.seller_id`

// Repository provides PostgreSQL backed persistence for sales operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	reservations.TxRepository
	customers customers.TxRepository
	tx        inventory.DBTX
}

// NewTxRepository composes the product, reservation, customer and sale queries over one tx.
func NewTxRepository(tx inventory.DBTX) TxRepository {
	return &txRepo{
		TxRepository: reservations.NewTxRepository(tx),
		customers:    customers.NewTxRepository(tx),
		tx:           tx,
	}
}

// WithTx wraps callback in a ledger transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (t *txRepo) GetCustomer(ctx context.Context, id int64) (customers.Customer, error) {
	return t.customers.GetCustomer(ctx, id)
}

func (t *txRepo) FindCustomerByDNI(ctx context.Context, dni string) (customers.Customer, error) {
	return t.customers.FindCustomerByDNI(ctx, dni)
}

func (t *txRepo) FindCustomerByNameKey(ctx context.Context, key string) (customers.Customer, error) {
	return t.customers.FindCustomerByNameKey(ctx, key)
}

func (t *txRepo) InsertCustomer(ctx context.Context, c customers.Customer, nameKey string) (customers.Customer, error) {
	return t.customers.InsertCustomer(ctx, c, nameKey)
}

func (t *txRepo) CodeExists(ctx context.Context, kind codes.Kind, code string) (bool, error) {
	return codes.Exists(ctx, t.tx, kind, code)
}

func (t *txRepo) InsertSale(ctx context.Context, s Sale) (Sale, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO sales
		(code, customer_id, seller_id, status, payment_method, subtotal, discount, tax, total, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`,
		s.Code, s.CustomerID, s.SellerID, string(s.Status), string(s.PaymentMethod),
		s.Subtotal, s.Discount, s.Tax, s.Total, s.Notes,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Sale{}, customers.ErrNotFound
		}
		return Sale{}, err
	}
	return s, nil
}

func (t *txRepo) InsertSaleItem(ctx context.Context, item SaleItem) (SaleItem, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		item.SaleID, item.ProductID, item.Quantity, item.UnitPrice, item.Subtotal,
	).Scan(&item.ID)
	if err != nil {
		return SaleItem{}, err
	}
	return item, nil
}

// GetSaleByCode loads the sale header and its items in insertion order.
func (r *Repository) GetSaleByCode(ctx context.Context, code string) (Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+saleFrom+` WHERE s.code = $1`, code))
	if err != nil {
		return Sale{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.sale_id, i.product_id, p.code, p.name, i.quantity, i.unit_price, i.subtotal
		FROM sale_items i JOIN products p ON p.id = i.product_id
		WHERE i.sale_id = $1 ORDER BY i.id`, sale.ID)
	if err != nil {
		return Sale{}, fmt.Errorf("sales: list items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductCode, &item.ProductName,
			&item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return Sale{}, err
		}
		sale.Items = append(sale.Items, item)
	}
	return sale, rows.Err()
}

// ListSales returns headers newest first together with the unpaged count.
func (r *Repository) ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	var (
		conditions []string
		args       []any
	)
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conditions = append(conditions, fmt.Sprintf("s.created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conditions = append(conditions, fmt.Sprintf("s.created_at <= $%d", len(args)))
	}
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		conditions = append(conditions, fmt.Sprintf("s.customer_id = $%d", len(args)))
	}
	if filter.SellerID != nil {
		args = append(args, *filter.SellerID)
		conditions = append(conditions, fmt.Sprintf("s.seller_id = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales s`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sales: count: %w", err)
	}
	args = append(args, filter.Limit, filter.Offset)
	query := `SELECT ` + saleColumns + saleFrom + where +
		fmt.Sprintf(` ORDER BY s.created_at DESC, s.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sales: list: %w", err)
	}
	defer rows.Close()
	var out []Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sale)
	}
	return out, total, rows.Err()
}

func scanSale(row pgx.Row) (Sale, error) {
	var (
		s              Sale
		status, method string
	)
	err := row.Scan(&s.ID, &s.Code, &s.CustomerID, &s.SellerID, &status, &method,
		&s.Subtotal, &s.Discount, &s.Tax, &s.Total, &s.Notes, &s.CreatedAt,
		&s.CustomerName, &s.CustomerDNI, &s.SellerName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrNotFound
		}
		return Sale{}, err
	}
	s.Status = Status(status)
	s.PaymentMethod = PaymentMethod(method)
	return s, nil
}

var _ RepositoryPort = (*Repository)(nil)
