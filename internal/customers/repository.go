package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

const customerColumns = `id, dni, name, phone, email, address, is_active, created_at`

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *Repository) Get(ctx context.Context, id int64) (Customer, error) {
	return NewTxRepository(r.pool).GetCustomer(ctx, id)
}

func (r *Repository) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	var (
		conditions []string
		args       []any
	)
	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR dni ILIKE $%d OR email ILIKE $%d)", len(args), len(args), len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, req.Offset)
	query := fmt.Sprintf(`SELECT %s FROM customers %s ORDER BY name, id LIMIT $%d OFFSET $%d`, customerColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

type txRepository struct {
	db dbtx
}

// NewTxRepository wraps a transaction (or pool) with customer queries.
func NewTxRepository(tx dbtx) TxRepository {
	return &txRepository{db: tx}
}

func (t *txRepository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return scanCustomer(t.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
}

func (t *txRepository) FindCustomerByDNI(ctx context.Context, dni string) (Customer, error) {
	return scanCustomer(t.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE dni = $1`, dni))
}

func (t *txRepository) FindCustomerByNameKey(ctx context.Context, key string) (Customer, error) {
	return scanCustomer(t.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE dni IS NULL AND name_key = $1`, key))
}

// InsertCustomer uses ON CONFLICT DO NOTHING so a lost race does not abort the caller's
// transaction.
func (t *txRepository) InsertCustomer(ctx context.Context, c Customer, nameKey string) (Customer, error) {
	row := t.db.QueryRow(ctx, `INSERT INTO customers (dni, name, name_key, phone, email, address, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING
		RETURNING `+customerColumns,
		c.DNI, c.Name, nameKey, c.Phone, c.Email, c.Address, c.IsActive)
	created, err := scanCustomer(row)
	if errors.Is(err, ErrNotFound) {
		return Customer{}, ErrDuplicate
	}
	return created, err
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	if err := row.Scan(&c.ID, &c.DNI, &c.Name, &c.Phone, &c.Email, &c.Address, &c.IsActive, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, err
	}
	return c, nil
}
