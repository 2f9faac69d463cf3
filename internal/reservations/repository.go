package reservations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

const reservationColumns = `id, product_id, customer_id, quantity, status, expires_at, notes, created_by, created_at, updated_at`

// Repository provides PostgreSQL backed reservation persistence.
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

// GetReservation loads a reservation without locking.
func (r *Repository) GetReservation(ctx context.Context, id int64) (Reservation, error) {
	return scanReservation(r.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
}

// ListActive returns RESERVED rows, oldest first.
func (r *Repository) ListActive(ctx context.Context, filter ListFilter) ([]Reservation, error) {
	clauses := []string{"status = 'RESERVED'"}
	var args []any
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.ProductID != nil {
		args = append(args, *filter.ProductID)
		clauses = append(clauses, fmt.Sprintf("product_id = $%d", len(args)))
	}
	return r.query(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE `+strings.Join(clauses, " AND ")+` ORDER BY created_at, id`, args...)
}

// ListExpired returns RESERVED rows whose expiry is due.
func (r *Repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]Reservation, error) {
	return r.query(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE status = 'RESERVED' AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at, id LIMIT $2`, now, limit)
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

type txRepository struct {
	inventory.TxRepository
	tx inventory.DBTX
}

// NewTxRepository wraps a pgx transaction with product and reservation operations.
func NewTxRepository(tx inventory.DBTX) TxRepository {
	return &txRepository{TxRepository: inventory.NewTxRepository(tx), tx: tx}
}

func (t *txRepository) UpdateReservedStock(ctx context.Context, productID int64, reserved int) error {
	tag, err := t.tx.Exec(ctx, `UPDATE products SET reserved_stock = $2, updated_at = NOW() WHERE id = $1`, productID, reserved)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return inventory.ErrProductNotFound
	}
	return nil
}

func (t *txRepository) InsertReservation(ctx context.Context, r Reservation) (Reservation, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO reservations (product_id, customer_id, quantity, status, expires_at, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+reservationColumns,
		r.ProductID, r.CustomerID, r.Quantity, string(r.Status), r.ExpiresAt, r.Notes, r.CreatedBy)
	created, err := scanReservation(row)
	if err != nil && db.IsForeignKeyViolation(err) {
		return Reservation{}, ErrCustomerNotFound
	}
	return created, err
}

func (t *txRepository) GetReservationForUpdate(ctx context.Context, id int64) (Reservation, error) {
	return scanReservation(t.tx.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) UpdateReservation(ctx context.Context, r Reservation) (Reservation, error) {
	row := t.tx.QueryRow(ctx, `UPDATE reservations SET quantity = $2, status = $3, updated_at = NOW()
		WHERE id = $1 RETURNING `+reservationColumns, r.ID, r.Quantity, string(r.Status))
	return scanReservation(row)
}

func (t *txRepository) DeleteReservation(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) ListCustomerReservationsForUpdate(ctx context.Context, productID, customerID int64) ([]Reservation, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE product_id = $1 AND customer_id = $2 AND status = 'RESERVED'
		ORDER BY created_at, id FOR UPDATE`, productID, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanReservation(row pgx.Row) (Reservation, error) {
	var (
		r      Reservation
		status string
	)
	err := row.Scan(&r.ID, &r.ProductID, &r.CustomerID, &r.Quantity, &status, &r.ExpiresAt, &r.Notes, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, ErrNotFound
		}
		return Reservation{}, err
	}
	r.Status = Status(status)
	return r, nil
}

var _ RepositoryPort = (*Repository)(nil)
