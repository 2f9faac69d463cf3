package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository runs the report aggregates on PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PostgresRepository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const completed = `status = 'COMPLETED'`

func (r *PostgresRepository) SalesSummary(ctx context.Context, from, to time.Time) (SalesSummary, error) {
	var out SalesSummary
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(total), 0) FROM sales
		WHERE `+completed+` AND created_at >= $1 AND created_at < $2`, from, to).Scan(&out.Count, &out.Total)
	return out, err
}

func (r *PostgresRepository) LowStockCount(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products
		WHERE is_active AND stock - reserved_stock <= min_stock`).Scan(&n)
	return n, err
}

func (r *PostgresRepository) ExpiringProducts(ctx context.Context, before time.Time) ([]ExpiringProduct, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, stock, expiration_date FROM products
		WHERE is_active AND expiration_date IS NOT NULL AND expiration_date <= $1
		ORDER BY expiration_date, id`, before)
	if err != nil {
		return nil, fmt.Errorf("reports: expiring query: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ExpiringProduct, error) {
		var p ExpiringProduct
		err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Stock, &p.ExpirationDate)
		return p, err
	})
}

func (r *PostgresRepository) TopProducts(ctx context.Context, from, to time.Time, limit int) ([]TopProduct, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.code, p.name, SUM(i.quantity), SUM(i.subtotal)
		FROM sale_items i
		JOIN sales s ON s.id = i.sale_id
		JOIN products p ON p.id = i.product_id
		WHERE s.`+completed+` AND s.created_at >= $1 AND s.created_at < $2
		GROUP BY p.id, p.code, p.name
		ORDER BY SUM(i.quantity) DESC, p.id
		LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("reports: top products query: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TopProduct, error) {
		var p TopProduct
		err := row.Scan(&p.ProductID, &p.Code, &p.Name, &p.Quantity, &p.Revenue)
		return p, err
	})
}

func (r *PostgresRepository) RecentSales(ctx context.Context, limit int) ([]RecentSale, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.code, COALESCE(c.name, ''), s.payment_method, s.total, s.created_at
		FROM sales s
		LEFT JOIN customers c ON c.id = s.customer_id
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("reports: recent sales query: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (RecentSale, error) {
		var s RecentSale
		err := row.Scan(&s.Code, &s.CustomerName, &s.PaymentMethod, &s.Total, &s.CreatedAt)
		return s, err
	})
}

func (r *PostgresRepository) SalesSeries(ctx context.Context, from, to time.Time, granularity Granularity) ([]SeriesPoint, error) {
	rows, err := r.pool.Query(ctx, `SELECT date_trunc($3::text, created_at) AS period, COUNT(*), SUM(total)
		FROM sales
		WHERE `+completed+` AND created_at >= $1 AND created_at < $2
		GROUP BY period
		ORDER BY period`, from, to, string(granularity))
	if err != nil {
		return nil, fmt.Errorf("reports: series query: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (SeriesPoint, error) {
		var p SeriesPoint
		err := row.Scan(&p.Period, &p.Count, &p.Total)
		return p, err
	})
}

func (r *PostgresRepository) FrequentCustomers(ctx context.Context, from, to time.Time, limit int) ([]CustomerRank, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.name, COUNT(*), SUM(s.total)
		FROM sales s
		JOIN customers c ON c.id = s.customer_id
		WHERE s.`+completed+` AND s.created_at >= $1 AND s.created_at < $2
		GROUP BY c.id, c.name
		ORDER BY COUNT(*) DESC, SUM(s.total) DESC, c.id
		LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("reports: customers query: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (CustomerRank, error) {
		var c CustomerRank
		err := row.Scan(&c.CustomerID, &c.Name, &c.Sales, &c.Total)
		return c, err
	})
}

func (r *PostgresRepository) PurchasesBySupplier(ctx context.Context, from, to time.Time) ([]SupplierTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT sp.id, sp.name, COUNT(*), SUM(p.total)
		FROM purchases p
		JOIN suppliers sp ON sp.id = p.supplier_id
		WHERE NOT p.is_draft AND p.created_at >= $1 AND p.created_at < $2
		GROUP BY sp.id, sp.name
		ORDER BY SUM(p.total) DESC, sp.id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("reports: suppliers query: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (SupplierTotal, error) {
		var s SupplierTotal
		err := row.Scan(&s.SupplierID, &s.Name, &s.Purchases, &s.Total)
		return s, err
	})
}
