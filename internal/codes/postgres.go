package codes

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is satisfied by pgx.Tx and *pgxpool.Pool.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var existsQueries = map[Kind]string{
	KindSale:     `SELECT EXISTS (SELECT 1 FROM sales WHERE code = $1)`,
	KindPurchase: `SELECT EXISTS (SELECT 1 FROM purchases WHERE code = $1)`,
	KindProduct:  `SELECT EXISTS (SELECT 1 FROM products WHERE code = $1)`,
}

// Exists looks the code up in the table owning kind.
func Exists(ctx context.Context, q Querier, kind Kind, code string) (bool, error) {
	query, ok := existsQueries[kind]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	var exists bool
	if err := q.QueryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
