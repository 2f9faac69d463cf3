package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository reads audit_logs.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Timeline returns rows newest first. Empty filters are ignored.
func (r *PostgresRepository) Timeline(ctx context.Context, q Query) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.occurred_at, a.actor_id, COALESCE(u.username, ''),
			a.action, a.entity, a.entity_id, a.meta
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.actor_id
		WHERE ($1::timestamptz IS NULL OR a.occurred_at >= $1)
		  AND ($2::timestamptz IS NULL OR a.occurred_at < $2)
		  AND ($3::bigint IS NULL OR a.actor_id = $3)
		  AND ($4 = '' OR a.entity = $4)
		  AND ($5 = '' OR a.action = $5)
		ORDER BY a.occurred_at DESC, a.id DESC
		OFFSET $6 LIMIT $7`,
		nullableTime(q.From), nullableTime(q.To), q.ActorID, q.Entity, q.Action, q.Offset, q.Limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var t TimelineRow
		err := row.Scan(&t.ID, &t.At, &t.ActorID, &t.Actor, &t.Action, &t.Entity, &t.EntityID, &t.Meta)
		return t, err
	})
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
