package order

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/groupbuy-api/internal/aggregate"
)

// Store persists orders in Postgres.
type Store struct {
	Pool *pgxpool.Pool
}

const insertOrderSQL = `
INSERT INTO orders (id, name, department, qty_a, qty_b, total_price)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`

// Insert writes the order and fills in the server-assigned id and timestamp.
func (s *Store) Insert(ctx context.Context, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	row := s.Pool.QueryRow(ctx, insertOrderSQL, o.ID, o.Name, o.Department, o.QtyA, o.QtyB, o.TotalPrice)
	if err := row.Scan(&o.CreatedAt); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

const listOrdersSQL = `
SELECT id, created_at, name, department, qty_a, qty_b, total_price
FROM orders
ORDER BY created_at DESC, id
LIMIT $1 OFFSET $2`

// List returns orders newest first.
func (s *Store) List(ctx context.Context, limit, offset int32) ([]Order, error) {
	rows, err := s.Pool.Query(ctx, listOrdersSQL, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.CreatedAt, &o.Name, &o.Department, &o.QtyA, &o.QtyB, &o.TotalPrice); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Count returns the number of stored orders.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return total, nil
}

const sumQuantitiesSQL = `
SELECT COALESCE(SUM(qty_a), 0), COALESCE(SUM(qty_b), 0)
FROM orders`

// SumQuantities performs the authoritative full read used to seed and
// reconcile aggregate trackers.
func (s *Store) SumQuantities(ctx context.Context) (aggregate.Totals, error) {
	var totals aggregate.Totals
	if err := s.Pool.QueryRow(ctx, sumQuantitiesSQL).Scan(&totals.VariantA, &totals.VariantB); err != nil {
		return aggregate.Totals{}, fmt.Errorf("sum quantities: %w", err)
	}
	return totals, nil
}
