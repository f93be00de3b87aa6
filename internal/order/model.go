package order

import "time"

// Order is one committed submission. Rows are immutable once created; the
// stored total_price is the snapshot charged at submit time, while admin
// views recompute against the current tier.
type Order struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Name       string    `json:"name"`
	Department string    `json:"department"`
	QtyA       int64     `json:"qty_a"`
	QtyB       int64     `json:"qty_b"`
	TotalPrice int64     `json:"total_price"`
}
