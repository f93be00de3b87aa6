package events

import "time"

// Topic constants for notifications fanned out over the push channel.
const (
	TopicOrderCreated      = "orders.created"
	TopicAggregateSnapshot = "aggregate.snapshot"
	TopicSettingChanged    = "settings.changed"
)

// OrderCreated is published after an order row is committed. Consumers apply
// the quantity deltas to their local aggregate.
type OrderCreated struct {
	OrderID    string    `json:"order_id"`
	QtyA       int64     `json:"qty_a"`
	QtyB       int64     `json:"qty_b"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AggregateSnapshot carries the authoritative sums read from the store; it
// re-anchors trackers that may have drifted from redelivered or missed
// insert notifications.
type AggregateSnapshot struct {
	VariantA int64     `json:"variant_a"`
	VariantB int64     `json:"variant_b"`
	TakenAt  time.Time `json:"taken_at"`
}

// SettingChanged announces an admin-mutable setting update.
type SettingChanged struct {
	Key   string `json:"key"`
	Value bool   `json:"value"`
}
