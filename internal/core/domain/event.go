package domain

import "time"

type EventType string

const (
	EventItemReserved   EventType = "item_reserved"
	EventStockLow       EventType = "stock_low"
	EventOrderFulfilled EventType = "order_fulfilled"
	EventOrderCreated   EventType = "order_created"
	EventStockAdded     EventType = "stock_added"
	EventItemCreated    EventType = "item_created"
)

// Event is an append-only audit record. IDs increase monotonically.
type Event struct {
	ID      int64          `json:"id"`
	Type    EventType      `json:"type"`
	At      time.Time      `json:"at"`
	Details map[string]any `json:"details,omitempty"`
}
