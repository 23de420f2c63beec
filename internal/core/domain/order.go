package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusFulfilled OrderStatus = "FULFILLED"
)

type Order struct {
	ID          int64       `db:"id" json:"id"`
	OrderNumber string      `db:"order_number" json:"orderNumber"`
	Status      OrderStatus `db:"status" json:"status"`
	Items       []OrderItem `db:"-" json:"items"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updatedAt"`
}

// OrderItem is one immutable line of an order.
type OrderItem struct {
	ID       int64 `db:"id" json:"id"`
	OrderID  int64 `db:"order_id" json:"orderId"`
	ItemID   int64 `db:"item_id" json:"itemId"`
	Quantity int   `db:"quantity" json:"quantity"`
}

// OrderLine is a requested line when registering an order.
type OrderLine struct {
	ItemID   int64 `json:"itemId"`
	Quantity int   `json:"quantity"`
}

func (o *Order) IsPending() bool {
	return o.Status == OrderStatusPending
}
