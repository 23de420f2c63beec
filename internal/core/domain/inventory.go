package domain

import "time"

// LowStockThreshold is the item-wide quantity below which a stock_low event is raised.
const LowStockThreshold = 10

type InventoryItem struct {
	ID        int64     `db:"id" json:"id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	Type      string    `db:"type" json:"type"`
	Unit      string    `db:"unit" json:"unit"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// StockEntry is the quantity of one item held at one location.
// CreatedAt defines FIFO order; ties are broken by ID.
type StockEntry struct {
	ID        int64     `db:"id" json:"id"`
	ItemID    int64     `db:"item_id" json:"itemId"`
	Location  string    `db:"location" json:"location"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
