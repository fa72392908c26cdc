package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the canonical local order status. Every marketplace status
// string is mapped into one of these before the engine acts on it.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
)

// Refunded returns true when stock for the order has already been given
// back. Orders in these states must never be refunded a second time.
func (s Status) Refunded() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// StockLogType classifies a stock mutation.
type StockLogType string

const (
	StockLogSale       StockLogType = "SALE"
	StockLogCancel     StockLogType = "CANCEL"
	StockLogReturn     StockLogType = "RETURN"
	StockLogEntry      StockLogType = "ENTRY"
	StockLogExit       StockLogType = "EXIT"
	StockLogAdjustment StockLogType = "ADJUSTMENT"
)

// WebhookStatus is the processing state of a received webhook call.
type WebhookStatus string

const (
	WebhookPending    WebhookStatus = "PENDING"
	WebhookProcessing WebhookStatus = "PROCESSING"
	WebhookSuccess    WebhookStatus = "SUCCESS"
	WebhookFailed     WebhookStatus = "FAILED"
	WebhookIgnored    WebhookStatus = "IGNORED"
)

// Product is a local catalog entry. StockQuantity is mutated only through
// the stock ledger transactions in the store package.
type Product struct {
	ID             int64           `db:"id" json:"id"`
	SKU            string          `db:"sku" json:"sku"`
	Name           string          `db:"name" json:"name"`
	StockQuantity  int             `db:"stock_quantity" json:"stock_quantity"`
	Price          decimal.Decimal `db:"price" json:"price"`
	Location       string          `db:"location" json:"location"`
	Metadata       string          `db:"metadata" json:"metadata,omitempty"`
	RequiresReview bool            `db:"requires_review" json:"requires_review"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// ProductMapping links a local product to a marketplace's identifier for
// it. Unique per (product_id, marketplace_id). SyncStock=false marks a
// placeholder or unreviewed mapping whose stock must not be touched.
type ProductMapping struct {
	ID              int64     `db:"id" json:"id"`
	ProductID       int64     `db:"product_id" json:"product_id"`
	MarketplaceID   string    `db:"marketplace_id" json:"marketplace_id"`
	RemoteSKU       string    `db:"remote_sku" json:"remote_sku"`
	RemoteProductID string    `db:"remote_product_id" json:"remote_product_id,omitempty"`
	SyncStock       bool      `db:"sync_stock" json:"sync_stock"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Order is a local order record. MarketplaceOrderID is globally unique
// and acts as the idempotency key for the whole ingestion pipeline.
type Order struct {
	ID                    int64           `db:"id" json:"id"`
	MarketplaceOrderID    string          `db:"marketplace_order_id" json:"marketplace_order_id"`
	MarketplaceID         string          `db:"marketplace_id" json:"marketplace_id"`
	Status                Status          `db:"status" json:"status"`
	ShipmentPackageStatus string          `db:"shipment_package_status" json:"shipment_package_status"`
	TotalAmount           decimal.Decimal `db:"total_amount" json:"total_amount"`
	OrderDate             time.Time       `db:"order_date" json:"order_date"`
	CustomerName          string          `db:"customer_name" json:"customer_name"`
	CustomerEmail         string          `db:"customer_email" json:"customer_email,omitempty"`
	ShippingAddress       string          `db:"shipping_address" json:"shipping_address,omitempty"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem is one line of an order. Immutable after creation.
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	MappingID int64           `db:"mapping_id" json:"mapping_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	RemoteSKU string          `db:"remote_sku" json:"remote_sku"`
	Name      string          `db:"name" json:"name"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// OrderItemDetail is an order item joined with the sync flag of its
// mapping, used when building a stock restoration.
type OrderItemDetail struct {
	OrderItem
	SyncStock bool `db:"sync_stock"`
}

// StockLog is one row of the append-only stock ledger. Quantity is the
// signed delta actually applied; for any product the running sum of
// deltas equals newStock of the most recent entry.
type StockLog struct {
	ID        int64         `db:"id" json:"id"`
	ProductID int64         `db:"product_id" json:"product_id"`
	OrderID   sql.NullInt64 `db:"order_id" json:"order_id,omitempty"`
	Type      StockLogType  `db:"type" json:"type"`
	Quantity  int           `db:"quantity" json:"quantity"`
	OldStock  int           `db:"old_stock" json:"old_stock"`
	NewStock  int           `db:"new_stock" json:"new_stock"`
	Reason    string        `db:"reason" json:"reason,omitempty"`
	Reference string        `db:"reference" json:"reference,omitempty"`
	CreatedBy string        `db:"created_by" json:"created_by"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// WebhookLog is one row per received webhook call, persisted before any
// processing so deliveries are never silently lost.
type WebhookLog struct {
	ID            int64         `db:"id" json:"id"`
	MarketplaceID string        `db:"marketplace_id" json:"marketplace_id"`
	EventType     string        `db:"event_type" json:"event_type"`
	Payload       []byte        `db:"payload" json:"payload,omitempty"`
	Status        WebhookStatus `db:"status" json:"status"`
	Error         string        `db:"error" json:"error,omitempty"`
	ProcessedAt   *time.Time    `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}
