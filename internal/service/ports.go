package service

import (
	"context"
	"time"

	"github.com/evimparca-cloud/stock-sub001/internal/models"
)

// MarketplaceClient fetches normalized order/package payloads from a
// marketplace. Request signing, pagination and the rest of the
// marketplace HTTP surface live behind this port.
type MarketplaceClient interface {
	FetchPackagesByStatus(ctx context.Context, marketplaceID, remoteStatus string) ([]models.RemotePackage, error)
}

// Notifier receives structured events about ingestion outcomes. All
// methods are fire-and-forget: implementations must never fail the
// mutation that triggered them.
type Notifier interface {
	NotifyNewOrder(ctx context.Context, order *models.Order)
	NotifyStatusChange(ctx context.Context, order *models.Order, oldStatus, newStatus models.Status)
	NotifyLowStock(ctx context.Context, productID int64, sku string, newStock int)
}

// Locker serializes poll runs per marketplace across engine instances.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// CounterStore is an externally backed counter with TTL, replacing
// process-global counters so the engine stays stateless.
type CounterStore interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// StockCache keeps an advisory copy of product quantities for read
// surfaces. Mutation paths never consult it; the relational store is
// authoritative.
type StockCache interface {
	CacheStockQuantity(ctx context.Context, productID int64, quantity int, ttl time.Duration) error
	GetCachedStockQuantity(ctx context.Context, productID int64) (int, bool, error)
}

// Ingestor is the core mutation path shared by the webhook and poll
// ingestion paths.
type Ingestor interface {
	GetOrder(ctx context.Context, marketplaceOrderID string) (*models.Order, error)
	CreateOrder(ctx context.Context, marketplaceID string, pkg *models.RemotePackage) (bool, error)
	ApplyStatus(ctx context.Context, order *models.Order, remoteStatus string) (bool, error)
	CancelOrder(ctx context.Context, order *models.Order, remoteStatus string) (bool, error)
}
