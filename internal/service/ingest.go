package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evimparca-cloud/stock-sub001/internal/matcher"
	"github.com/evimparca-cloud/stock-sub001/internal/models"
	"github.com/evimparca-cloud/stock-sub001/internal/store"
	"github.com/evimparca-cloud/stock-sub001/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const stockCacheTTL = time.Hour

// IngestService is the single mutation path both ingestion paths feed
// into: it matches lines, applies ledger-backed stock mutations and
// reconciles status transitions. Public operations return outcome
// values; duplicates and unmatched lines are normal results, not
// errors.
type IngestService struct {
	store             *store.Store
	matcher           *matcher.Matcher
	notifier          Notifier
	cache             StockCache
	lowStockThreshold int
	logger            *zap.Logger
}

// NewIngestService creates a new ingest service
func NewIngestService(st *store.Store, m *matcher.Matcher, notifier Notifier, cache StockCache, lowStockThreshold int) *IngestService {
	return &IngestService{
		store:             st,
		matcher:           m,
		notifier:          notifier,
		cache:             cache,
		lowStockThreshold: lowStockThreshold,
		logger:            util.GetLogger(),
	}
}

// GetOrder retrieves an order by its marketplace order id.
func (s *IngestService) GetOrder(ctx context.Context, marketplaceOrderID string) (*models.Order, error) {
	return s.store.GetOrderByMarketplaceOrderID(ctx, marketplaceOrderID)
}

// CreateOrder creates a local order from a remote package, idempotent
// on the marketplace order id. Returns false when the order already
// existed (or lost a concurrent creation race), which callers treat as
// success.
func (s *IngestService) CreateOrder(ctx context.Context, marketplaceID string, pkg *models.RemotePackage) (bool, error) {
	ctx, span := util.StartSpan(ctx, "IngestService.CreateOrder")
	defer span.End()

	existing, err := s.store.GetOrderByMarketplaceOrderID(ctx, pkg.OrderNumber)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("failed to check existing order: %w", err)
	}
	if existing != nil {
		s.logger.Info("Order already exists, skipping creation",
			zap.String("marketplace_order_id", pkg.OrderNumber))
		return false, nil
	}

	order := &models.Order{
		MarketplaceOrderID:    pkg.OrderNumber,
		MarketplaceID:         marketplaceID,
		Status:                StatusFromRemote(pkg.Status),
		ShipmentPackageStatus: pkg.Status,
		TotalAmount:           pkg.TotalAmount,
		OrderDate:             pkg.OrderDate,
		CustomerName:          pkg.CustomerName,
		CustomerEmail:         pkg.CustomerEmail,
		ShippingAddress:       pkg.ShippingAddress,
	}

	items := make([]models.OrderItem, 0, len(pkg.Lines))
	ops := make([]store.StockOp, 0, len(pkg.Lines))
	for _, line := range pkg.Lines {
		mapping, err := s.matcher.Resolve(ctx, marketplaceID, line)
		if err != nil {
			return false, fmt.Errorf("failed to resolve line %q: %w", line.Barcode, err)
		}

		items = append(items, models.OrderItem{
			MappingID: mapping.ID,
			ProductID: mapping.ProductID,
			RemoteSKU: line.Barcode,
			Name:      line.ProductName,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})

		if mapping.SyncStock {
			ops = append(ops, store.StockOp{
				ProductID: mapping.ProductID,
				Quantity:  line.Quantity,
				Type:      models.StockLogSale,
				Reason:    "marketplace sale",
				Reference: pkg.OrderNumber,
				CreatedBy: "ingest",
			})
		}
	}

	if order.TotalAmount.IsZero() {
		order.TotalAmount = sumLineTotals(items)
	}

	results, err := s.store.CreateOrderTx(ctx, order, items, ops)
	if err != nil {
		if errors.Is(err, store.ErrOrderExists) {
			s.logger.Info("Lost creation race, order created elsewhere",
				zap.String("marketplace_order_id", pkg.OrderNumber))
			return false, nil
		}
		return false, fmt.Errorf("failed to persist order: %w", err)
	}

	util.OrdersIngestedTotal.WithLabelValues(marketplaceID).Inc()
	for _, res := range results {
		if res.Applied {
			util.StockMutationsTotal.WithLabelValues(string(models.StockLogSale)).Inc()
		}
	}
	s.logger.Info("Order ingested",
		zap.String("marketplace_order_id", order.MarketplaceOrderID),
		zap.Int64("order_id", order.ID),
		zap.Int("lines", len(items)),
		zap.Int("stock_mutations", len(results)))

	s.notifier.NotifyNewOrder(ctx, order)
	s.refreshStockCache(ctx, results)
	s.notifyLowStock(ctx, results)

	return true, nil
}

// ApplyStatus reconciles a freshly seen marketplace status against an
// existing order. Only an actual canonical transition persists a status
// change and emits a notification; a transition into CANCELLED is
// re-routed to the cancellation path.
func (s *IngestService) ApplyStatus(ctx context.Context, order *models.Order, remoteStatus string) (bool, error) {
	ctx, span := util.StartSpan(ctx, "IngestService.ApplyStatus")
	defer span.End()

	newStatus := StatusFromRemote(remoteStatus)

	if newStatus == models.StatusCancelled && !order.Status.Refunded() {
		return s.CancelOrder(ctx, order, remoteStatus)
	}

	if newStatus == order.Status {
		if remoteStatus != order.ShipmentPackageStatus {
			// Raw status moved within the same canonical state; keep it
			// for traceability without acting on it.
			if err := s.store.UpdateOrderStatus(ctx, order.ID, order.Status, remoteStatus); err != nil {
				return false, fmt.Errorf("failed to update shipment status: %w", err)
			}
			order.ShipmentPackageStatus = remoteStatus
		}
		return false, nil
	}

	oldStatus := order.Status
	if err := s.store.UpdateOrderStatus(ctx, order.ID, newStatus, remoteStatus); err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	order.Status = newStatus
	order.ShipmentPackageStatus = remoteStatus

	s.logger.Info("Order status changed",
		zap.String("marketplace_order_id", order.MarketplaceOrderID),
		zap.String("old", string(oldStatus)),
		zap.String("new", string(newStatus)))

	s.notifier.NotifyStatusChange(ctx, order, oldStatus, newStatus)
	return true, nil
}

// CancelOrder transitions an order into CANCELLED and restores stock
// for every syncable line, exactly once. An order that already refunded
// its stock is a logged no-op.
func (s *IngestService) CancelOrder(ctx context.Context, order *models.Order, remoteStatus string) (bool, error) {
	ctx, span := util.StartSpan(ctx, "IngestService.CancelOrder")
	defer span.End()

	if order.Status.Refunded() {
		s.logger.Info("Cancellation for already-refunded order, no-op",
			zap.String("marketplace_order_id", order.MarketplaceOrderID),
			zap.String("status", string(order.Status)))
		return false, nil
	}

	items, err := s.store.GetOrderItemDetails(ctx, order.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load order items: %w", err)
	}

	ops := make([]store.StockOp, 0, len(items))
	for _, item := range items {
		if !item.SyncStock {
			continue
		}
		ops = append(ops, store.StockOp{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Type:      models.StockLogCancel,
			Reason:    "order cancelled",
			Reference: order.MarketplaceOrderID,
			CreatedBy: "ingest",
		})
	}

	if remoteStatus == "" {
		remoteStatus = "Cancelled"
	}
	results, err := s.store.RestoreStockTx(ctx, order.ID, models.StatusCancelled, remoteStatus, ops)
	if err != nil {
		return false, fmt.Errorf("failed to restore stock: %w", err)
	}

	oldStatus := order.Status
	order.Status = models.StatusCancelled
	order.ShipmentPackageStatus = remoteStatus

	restored := 0
	for _, res := range results {
		if res.Applied {
			restored++
			util.StockMutationsTotal.WithLabelValues(string(models.StockLogCancel)).Inc()
		}
	}
	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled",
		zap.String("marketplace_order_id", order.MarketplaceOrderID),
		zap.Int("lines_restored", restored))

	s.notifier.NotifyStatusChange(ctx, order, oldStatus, models.StatusCancelled)
	s.refreshStockCache(ctx, results)
	return true, nil
}

// DeleteOrder removes an order after restoring its stock. Stock is
// restored only when the order has not already refunded it.
func (s *IngestService) DeleteOrder(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "IngestService.DeleteOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	if !order.Status.Refunded() {
		if _, err := s.CancelOrder(ctx, order, order.ShipmentPackageStatus); err != nil {
			return fmt.Errorf("failed to restore stock before deletion: %w", err)
		}
	}

	if err := s.store.DeleteOrderTx(ctx, orderID); err != nil {
		return err
	}

	s.logger.Info("Order deleted",
		zap.Int64("order_id", orderID),
		zap.String("marketplace_order_id", order.MarketplaceOrderID))
	return nil
}

// AdjustStock applies a manual stock correction through the ledger.
func (s *IngestService) AdjustStock(ctx context.Context, productID int64, quantity int, t models.StockLogType, reason, createdBy string) (store.StockResult, error) {
	ctx, span := util.StartSpan(ctx, "IngestService.AdjustStock")
	defer span.End()

	switch t {
	case models.StockLogEntry, models.StockLogExit, models.StockLogAdjustment, models.StockLogReturn:
	default:
		return store.StockResult{}, fmt.Errorf("stock log type %q is not a manual adjustment", t)
	}

	res, err := s.store.ApplyAdjustmentTx(ctx, store.StockOp{
		ProductID: productID,
		Quantity:  quantity,
		Type:      t,
		Reason:    reason,
		CreatedBy: createdBy,
	})
	if err != nil {
		return store.StockResult{}, err
	}

	util.StockMutationsTotal.WithLabelValues(string(t)).Inc()
	s.refreshStockCache(ctx, []store.StockResult{res})
	s.notifyLowStock(ctx, []store.StockResult{res})
	return res, nil
}

// refreshStockCache pushes applied quantities into the advisory cache.
// Cache failures never fail the mutation that produced them.
func (s *IngestService) refreshStockCache(ctx context.Context, results []store.StockResult) {
	for _, res := range results {
		if !res.Applied {
			continue
		}
		if err := s.cache.CacheStockQuantity(ctx, res.ProductID, res.NewStock, stockCacheTTL); err != nil {
			s.logger.Warn("Failed to refresh stock cache",
				zap.Int64("product_id", res.ProductID), zap.Error(err))
		}
	}
}

func (s *IngestService) notifyLowStock(ctx context.Context, results []store.StockResult) {
	for _, res := range results {
		if !res.Applied || res.NewStock > s.lowStockThreshold || res.NewStock >= res.OldStock {
			continue
		}
		product, err := s.store.GetProductByID(ctx, res.ProductID)
		if err != nil {
			s.logger.Warn("Failed to load product for low stock notification",
				zap.Int64("product_id", res.ProductID), zap.Error(err))
			continue
		}
		s.notifier.NotifyLowStock(ctx, res.ProductID, product.SKU, res.NewStock)
	}
}

func sumLineTotals(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}
