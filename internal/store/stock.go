package store

import (
	"context"
	"fmt"

	"github.com/evimparca-cloud/stock-sub001/internal/models"

	"github.com/jmoiron/sqlx"
)

// StockOp describes one stock mutation to be applied inside a ledger
// transaction. Quantity is the positive number of units; the direction
// comes from the type (SALE/EXIT decrement, CANCEL/RETURN/ENTRY
// increment).
type StockOp struct {
	ProductID int64
	Quantity  int
	Type      models.StockLogType
	Reason    string
	Reference string
	CreatedBy string
}

// StockResult reports the outcome of one applied StockOp.
type StockResult struct {
	ProductID int64
	OldStock  int
	NewStock  int
	Applied   bool
}

func decrements(t models.StockLogType) bool {
	return t == models.StockLogSale || t == models.StockLogExit
}

// CreateOrderTx creates an order, its items and the paired stock
// decrements as one atomic unit. Returns ErrOrderExists when the
// marketplace order id is already taken, which callers treat as
// "created elsewhere, proceed to status-check".
func (s *Store) CreateOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem, ops []StockOp) ([]StockResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (marketplace_order_id, marketplace_id, status, shipment_package_status,
			total_amount, order_date, customer_name, customer_email, shipping_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err = tx.GetContext(ctx, order, query,
		order.MarketplaceOrderID, order.MarketplaceID, order.Status, order.ShipmentPackageStatus,
		order.TotalAmount, order.OrderDate, order.CustomerName, order.CustomerEmail, order.ShippingAddress)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrOrderExists
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		err := tx.GetContext(ctx, &items[i].ID, `
			INSERT INTO order_items (order_id, mapping_id, product_id, remote_sku, name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			items[i].OrderID, items[i].MappingID, items[i].ProductID, items[i].RemoteSKU,
			items[i].Name, items[i].Quantity, items[i].UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
	}

	results := make([]StockResult, 0, len(ops))
	for _, op := range ops {
		res, err := applyStockOp(ctx, tx, order.ID, op)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return results, nil
}

// RestoreStockTx sets the order's status and applies the given stock
// increments as one atomic unit. Used for cancellation refunds; each op
// is guarded against re-entry by the existing-ledger-row check, so a
// redelivered cancellation appends nothing.
func (s *Store) RestoreStockTx(ctx context.Context, orderID int64, status models.Status, shipmentPackageStatus string, ops []StockOp) ([]StockResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, shipment_package_status = $2, updated_at = NOW() WHERE id = $3",
		status, shipmentPackageStatus, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	results := make([]StockResult, 0, len(ops))
	for _, op := range ops {
		res, err := applyStockOp(ctx, tx, orderID, op)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return results, nil
}

// ApplyAdjustmentTx applies a manual, order-independent stock mutation
// (ENTRY/EXIT/ADJUSTMENT) and appends its ledger row atomically.
func (s *Store) ApplyAdjustmentTx(ctx context.Context, op StockOp) (StockResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return StockResult{}, err
	}
	defer tx.Rollback()

	res, err := mutateStock(ctx, tx, nil, op)
	if err != nil {
		return StockResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return StockResult{}, err
	}
	return res, nil
}

// applyStockOp applies one order-paired stock mutation inside tx. The
// (order_id, product_id, type) ledger lookup makes the mutation
// exactly-once: a row already present means an earlier delivery applied
// it, and the op becomes a no-op.
func applyStockOp(ctx context.Context, tx *sqlx.Tx, orderID int64, op StockOp) (StockResult, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM stock_logs WHERE order_id = $1 AND product_id = $2 AND type = $3)",
		orderID, op.ProductID, op.Type)
	if err != nil {
		return StockResult{}, fmt.Errorf("failed to check stock log: %w", err)
	}
	if exists {
		return StockResult{ProductID: op.ProductID, Applied: false}, nil
	}

	return mutateStock(ctx, tx, &orderID, op)
}

// mutateStock locks the product row, applies the clamped delta and
// appends the ledger row. newStock never goes below zero; when the
// clamp truncates a decrement the requested quantity is preserved in
// the ledger reason so the oversell signal is not lost.
func mutateStock(ctx context.Context, tx *sqlx.Tx, orderID *int64, op StockOp) (StockResult, error) {
	var oldStock int
	err := tx.GetContext(ctx, &oldStock,
		"SELECT stock_quantity FROM products WHERE id = $1 FOR UPDATE", op.ProductID)
	if err != nil {
		return StockResult{}, fmt.Errorf("failed to lock product %d: %w", op.ProductID, err)
	}

	delta := op.Quantity
	if decrements(op.Type) {
		delta = -delta
	}

	newStock := oldStock + delta
	reason := op.Reason
	if newStock < 0 {
		reason = fmt.Sprintf("%s (clamped, requested %d)", op.Reason, delta)
		newStock = 0
	}
	applied := newStock - oldStock

	_, err = tx.ExecContext(ctx,
		"UPDATE products SET stock_quantity = $1, updated_at = NOW() WHERE id = $2",
		newStock, op.ProductID)
	if err != nil {
		return StockResult{}, fmt.Errorf("failed to update stock: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_logs (product_id, order_id, type, quantity, old_stock, new_stock, reason, reference, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		op.ProductID, orderID, op.Type, applied, oldStock, newStock, reason, op.Reference, op.CreatedBy)
	if err != nil {
		return StockResult{}, fmt.Errorf("failed to append stock log: %w", err)
	}

	return StockResult{ProductID: op.ProductID, OldStock: oldStock, NewStock: newStock, Applied: true}, nil
}

// GetStockLogsByProduct returns the ledger for a product, newest first.
func (s *Store) GetStockLogsByProduct(ctx context.Context, productID int64, limit int) ([]models.StockLog, error) {
	var logs []models.StockLog
	err := s.db.SelectContext(ctx, &logs,
		"SELECT * FROM stock_logs WHERE product_id = $1 ORDER BY id DESC LIMIT $2", productID, limit)
	return logs, err
}

// HasStockLog reports whether a ledger row exists for the given
// (order, product, type) triple.
func (s *Store) HasStockLog(ctx context.Context, orderID, productID int64, t models.StockLogType) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM stock_logs WHERE order_id = $1 AND product_id = $2 AND type = $3)",
		orderID, productID, t)
	return exists, err
}
