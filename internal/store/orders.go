package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/evimparca-cloud/stock-sub001/internal/models"
)

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByMarketplaceOrderID retrieves an order by its marketplace
// order id, the idempotency key of the pipeline.
func (s *Store) GetOrderByMarketplaceOrderID(ctx context.Context, marketplaceOrderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE marketplace_order_id = $1", marketplaceOrderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", marketplaceOrderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus persists a new canonical status together with the
// raw marketplace status string kept for traceability.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status models.Status, shipmentPackageStatus string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, shipment_package_status = $2, updated_at = NOW() WHERE id = $3",
		status, shipmentPackageStatus, orderID)
	return err
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// GetOrderItemDetails retrieves the items of an order joined with the
// sync flag of each item's mapping.
func (s *Store) GetOrderItemDetails(ctx context.Context, orderID int64) ([]models.OrderItemDetail, error) {
	var items []models.OrderItemDetail
	err := s.db.SelectContext(ctx, &items, `
		SELECT oi.*, pm.sync_stock
		FROM order_items oi
		JOIN product_mappings pm ON pm.id = oi.mapping_id
		WHERE oi.order_id = $1`, orderID)
	return items, err
}

// DeleteOrderTx removes an order and its items in one transaction.
// Stock ledger rows are kept; their order reference is detached by the
// ON DELETE SET NULL constraint so the audit trail survives deletion.
func (s *Store) DeleteOrderTx(ctx context.Context, orderID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM order_items WHERE order_id = $1", orderID); err != nil {
		return fmt.Errorf("failed to delete order items: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", orderID)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}

	return tx.Commit()
}
