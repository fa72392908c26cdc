package broker

import (
	"context"
	"time"

	"github.com/evimparca-cloud/stock-sub001/internal/models"
	"github.com/evimparca-cloud/stock-sub001/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Notification event types published to the store-notifications topic.
const (
	NotificationOrderReceived = "order.received"
	NotificationStatusChanged = "order.status_changed"
	NotificationLowStock      = "stock.low"
)

// notificationEvent is the common envelope of all published
// notifications.
type notificationEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

type orderReceivedEvent struct {
	notificationEvent
	MarketplaceOrderID string          `json:"marketplace_order_id"`
	MarketplaceID      string          `json:"marketplace_id"`
	Status             models.Status   `json:"status"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	CustomerName       string          `json:"customer_name"`
}

type statusChangedEvent struct {
	notificationEvent
	MarketplaceOrderID string        `json:"marketplace_order_id"`
	MarketplaceID      string        `json:"marketplace_id"`
	OldStatus          models.Status `json:"old_status"`
	NewStatus          models.Status `json:"new_status"`
}

type lowStockEvent struct {
	notificationEvent
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
	NewStock  int    `json:"new_stock"`
}

// KafkaNotifier publishes ingestion notifications to Kafka. Fire and
// forget: publish failures are logged, never propagated to the
// mutation that triggered them.
type KafkaNotifier struct {
	producer *Producer
	logger   *zap.Logger
}

// NewKafkaNotifier creates a new kafka-backed notifier
func NewKafkaNotifier(producer *Producer) *KafkaNotifier {
	return &KafkaNotifier{
		producer: producer,
		logger:   util.GetLogger(),
	}
}

// NotifyNewOrder publishes an order.received notification.
func (n *KafkaNotifier) NotifyNewOrder(ctx context.Context, order *models.Order) {
	event := orderReceivedEvent{
		notificationEvent:  newEnvelope(NotificationOrderReceived),
		MarketplaceOrderID: order.MarketplaceOrderID,
		MarketplaceID:      order.MarketplaceID,
		Status:             order.Status,
		TotalAmount:        order.TotalAmount,
		CustomerName:       order.CustomerName,
	}
	n.publish(ctx, order.MarketplaceOrderID, event)
}

// NotifyStatusChange publishes an order.status_changed notification.
func (n *KafkaNotifier) NotifyStatusChange(ctx context.Context, order *models.Order, oldStatus, newStatus models.Status) {
	event := statusChangedEvent{
		notificationEvent:  newEnvelope(NotificationStatusChanged),
		MarketplaceOrderID: order.MarketplaceOrderID,
		MarketplaceID:      order.MarketplaceID,
		OldStatus:          oldStatus,
		NewStatus:          newStatus,
	}
	n.publish(ctx, order.MarketplaceOrderID, event)
}

// NotifyLowStock publishes a stock.low notification.
func (n *KafkaNotifier) NotifyLowStock(ctx context.Context, productID int64, sku string, newStock int) {
	event := lowStockEvent{
		notificationEvent: newEnvelope(NotificationLowStock),
		ProductID:         productID,
		SKU:               sku,
		NewStock:          newStock,
	}
	n.publish(ctx, sku, event)
}

func (n *KafkaNotifier) publish(ctx context.Context, key string, event interface{}) {
	if err := n.producer.PublishEvent(ctx, key, event); err != nil {
		n.logger.Error("Failed to publish notification",
			zap.String("key", key), zap.Error(err))
	}
}

func newEnvelope(eventType string) notificationEvent {
	return notificationEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
