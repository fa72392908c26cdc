package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/evimparca-cloud/stock-sub001/internal/models"
	"github.com/evimparca-cloud/stock-sub001/internal/store"
	"github.com/evimparca-cloud/stock-sub001/internal/util"

	"go.uber.org/zap"
)

// webhookLogStore is the slice of the store the webhook processor
// needs; kept narrow so tests can fake it in memory.
type webhookLogStore interface {
	CreateWebhookLog(ctx context.Context, w *models.WebhookLog) error
	GetWebhookLog(ctx context.Context, id int64) (*models.WebhookLog, error)
	ListWebhookLogs(ctx context.Context, status models.WebhookStatus, limit int) ([]models.WebhookLog, error)
	MarkWebhookProcessing(ctx context.Context, id int64) error
	MarkWebhookSuccess(ctx context.Context, id int64) error
	MarkWebhookFailed(ctx context.Context, id int64, errMsg string) error
	MarkWebhookIgnored(ctx context.Context, id int64, reason string) error
	ResetWebhookForRetry(ctx context.Context, id int64) error
	DeleteWebhookLog(ctx context.Context, id int64) error
}

// Outcome is the in-band result of webhook processing. The HTTP layer
// always answers 200; failures travel in here.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// WebhookService runs the log-then-process state machine for inbound
// webhook calls: every delivery is persisted PENDING before any work,
// then driven to a terminal SUCCESS, FAILED or IGNORED state. FAILED
// entries can be replayed through the same processing function.
type WebhookService struct {
	logs     webhookLogStore
	ingestor Ingestor
	counters CounterStore
	logger   *zap.Logger
}

// NewWebhookService creates a new webhook service
func NewWebhookService(logs webhookLogStore, ingestor Ingestor, counters CounterStore) *WebhookService {
	return &WebhookService{
		logs:     logs,
		ingestor: ingestor,
		counters: counters,
		logger:   util.GetLogger(),
	}
}

// Process handles one inbound webhook call end to end. It never
// returns an error: every failure mode is captured in the Outcome and
// in the persisted log entry.
func (s *WebhookService) Process(ctx context.Context, marketplaceID string, body []byte) Outcome {
	ctx, span := util.StartSpan(ctx, "WebhookService.Process")
	defer span.End()

	start := time.Now()
	defer func() {
		util.WebhookProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	var env models.WebhookEnvelope
	parseErr := json.Unmarshal(body, &env)

	entry := &models.WebhookLog{
		MarketplaceID: marketplaceID,
		EventType:     env.EventType,
		Payload:       body,
	}
	if err := s.logs.CreateWebhookLog(ctx, entry); err != nil {
		// Without the log row there is nothing to replay; this is the
		// one failure that surfaces before the state machine starts.
		s.logger.Error("Failed to persist webhook log", zap.Error(err))
		return Outcome{Success: false, Message: "failed to persist webhook", Error: err.Error()}
	}

	util.WebhooksReceivedTotal.WithLabelValues(env.EventType).Inc()

	if parseErr != nil {
		return s.fail(ctx, entry, marketplaceID, fmt.Sprintf("invalid payload: %v", parseErr))
	}

	return s.run(ctx, entry, &env)
}

// Retry replays a failed entry through the same processing function
// used on original receipt.
func (s *WebhookService) Retry(ctx context.Context, logID int64) Outcome {
	ctx, span := util.StartSpan(ctx, "WebhookService.Retry")
	defer span.End()

	entry, err := s.logs.GetWebhookLog(ctx, logID)
	if err != nil {
		return Outcome{Success: false, Message: "webhook log not found", Error: err.Error()}
	}
	if entry.Status != models.WebhookFailed {
		return Outcome{Success: false, Message: fmt.Sprintf("entry is %s, only FAILED entries can be retried", entry.Status)}
	}

	if err := s.logs.ResetWebhookForRetry(ctx, entry.ID); err != nil {
		return Outcome{Success: false, Message: "failed to reset entry", Error: err.Error()}
	}
	entry.Status = models.WebhookPending

	var env models.WebhookEnvelope
	if err := json.Unmarshal(entry.Payload, &env); err != nil {
		return s.fail(ctx, entry, entry.MarketplaceID, fmt.Sprintf("invalid payload: %v", err))
	}
	return s.run(ctx, entry, &env)
}

// Delete removes a webhook log entry.
func (s *WebhookService) Delete(ctx context.Context, logID int64) error {
	return s.logs.DeleteWebhookLog(ctx, logID)
}

// List returns webhook log entries for the operator review surface.
func (s *WebhookService) List(ctx context.Context, status models.WebhookStatus, limit int) ([]models.WebhookLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.logs.ListWebhookLogs(ctx, status, limit)
}

// run drives a PENDING entry to its terminal state.
func (s *WebhookService) run(ctx context.Context, entry *models.WebhookLog, env *models.WebhookEnvelope) Outcome {
	if err := s.logs.MarkWebhookProcessing(ctx, entry.ID); err != nil {
		return Outcome{Success: false, Message: "failed to start processing", Error: err.Error()}
	}

	switch env.EventType {
	case models.EventOrderCreated, models.EventOrderNew:
		return s.handleOrderCreated(ctx, entry, env)

	case models.EventOrderUpdated, models.EventOrderStatusChanged:
		return s.handleStatusChanged(ctx, entry, env)

	case models.EventOrderCancelled:
		return s.handleOrderCancelled(ctx, entry, env)

	case models.EventStockUpdated:
		return s.ignore(ctx, entry, "stock.updated ignored, local ledger is authoritative")

	default:
		return s.ignore(ctx, entry, fmt.Sprintf("unhandled event type: %s", env.EventType))
	}
}

func (s *WebhookService) handleOrderCreated(ctx context.Context, entry *models.WebhookLog, env *models.WebhookEnvelope) Outcome {
	pkg, err := models.ParseRemotePackage(env.Data)
	if err != nil {
		return s.fail(ctx, entry, entry.MarketplaceID, err.Error())
	}

	created, err := s.ingestor.CreateOrder(ctx, entry.MarketplaceID, pkg)
	if err != nil {
		return s.fail(ctx, entry, entry.MarketplaceID, err.Error())
	}

	if created {
		return s.succeed(ctx, entry, fmt.Sprintf("order %s created", pkg.OrderNumber))
	}
	return s.succeed(ctx, entry, fmt.Sprintf("order %s already exists", pkg.OrderNumber))
}

func (s *WebhookService) handleStatusChanged(ctx context.Context, entry *models.WebhookLog, env *models.WebhookEnvelope) Outcome {
	pkg, err := models.ParseRemotePackage(env.Data)
	if err != nil {
		return s.fail(ctx, entry, entry.MarketplaceID, err.Error())
	}

	order, err := s.ingestor.GetOrder(ctx, pkg.OrderNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.fail(ctx, entry, entry.MarketplaceID,
				fmt.Sprintf("order %s not found, replay after creation", pkg.OrderNumber))
		}
		return s.fail(ctx, entry, entry.MarketplaceID, err.Error())
	}

	changed, err := s.ingestor.ApplyStatus(ctx, order, pkg.Status)
	if err != nil {
		return s.fail(ctx, entry, entry.MarketplaceID, err.Error())
	}

	if changed {
		return s.succeed(ctx, entry, fmt.Sprintf("order %s status updated to %s", pkg.OrderNumber, order.Status))
	}
	return s.succeed(ctx, entry, fmt.Sprintf("order %s status unchanged", pkg.OrderNumber))
}

func (s *WebhookService) handleOrderCancelled(ctx context.Context, entry *models.WebhookLog, env *models.WebhookEnvelope) Outcome {
	pkg, err := models.ParseRemotePackage(env.Data)
	if err != nil {
		return s.fail(ctx, entry, entry.MarketplaceID, err.Error())
	}

	order, err := s.ingestor.GetOrder(ctx, pkg.OrderNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.fail(ctx, entry, entry.MarketplaceID,
				fmt.Sprintf("order %s not found, replay after creation", pkg.OrderNumber))
		}
		return s.fail(ctx, entry, entry.MarketplaceID, err.Error())
	}

	cancelled, err := s.ingestor.CancelOrder(ctx, order, pkg.Status)
	if err != nil {
		return s.fail(ctx, entry, entry.MarketplaceID, err.Error())
	}

	if cancelled {
		return s.succeed(ctx, entry, fmt.Sprintf("order %s cancelled, stock restored", pkg.OrderNumber))
	}
	return s.succeed(ctx, entry, fmt.Sprintf("order %s already cancelled", pkg.OrderNumber))
}

func (s *WebhookService) succeed(ctx context.Context, entry *models.WebhookLog, message string) Outcome {
	if err := s.logs.MarkWebhookSuccess(ctx, entry.ID); err != nil {
		s.logger.Error("Failed to mark webhook success", zap.Int64("id", entry.ID), zap.Error(err))
	}
	util.WebhooksProcessedTotal.WithLabelValues(string(models.WebhookSuccess)).Inc()
	return Outcome{Success: true, Message: message}
}

func (s *WebhookService) fail(ctx context.Context, entry *models.WebhookLog, marketplaceID, errMsg string) Outcome {
	if err := s.logs.MarkWebhookFailed(ctx, entry.ID, errMsg); err != nil {
		s.logger.Error("Failed to mark webhook failed", zap.Int64("id", entry.ID), zap.Error(err))
	}
	util.WebhooksProcessedTotal.WithLabelValues(string(models.WebhookFailed)).Inc()

	count, err := s.counters.Incr(ctx, "webhook:failed:"+marketplaceID, 24*time.Hour)
	if err != nil {
		s.logger.Warn("Failed to track webhook failure count", zap.Error(err))
	} else if count >= 10 {
		s.logger.Warn("Elevated webhook failure count",
			zap.String("marketplace_id", marketplaceID),
			zap.Int64("failures_24h", count))
	}

	s.logger.Error("Webhook processing failed",
		zap.Int64("id", entry.ID),
		zap.String("event_type", entry.EventType),
		zap.String("error", errMsg))
	return Outcome{Success: false, Message: "processing failed", Error: errMsg}
}

func (s *WebhookService) ignore(ctx context.Context, entry *models.WebhookLog, reason string) Outcome {
	if err := s.logs.MarkWebhookIgnored(ctx, entry.ID, reason); err != nil {
		s.logger.Error("Failed to mark webhook ignored", zap.Int64("id", entry.ID), zap.Error(err))
	}
	util.WebhooksProcessedTotal.WithLabelValues(string(models.WebhookIgnored)).Inc()
	return Outcome{Success: true, Message: reason}
}
