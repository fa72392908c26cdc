package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/evimparca-cloud/stock-sub001/internal/models"
)

// CreateWebhookLog persists a received webhook call in PENDING before
// any processing happens (log-then-process).
func (s *Store) CreateWebhookLog(ctx context.Context, w *models.WebhookLog) error {
	query := `
		INSERT INTO webhook_logs (marketplace_id, event_type, payload, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	w.Status = models.WebhookPending
	return s.db.GetContext(ctx, w, query, w.MarketplaceID, w.EventType, w.Payload, w.Status)
}

// GetWebhookLog retrieves a webhook log entry by ID
func (s *Store) GetWebhookLog(ctx context.Context, id int64) (*models.WebhookLog, error) {
	var w models.WebhookLog
	err := s.db.GetContext(ctx, &w, "SELECT * FROM webhook_logs WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("webhook log %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWebhookLogs returns entries filtered by status, newest first. An
// empty status lists everything.
func (s *Store) ListWebhookLogs(ctx context.Context, status models.WebhookStatus, limit int) ([]models.WebhookLog, error) {
	var logs []models.WebhookLog
	if status == "" {
		err := s.db.SelectContext(ctx, &logs,
			"SELECT * FROM webhook_logs ORDER BY id DESC LIMIT $1", limit)
		return logs, err
	}
	err := s.db.SelectContext(ctx, &logs,
		"SELECT * FROM webhook_logs WHERE status = $1 ORDER BY id DESC LIMIT $2", status, limit)
	return logs, err
}

// MarkWebhookProcessing transitions an entry to PROCESSING.
func (s *Store) MarkWebhookProcessing(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE webhook_logs SET status = $1, updated_at = NOW() WHERE id = $2",
		models.WebhookProcessing, id)
	return err
}

// MarkWebhookSuccess transitions an entry to the terminal SUCCESS state.
func (s *Store) MarkWebhookSuccess(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE webhook_logs SET status = $1, error = '', processed_at = NOW(), updated_at = NOW() WHERE id = $2",
		models.WebhookSuccess, id)
	return err
}

// MarkWebhookFailed transitions an entry to FAILED with the error
// message, leaving it eligible for manual replay.
func (s *Store) MarkWebhookFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE webhook_logs SET status = $1, error = $2, updated_at = NOW() WHERE id = $3",
		models.WebhookFailed, errMsg, id)
	return err
}

// MarkWebhookIgnored transitions an entry to IGNORED with a descriptive
// message. Ignored is terminal but not a failure.
func (s *Store) MarkWebhookIgnored(ctx context.Context, id int64, reason string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE webhook_logs SET status = $1, error = $2, processed_at = NOW(), updated_at = NOW() WHERE id = $3",
		models.WebhookIgnored, reason, id)
	return err
}

// ResetWebhookForRetry puts a failed entry back to PENDING so the
// original processing path can run it again.
func (s *Store) ResetWebhookForRetry(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE webhook_logs SET status = $1, error = '', updated_at = NOW() WHERE id = $2",
		models.WebhookPending, id)
	return err
}

// DeleteWebhookLog removes an entry.
func (s *Store) DeleteWebhookLog(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM webhook_logs WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("webhook log %d: %w", id, ErrNotFound)
	}
	return nil
}
