package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/evimparca-cloud/stock-sub001/internal/models"
	"github.com/evimparca-cloud/stock-sub001/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLogStore keeps webhook log entries in memory.
type fakeLogStore struct {
	nextID  int64
	entries map[int64]*models.WebhookLog
}

func newFakeLogStore() *fakeLogStore {
	return &fakeLogStore{entries: make(map[int64]*models.WebhookLog)}
}

func (f *fakeLogStore) CreateWebhookLog(_ context.Context, w *models.WebhookLog) error {
	f.nextID++
	w.ID = f.nextID
	w.Status = models.WebhookPending
	w.CreatedAt = time.Now()
	f.entries[w.ID] = w
	return nil
}

func (f *fakeLogStore) GetWebhookLog(_ context.Context, id int64) (*models.WebhookLog, error) {
	w, ok := f.entries[id]
	if !ok {
		return nil, fmt.Errorf("webhook log %d: %w", id, store.ErrNotFound)
	}
	cp := *w
	return &cp, nil
}

func (f *fakeLogStore) ListWebhookLogs(_ context.Context, status models.WebhookStatus, _ int) ([]models.WebhookLog, error) {
	var out []models.WebhookLog
	for _, w := range f.entries {
		if status == "" || w.Status == status {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (f *fakeLogStore) setStatus(id int64, status models.WebhookStatus, msg string) error {
	w, ok := f.entries[id]
	if !ok {
		return store.ErrNotFound
	}
	w.Status = status
	w.Error = msg
	return nil
}

func (f *fakeLogStore) MarkWebhookProcessing(_ context.Context, id int64) error {
	return f.setStatus(id, models.WebhookProcessing, "")
}

func (f *fakeLogStore) MarkWebhookSuccess(_ context.Context, id int64) error {
	return f.setStatus(id, models.WebhookSuccess, "")
}

func (f *fakeLogStore) MarkWebhookFailed(_ context.Context, id int64, errMsg string) error {
	return f.setStatus(id, models.WebhookFailed, errMsg)
}

func (f *fakeLogStore) MarkWebhookIgnored(_ context.Context, id int64, reason string) error {
	return f.setStatus(id, models.WebhookIgnored, reason)
}

func (f *fakeLogStore) ResetWebhookForRetry(_ context.Context, id int64) error {
	return f.setStatus(id, models.WebhookPending, "")
}

func (f *fakeLogStore) DeleteWebhookLog(_ context.Context, id int64) error {
	if _, ok := f.entries[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.entries, id)
	return nil
}

// fakeIngestor simulates the core mutation path against an in-memory
// order set.
type fakeIngestor struct {
	orders     map[string]*models.Order
	createErr  error
	created    int
	cancelled  int
	statusApps int
}

func newFakeIngestor() *fakeIngestor {
	return &fakeIngestor{orders: make(map[string]*models.Order)}
}

func (f *fakeIngestor) GetOrder(_ context.Context, id string) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	return o, nil
}

func (f *fakeIngestor) CreateOrder(_ context.Context, marketplaceID string, pkg *models.RemotePackage) (bool, error) {
	if f.createErr != nil {
		return false, f.createErr
	}
	if _, ok := f.orders[pkg.OrderNumber]; ok {
		return false, nil
	}
	f.orders[pkg.OrderNumber] = &models.Order{
		MarketplaceOrderID:    pkg.OrderNumber,
		MarketplaceID:         marketplaceID,
		Status:                StatusFromRemote(pkg.Status),
		ShipmentPackageStatus: pkg.Status,
	}
	f.created++
	return true, nil
}

func (f *fakeIngestor) ApplyStatus(_ context.Context, order *models.Order, remoteStatus string) (bool, error) {
	newStatus := StatusFromRemote(remoteStatus)
	if newStatus == models.StatusCancelled && !order.Status.Refunded() {
		return f.CancelOrder(context.Background(), order, remoteStatus)
	}
	changed := newStatus != order.Status
	order.Status = newStatus
	order.ShipmentPackageStatus = remoteStatus
	f.statusApps++
	return changed, nil
}

func (f *fakeIngestor) CancelOrder(_ context.Context, order *models.Order, remoteStatus string) (bool, error) {
	if order.Status.Refunded() {
		return false, nil
	}
	order.Status = models.StatusCancelled
	order.ShipmentPackageStatus = remoteStatus
	f.cancelled++
	return true, nil
}

type fakeCounter struct {
	counts map[string]int64
}

func (f *fakeCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	if f.counts == nil {
		f.counts = make(map[string]int64)
	}
	f.counts[key]++
	return f.counts[key], nil
}

func newTestWebhookService() (*WebhookService, *fakeLogStore, *fakeIngestor) {
	logs := newFakeLogStore()
	ing := newFakeIngestor()
	return NewWebhookService(logs, ing, &fakeCounter{}), logs, ing
}

const orderCreatedBody = `{
	"eventType": "order.created",
	"data": {
		"orderNumber": "TY-1001",
		"shipmentPackageStatus": "Created",
		"lines": [{"barcode": "B123", "quantity": 2, "price": 29.95}]
	}
}`

func TestProcessOrderCreated(t *testing.T) {
	svc, logs, ing := newTestWebhookService()

	outcome := svc.Process(context.Background(), "trendyol", []byte(orderCreatedBody))

	assert.True(t, outcome.Success)
	assert.Equal(t, 1, ing.created)
	assert.Equal(t, models.WebhookSuccess, logs.entries[1].Status)
}

func TestProcessOrderCreatedTwiceIsIdempotent(t *testing.T) {
	svc, logs, ing := newTestWebhookService()

	first := svc.Process(context.Background(), "trendyol", []byte(orderCreatedBody))
	second := svc.Process(context.Background(), "trendyol", []byte(orderCreatedBody))

	assert.True(t, first.Success)
	assert.True(t, second.Success)
	assert.Contains(t, second.Message, "already exists")
	assert.Equal(t, 1, ing.created, "redelivery must not create a second order")
	assert.Equal(t, models.WebhookSuccess, logs.entries[2].Status)
}

func TestProcessCancellationRefundsOnce(t *testing.T) {
	svc, _, ing := newTestWebhookService()

	svc.Process(context.Background(), "trendyol", []byte(orderCreatedBody))

	cancelBody := `{
		"eventType": "order.cancelled",
		"data": {"orderNumber": "TY-1001", "shipmentPackageStatus": "Cancelled"}
	}`
	first := svc.Process(context.Background(), "trendyol", []byte(cancelBody))
	second := svc.Process(context.Background(), "trendyol", []byte(cancelBody))

	assert.True(t, first.Success)
	assert.Contains(t, first.Message, "stock restored")
	assert.True(t, second.Success)
	assert.Contains(t, second.Message, "already cancelled")
	assert.Equal(t, 1, ing.cancelled, "stock must be refunded exactly once")
}

func TestProcessStatusChangeReroutesToCancellation(t *testing.T) {
	svc, _, ing := newTestWebhookService()

	svc.Process(context.Background(), "trendyol", []byte(orderCreatedBody))

	updateBody := `{
		"eventType": "order.status_changed",
		"data": {"orderNumber": "TY-1001", "shipmentPackageStatus": "Cancelled"}
	}`
	outcome := svc.Process(context.Background(), "trendyol", []byte(updateBody))

	assert.True(t, outcome.Success)
	assert.Equal(t, 1, ing.cancelled)
	assert.Equal(t, models.StatusCancelled, ing.orders["TY-1001"].Status)
}

func TestProcessStockUpdatedIsIgnored(t *testing.T) {
	svc, logs, _ := newTestWebhookService()

	outcome := svc.Process(context.Background(), "trendyol",
		[]byte(`{"eventType": "stock.updated", "data": {}}`))

	assert.True(t, outcome.Success)
	assert.Equal(t, models.WebhookIgnored, logs.entries[1].Status)
	assert.Contains(t, logs.entries[1].Error, "authoritative")
}

func TestProcessUnknownEventTypeIsIgnored(t *testing.T) {
	svc, logs, _ := newTestWebhookService()

	outcome := svc.Process(context.Background(), "trendyol",
		[]byte(`{"eventType": "order.invoice_ready", "data": {}}`))

	assert.True(t, outcome.Success)
	assert.Equal(t, models.WebhookIgnored, logs.entries[1].Status)
	assert.Contains(t, logs.entries[1].Error, "order.invoice_ready")
}

func TestProcessStatusChangeForUnknownOrderFails(t *testing.T) {
	svc, logs, _ := newTestWebhookService()

	outcome := svc.Process(context.Background(), "trendyol",
		[]byte(`{"eventType": "order.updated", "data": {"orderNumber": "TY-9999", "status": "Shipped"}}`))

	assert.False(t, outcome.Success)
	assert.Equal(t, models.WebhookFailed, logs.entries[1].Status)
	assert.Contains(t, logs.entries[1].Error, "TY-9999")
}

func TestProcessFailureIsRecordedAndReplayable(t *testing.T) {
	svc, logs, ing := newTestWebhookService()
	ing.createErr = errors.New("database unavailable")

	outcome := svc.Process(context.Background(), "trendyol", []byte(orderCreatedBody))
	require.False(t, outcome.Success)
	require.Equal(t, models.WebhookFailed, logs.entries[1].Status)
	assert.Contains(t, logs.entries[1].Error, "database unavailable")

	// Replay runs the original processing path once the fault clears.
	ing.createErr = nil
	retried := svc.Retry(context.Background(), 1)

	assert.True(t, retried.Success)
	assert.Equal(t, 1, ing.created)
	assert.Equal(t, models.WebhookSuccess, logs.entries[1].Status)
}

func TestRetryRejectsNonFailedEntries(t *testing.T) {
	svc, _, _ := newTestWebhookService()

	svc.Process(context.Background(), "trendyol", []byte(orderCreatedBody))
	outcome := svc.Retry(context.Background(), 1)

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Message, "SUCCESS")
}

func TestProcessInvalidJSONFails(t *testing.T) {
	svc, logs, _ := newTestWebhookService()

	outcome := svc.Process(context.Background(), "trendyol", []byte(`{broken`))

	assert.False(t, outcome.Success)
	assert.Equal(t, models.WebhookFailed, logs.entries[1].Status)
}

func TestDeleteWebhookLog(t *testing.T) {
	svc, logs, _ := newTestWebhookService()

	svc.Process(context.Background(), "trendyol", []byte(orderCreatedBody))
	require.NoError(t, svc.Delete(context.Background(), 1))
	assert.Empty(t, logs.entries)

	err := svc.Delete(context.Background(), 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
