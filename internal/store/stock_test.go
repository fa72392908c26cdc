package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/evimparca-cloud/stock-sub001/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStoreWithDB(sqlx.NewDb(db, "sqlmock")), mock
}

func sampleOrder() *models.Order {
	return &models.Order{
		MarketplaceOrderID: "TY-1001",
		MarketplaceID:      "trendyol",
		Status:             models.StatusPending,
		TotalAmount:        decimal.NewFromInt(60),
		OrderDate:          time.Now(),
		CustomerName:       "Ayse Yilmaz",
	}
}

func expectOrderInsert(mock sqlmock.Sqlmock, orderID int64) {
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(orderID, time.Now(), time.Now()))
}

func expectStockMutation(mock sqlmock.Sqlmock, oldStock int) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM stock_logs")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT stock_quantity FROM products WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}).AddRow(oldStock))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET stock_quantity")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stock_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func TestCreateOrderTxDecrementsStock(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	expectOrderInsert(mock, 1)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO order_items")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM stock_logs")).
		WithArgs(int64(1), int64(5), string(models.StockLogSale)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT stock_quantity FROM products WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}).AddRow(10))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET stock_quantity")).
		WithArgs(8, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stock_logs")).
		WithArgs(int64(5), sqlmock.AnyArg(), string(models.StockLogSale), -2, 10, 8,
			"marketplace sale", "TY-1001", "ingest").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	items := []models.OrderItem{{MappingID: 7, ProductID: 5, RemoteSKU: "B123", Quantity: 2}}
	ops := []StockOp{{
		ProductID: 5, Quantity: 2, Type: models.StockLogSale,
		Reason: "marketplace sale", Reference: "TY-1001", CreatedBy: "ingest",
	}}

	results, err := st.CreateOrderTx(context.Background(), sampleOrder(), items, ops)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.True(t, results[0].Applied)
	assert.Equal(t, 10, results[0].OldStock)
	assert.Equal(t, 8, results[0].NewStock)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderTxClampsStockAtZero(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	expectOrderInsert(mock, 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM stock_logs")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT stock_quantity FROM products WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}).AddRow(3))
	// Requested -5 against stock 3: clamped to 0, applied delta -3,
	// requested amount preserved in the reason.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET stock_quantity")).
		WithArgs(0, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stock_logs")).
		WithArgs(int64(5), sqlmock.AnyArg(), string(models.StockLogSale), -3, 3, 0,
			"marketplace sale (clamped, requested -5)", "TY-1001", "ingest").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ops := []StockOp{{
		ProductID: 5, Quantity: 5, Type: models.StockLogSale,
		Reason: "marketplace sale", Reference: "TY-1001", CreatedBy: "ingest",
	}}

	results, err := st.CreateOrderTx(context.Background(), sampleOrder(), nil, ops)
	require.NoError(t, err)
	assert.Equal(t, 0, results[0].NewStock)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderTxReturnsErrOrderExists(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := st.CreateOrderTx(context.Background(), sampleOrder(), nil, nil)
	assert.ErrorIs(t, err, ErrOrderExists)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreStockTxIncrementsStock(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status")).
		WithArgs(string(models.StatusCancelled), "Cancelled", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM stock_logs")).
		WithArgs(int64(1), int64(5), string(models.StockLogCancel)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT stock_quantity FROM products WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}).AddRow(8))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET stock_quantity")).
		WithArgs(10, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stock_logs")).
		WithArgs(int64(5), sqlmock.AnyArg(), string(models.StockLogCancel), 2, 8, 10,
			"order cancelled", "TY-1001", "ingest").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ops := []StockOp{{
		ProductID: 5, Quantity: 2, Type: models.StockLogCancel,
		Reason: "order cancelled", Reference: "TY-1001", CreatedBy: "ingest",
	}}

	results, err := st.RestoreStockTx(context.Background(), 1, models.StatusCancelled, "Cancelled", ops)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, 8, results[0].OldStock)
	assert.Equal(t, 10, results[0].NewStock)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreStockTxSkipsAlreadyRefundedLine(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// A CANCEL ledger row already exists for this (order, product):
	// the op becomes a no-op, no product update, no second ledger row.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM stock_logs")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectCommit()

	ops := []StockOp{{ProductID: 5, Quantity: 2, Type: models.StockLogCancel}}

	results, err := st.RestoreStockTx(context.Background(), 1, models.StatusCancelled, "Cancelled", ops)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.False(t, results[0].Applied)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderTxSkipsAlreadyAppliedDecrement(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	expectOrderInsert(mock, 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM stock_logs")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectCommit()

	ops := []StockOp{{ProductID: 5, Quantity: 2, Type: models.StockLogSale}}

	results, err := st.CreateOrderTx(context.Background(), sampleOrder(), nil, ops)
	require.NoError(t, err)
	assert.False(t, results[0].Applied)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyAdjustmentTx(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT stock_quantity FROM products WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET stock_quantity")).
		WithArgs(9, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stock_logs")).
		WithArgs(int64(5), nil, string(models.StockLogEntry), 5, 4, 9,
			"warehouse delivery", "", "operator").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res, err := st.ApplyAdjustmentTx(context.Background(), StockOp{
		ProductID: 5, Quantity: 5, Type: models.StockLogEntry,
		Reason: "warehouse delivery", CreatedBy: "operator",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.OldStock)
	assert.Equal(t, 9, res.NewStock)

	assert.NoError(t, mock.ExpectationsWereMet())
}
