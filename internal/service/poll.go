package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evimparca-cloud/stock-sub001/internal/store"
	"github.com/evimparca-cloud/stock-sub001/internal/util"

	"go.uber.org/zap"
)

// ErrSyncInProgress is returned when a poll run for a marketplace is
// already active. One active run per marketplace; different
// marketplaces poll concurrently.
var ErrSyncInProgress = errors.New("sync already in progress")

const pollLockTTL = 5 * time.Minute

// SyncResult is the partial-tolerant outcome of one poll batch.
// Transactions committed before a mid-batch error stay committed.
type SyncResult struct {
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Total     int      `json:"total"`
	Errors    []string `json:"errors,omitempty"`
}

// PollService pulls marketplace packages by status and feeds them
// through the same ingestion path the webhooks use, so both paths stay
// safe to run concurrently against the same order.
type PollService struct {
	client   MarketplaceClient
	ingestor Ingestor
	locker   Locker
	logger   *zap.Logger
}

// NewPollService creates a new poll service
func NewPollService(client MarketplaceClient, ingestor Ingestor, locker Locker) *PollService {
	return &PollService{
		client:   client,
		ingestor: ingestor,
		locker:   locker,
		logger:   util.GetLogger(),
	}
}

// SyncByStatus fetches one page of packages in the given remote status
// and reconciles each: unknown orders run full creation, known orders
// run a status-check. A per-package failure is reported and does not
// abort the rest of the batch.
func (s *PollService) SyncByStatus(ctx context.Context, marketplaceID, remoteStatus string) (*SyncResult, error) {
	ctx, span := util.StartSpan(ctx, "PollService.SyncByStatus")
	defer span.End()

	lockKey := "poll:" + marketplaceID
	ok, err := s.locker.AcquireLock(ctx, lockKey, pollLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire poll lock: %w", err)
	}
	if !ok {
		return nil, ErrSyncInProgress
	}
	defer func() {
		if err := s.locker.ReleaseLock(context.Background(), lockKey); err != nil {
			s.logger.Warn("Failed to release poll lock", zap.String("key", lockKey), zap.Error(err))
		}
	}()

	packages, err := s.client.FetchPackagesByStatus(ctx, marketplaceID, remoteStatus)
	if err != nil {
		util.PollBatchesTotal.WithLabelValues("fetch_failed").Inc()
		return &SyncResult{Errors: []string{err.Error()}},
			fmt.Errorf("failed to fetch packages: %w", err)
	}

	result := &SyncResult{Total: len(packages)}
	for i := range packages {
		pkg := &packages[i]

		order, err := s.ingestor.GetOrder(ctx, pkg.OrderNumber)
		switch {
		case err == nil:
			if order.ShipmentPackageStatus == pkg.Status {
				result.Skipped++
				util.PollPackagesTotal.WithLabelValues("skipped").Inc()
				continue
			}
			if _, err := s.ingestor.ApplyStatus(ctx, order, pkg.Status); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", pkg.OrderNumber, err))
				util.PollPackagesTotal.WithLabelValues("failed").Inc()
				continue
			}
			result.Processed++
			util.PollPackagesTotal.WithLabelValues("status_updated").Inc()

		case errors.Is(err, store.ErrNotFound):
			created, err := s.ingestor.CreateOrder(ctx, marketplaceID, pkg)
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", pkg.OrderNumber, err))
				util.PollPackagesTotal.WithLabelValues("failed").Inc()
				continue
			}
			if created {
				result.Processed++
				util.PollPackagesTotal.WithLabelValues("created").Inc()
			} else {
				// Webhook path created it between lookup and insert;
				// next poll run sees it as a status-check.
				result.Skipped++
				util.PollPackagesTotal.WithLabelValues("skipped").Inc()
			}

		default:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", pkg.OrderNumber, err))
			util.PollPackagesTotal.WithLabelValues("failed").Inc()
		}
	}

	util.PollBatchesTotal.WithLabelValues("completed").Inc()
	s.logger.Info("Poll batch completed",
		zap.String("marketplace_id", marketplaceID),
		zap.String("remote_status", remoteStatus),
		zap.Int("total", result.Total),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))

	return result, nil
}
