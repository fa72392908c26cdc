package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/evimparca-cloud/stock-sub001/internal/util"

	"go.uber.org/zap"
)

// SyncFunc runs one poll pass for a marketplace and remote status.
type SyncFunc func(ctx context.Context, marketplaceID, remoteStatus string)

// Poller drives periodic poll ingestion per marketplace. It is an
// explicit, injectable scheduler: callers start and stop marketplaces
// individually and the sync function is invoked directly, with no HTTP
// loopback in between.
type Poller struct {
	interval time.Duration
	statuses []string
	syncFn   SyncFunc
	logger   *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a poller that walks the given remote statuses every
// interval for each started marketplace.
func New(interval time.Duration, statuses []string, syncFn SyncFunc) *Poller {
	return &Poller{
		interval: interval,
		statuses: statuses,
		syncFn:   syncFn,
		logger:   util.GetLogger(),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start begins polling for a marketplace. One loop per marketplace; a
// second Start for the same marketplace is an error.
func (p *Poller) Start(marketplaceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, running := p.cancels[marketplaceID]; running {
		return fmt.Errorf("poller for %s already running", marketplaceID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancels[marketplaceID] = cancel

	p.wg.Add(1)
	go p.loop(ctx, marketplaceID)

	p.logger.Info("Poller started",
		zap.String("marketplace_id", marketplaceID),
		zap.Duration("interval", p.interval))
	return nil
}

// Stop halts polling for a marketplace.
func (p *Poller) Stop(marketplaceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cancel, running := p.cancels[marketplaceID]
	if !running {
		return fmt.Errorf("poller for %s not running", marketplaceID)
	}
	cancel()
	delete(p.cancels, marketplaceID)

	p.logger.Info("Poller stopped", zap.String("marketplace_id", marketplaceID))
	return nil
}

// List returns the marketplaces currently being polled.
func (p *Poller) List() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.cancels))
	for id := range p.cancels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StopAll halts every poll loop and waits for them to finish.
func (p *Poller) StopAll() {
	p.mu.Lock()
	for id, cancel := range p.cancels {
		cancel()
		delete(p.cancels, id)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) loop(ctx context.Context, marketplaceID string) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// First pass immediately; afterwards on every tick.
	p.runOnce(ctx, marketplaceID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx, marketplaceID)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context, marketplaceID string) {
	for _, status := range p.statuses {
		if ctx.Err() != nil {
			return
		}
		p.syncFn(ctx, marketplaceID, status)
	}
}
