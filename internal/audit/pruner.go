package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/mattjoyce/herald/internal/audit StoreService

// StoreService defines the store operations used by the pruner.
type StoreService interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// Pruner periodically removes delivery records older than the retention
// window.
type Pruner struct {
	store     StoreService
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewPruner creates a pruner that deletes records older than retention every
// interval.
func NewPruner(store StoreService, retention, interval time.Duration, logger *slog.Logger) *Pruner {
	return &Pruner{
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    logger.With("component", "audit_pruner"),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the prune loop. An initial prune runs immediately.
func (p *Pruner) Start(ctx context.Context) error {
	p.logger.Info("starting audit pruner", "retention", p.retention.String(), "interval", p.interval.String())

	p.wg.Add(1)
	go p.loop(ctx)
	return nil
}

// Stop gracefully stops the pruner.
func (p *Pruner) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	p.logger.Info("audit pruner stopped")
}

func (p *Pruner) loop(ctx context.Context) {
	defer p.wg.Done()

	p.prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.prune(ctx)
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	pruned, err := p.store.Prune(ctx, p.retention)
	if err != nil {
		p.logger.Error("failed to prune delivery log", "error", err)
		return
	}
	if pruned > 0 {
		p.logger.Info("pruned delivery log", "records", pruned)
	}
}
