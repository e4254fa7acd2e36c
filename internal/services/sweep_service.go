package services

import (
	"context"
	"errors"
	"time"

	"github.com/swap-market/backend/internal/events"
	"github.com/swap-market/backend/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultSwapTTL       = 7 * 24 * time.Hour
	DefaultSwapRetention = 3 * 24 * time.Hour
)

// purgeableStatuses are removed after the retention window. Completed swaps
// are kept.
var purgeableStatuses = []models.SwapStatus{models.SwapStatusExpired, models.SwapStatusRejected}

// SweepService holds the two periodic swap sweeps: expiry of stale pending
// offers and removal of old expired or rejected ones.
type SweepService struct {
	swaps  SwapStore
	engine *SwapService
	log    *zap.Logger
	now    func() time.Time
}

func NewSweepService(swaps SwapStore, engine *SwapService, log *zap.Logger) *SweepService {
	return &SweepService{swaps: swaps, engine: engine, log: log, now: time.Now}
}

func (s *SweepService) WithClock(now func() time.Time) *SweepService {
	s.now = now
	return s
}

// ExpirePending expires every pending swap created at least ttl ago in one
// conditional bulk write. Swaps accepted or rejected concurrently are not
// touched.
func (s *SweepService) ExpirePending(ctx context.Context, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, errors.New("swap ttl must be positive")
	}
	now := s.now()
	expired, err := s.swaps.ExpirePending(ctx, now.Add(-ttl), now)
	if err != nil {
		return 0, storeErr(err, "expire pending swaps")
	}
	for i := range expired {
		swap := &expired[i]
		s.engine.recordTransition(ctx, swap, models.SwapStatusPending, nil, models.ActorTypeSystem)
		s.engine.notify(ctx, swap.FromUserID, events.SwapExpired, swap)
		s.engine.notify(ctx, swap.ToUserID, events.SwapExpired, swap)
	}
	if len(expired) > 0 {
		s.log.Info("expired pending swaps", zap.Int("count", len(expired)), zap.Duration("ttl", ttl))
	}
	return int64(len(expired)), nil
}

// PurgeTerminal deletes expired and rejected swaps last updated at least
// retention ago.
func (s *SweepService) PurgeTerminal(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, errors.New("swap retention must be positive")
	}
	n, err := s.swaps.PurgeTerminal(ctx, purgeableStatuses, s.now().Add(-retention))
	if err != nil {
		return 0, storeErr(err, "purge terminal swaps")
	}
	if n > 0 {
		s.log.Info("purged terminal swaps", zap.Int64("count", n), zap.Duration("retention", retention))
	}
	return n, nil
}
