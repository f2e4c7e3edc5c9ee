package repository

import (
	"context"
	"sync/atomic"
	"time"

	"rezerva/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverDeliveryCache prefers the primary cache (Redis) and falls back
// to the in-memory cache while the primary is down, probing it again
// after a cooldown.
type FailoverDeliveryCache struct {
	primary   domain.DeliveryCache
	fallback  domain.DeliveryCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

const failoverRecoveryInterval = time.Minute

func NewFailoverDeliveryCache(primary, fallback domain.DeliveryCache, logger *zerolog.Logger) *FailoverDeliveryCache {
	return &FailoverDeliveryCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverDeliveryCache) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	last := time.Unix(0, r.lastCheck.Load())
	if time.Since(last) > failoverRecoveryInterval {
		// Let one call probe the primary again.
		return true
	}
	return false
}

func (r *FailoverDeliveryCache) markDown(err error) {
	r.logger.Error().Err(err).Msg("primary delivery cache failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverDeliveryCache) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("primary delivery cache recovered")
	}
}

func (r *FailoverDeliveryCache) MarkEnqueued(ctx context.Context, transactionID string) (bool, error) {
	if r.usePrimary() {
		ok, err := r.primary.MarkEnqueued(ctx, transactionID)
		if err == nil {
			r.markUp()
			return ok, nil
		}
		r.markDown(err)
	}
	return r.fallback.MarkEnqueued(ctx, transactionID)
}

func (r *FailoverDeliveryCache) ArtifactPath(ctx context.Context, bookingID int64) (string, error) {
	if r.usePrimary() {
		path, err := r.primary.ArtifactPath(ctx, bookingID)
		if err == nil {
			r.markUp()
			return path, nil
		}
		r.markDown(err)
	}
	return r.fallback.ArtifactPath(ctx, bookingID)
}

func (r *FailoverDeliveryCache) SetArtifactPath(ctx context.Context, bookingID int64, path string) error {
	if r.usePrimary() {
		err := r.primary.SetArtifactPath(ctx, bookingID, path)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetArtifactPath(ctx, bookingID, path)
}
