package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryDeliveryCache is the in-process fallback cache for Redis-less
// deploys and tests.
type MemoryDeliveryCache struct {
	enqueued  sync.Map
	artifacts sync.Map
	ttl       time.Duration
}

func NewMemoryDeliveryCache(ttl time.Duration) *MemoryDeliveryCache {
	return &MemoryDeliveryCache{ttl: ttl}
}

type markerEntry struct {
	expiresAt time.Time
}

func (r *MemoryDeliveryCache) MarkEnqueued(ctx context.Context, transactionID string) (bool, error) {
	now := time.Now()
	val, loaded := r.enqueued.Load(transactionID)
	if loaded {
		entry := val.(*markerEntry)
		if now.Before(entry.expiresAt) {
			return false, nil
		}
	}
	r.enqueued.Store(transactionID, &markerEntry{expiresAt: now.Add(r.ttl)})
	return true, nil
}

func (r *MemoryDeliveryCache) ArtifactPath(ctx context.Context, bookingID int64) (string, error) {
	val, ok := r.artifacts.Load(bookingID)
	if !ok {
		return "", nil
	}
	return val.(string), nil
}

func (r *MemoryDeliveryCache) SetArtifactPath(ctx context.Context, bookingID int64, path string) error {
	r.artifacts.Store(bookingID, path)
	return nil
}
