package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"QuantLens/internal/domain/models"
	domrepo "QuantLens/internal/domain/repository"
	"QuantLens/pkg/cache"
)

const (
	snapshotKey    = "snapshot:latest"
	refreshLockKey = "snapshot:refresh"
)

// CacheSnapshotStore keeps the latest snapshot in a cache.Service, typically
// the layered memory+redis cache so replicas share it.
type CacheSnapshotStore struct {
	cache cache.Service
	ttl   time.Duration
}

// NewCacheSnapshotStore stores snapshots for ttl; zero keeps them until replaced.
func NewCacheSnapshotStore(c cache.Service, ttl time.Duration) *CacheSnapshotStore {
	return &CacheSnapshotStore{cache: c, ttl: ttl}
}

func (s *CacheSnapshotStore) Save(ctx context.Context, snap *models.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("save snapshot: nil snapshot")
	}
	if err := s.cache.Set(ctx, snapshotKey, snap, s.ttl); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *CacheSnapshotStore) Latest(ctx context.Context) (*models.Snapshot, error) {
	snap, err := cache.GetTyped[models.Snapshot](ctx, s.cache, snapshotKey)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, domrepo.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return &snap, nil
}

func (s *CacheSnapshotStore) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	return s.cache.TryLock(ctx, refreshLockKey, ttl)
}

func (s *CacheSnapshotStore) Unlock(ctx context.Context) error {
	return s.cache.Unlock(ctx, refreshLockKey)
}

var _ domrepo.SnapshotStore = (*CacheSnapshotStore)(nil)
