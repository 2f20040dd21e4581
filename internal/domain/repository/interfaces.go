package repository

import (
	"context"
	"errors"
	"time"

	"QuantLens/internal/domain/models"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotStore keeps the latest computed snapshot.
type SnapshotStore interface {
	Save(ctx context.Context, s *models.Snapshot) error
	Latest(ctx context.Context) (*models.Snapshot, error)
	// TryLock guards a refresh so concurrent instances do not duplicate work.
	TryLock(ctx context.Context, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context) error
}

// SnapshotPublisher announces freshly computed snapshots downstream.
type SnapshotPublisher interface {
	Publish(ctx context.Context, s *models.Snapshot) error
	Close() error
}

type Metrics interface {
	RecordLatency(op string, d time.Duration)
	RecordError(kind string)
	RecordSpectrum(lambdaMax float64, noise int)
	RecordRefresh(at time.Time, symbols int, err error)
}
