package repository

import (
	"context"

	"QuantLens/internal/domain/models"
	domrepo "QuantLens/internal/domain/repository"
)

type keyedPublisher interface {
	Publish(ctx context.Context, key []byte, value interface{}) error
	Close() error
}

// KafkaSnapshotPublisher emits each snapshot as a JSON message keyed by its
// generation time.
type KafkaSnapshotPublisher struct {
	producer keyedPublisher
}

func NewKafkaSnapshotPublisher(p keyedPublisher) *KafkaSnapshotPublisher {
	return &KafkaSnapshotPublisher{producer: p}
}

func (p *KafkaSnapshotPublisher) Publish(ctx context.Context, s *models.Snapshot) error {
	key := []byte(s.GeneratedAt.UTC().Format("20060102T150405Z"))
	return p.producer.Publish(ctx, key, s)
}

func (p *KafkaSnapshotPublisher) Close() error { return p.producer.Close() }

// NopSnapshotPublisher is used when no brokers are configured.
type NopSnapshotPublisher struct{}

func (NopSnapshotPublisher) Publish(context.Context, *models.Snapshot) error { return nil }

func (NopSnapshotPublisher) Close() error { return nil }

var (
	_ domrepo.SnapshotPublisher = (*KafkaSnapshotPublisher)(nil)
	_ domrepo.SnapshotPublisher = NopSnapshotPublisher{}
)
