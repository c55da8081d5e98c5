package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coinsentry/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

const (
	latestTTL = 60 * time.Second

	latestKeyFmt   = "snapshot:latest:%s"
	previousKeyFmt = "snapshot:previous:%s"
)

// SnapshotStore keeps the latest market snapshot per coin (short TTL, serves
// API reads between cycles) and the previous cycle's snapshot (no TTL, feeds
// the price-change delta of the next cycle).
type SnapshotStore struct {
	tracer trace.Tracer
	rdb    *redis.Client
}

func NewSnapshotStore(tracer trace.Tracer, rdb *redis.Client) *SnapshotStore {
	return &SnapshotStore{tracer: tracer, rdb: rdb}
}

func (s *SnapshotStore) SetLatest(ctx context.Context, snap domain.Snapshot) error {
	ctx, span := s.tracer.Start(ctx, "cache.set_latest")
	defer span.End()

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot for %s: %w", snap.CoinID, err)
	}
	return s.rdb.Set(ctx, fmt.Sprintf(latestKeyFmt, snap.CoinID), raw, latestTTL).Err()
}

// Latest returns nil without error when the cached snapshot has expired.
func (s *SnapshotStore) Latest(ctx context.Context, coinID string) (*domain.Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "cache.get_latest")
	defer span.End()

	return s.get(ctx, fmt.Sprintf(latestKeyFmt, coinID))
}

// Rotate records snap as the previous snapshot for its coin and returns what
// it replaced, which is the comparison baseline for price-change alerts.
func (s *SnapshotStore) Rotate(ctx context.Context, snap domain.Snapshot) (*domain.Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "cache.rotate")
	defer span.End()

	key := fmt.Sprintf(previousKeyFmt, snap.CoinID)
	prev, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot for %s: %w", snap.CoinID, err)
	}
	if err := s.rdb.Set(ctx, key, raw, 0).Err(); err != nil {
		return nil, err
	}
	return prev, nil
}

func (s *SnapshotStore) get(ctx context.Context, key string) (*domain.Snapshot, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot at %s: %w", key, err)
	}
	return &snap, nil
}
