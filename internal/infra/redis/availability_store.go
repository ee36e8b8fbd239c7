package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/domain/ports/repository"
	"avatar-live-server/internal/infra/metrics"
)

var _ repository.AvailabilityStore = (*AvailabilityStore)(nil)

// AvailabilityStore shares provider probe outcomes between processes.
type AvailabilityStore struct {
	client RedisClient
	prefix string
}

func NewAvailabilityStore(client RedisClient) *AvailabilityStore {
	return &AvailabilityStore{client: client, prefix: "availability:"}
}

func (s *AvailabilityStore) Get(ctx context.Context, key string) (model.Availability, bool, error) {
	var a model.Availability
	data, err := s.client.Get(ctx, s.prefix+key)
	if errors.Is(err, redis.Nil) {
		metrics.IncAvailabilityLookup("shared", key, "miss")
		return a, false, nil
	}
	if err != nil {
		metrics.IncAvailabilityLookup("shared", key, "error")
		return a, false, err
	}
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		metrics.IncAvailabilityLookup("shared", key, "error")
		return a, false, err
	}
	metrics.IncAvailabilityLookup("shared", key, "hit")
	return a, true, nil
}

func (s *AvailabilityStore) Set(ctx context.Context, key string, a model.Availability, ttl time.Duration) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, data, ttl)
}
