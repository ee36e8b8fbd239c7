package repository

import (
	"context"
	"time"

	"avatar-live-server/internal/domain/model"
)

// TrainingArtifactRepository persists the descriptor of a trained voice.
type TrainingArtifactRepository interface {
	// Load returns domain.ErrNotFound when no artifact exists.
	Load(ctx context.Context, modelName string) (*model.TrainingArtifact, error)
	Save(ctx context.Context, a *model.TrainingArtifact) error
	Delete(ctx context.Context, modelName string) error
}

// AvailabilityStore shares probe outcomes between server instances.
type AvailabilityStore interface {
	// Get returns ok=false when nothing is stored for key.
	Get(ctx context.Context, key string) (a model.Availability, ok bool, err error)
	Set(ctx context.Context, key string, a model.Availability, ttl time.Duration) error
}

// Locker is a best-effort distributed mutex.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// RateLimiter counts events per key within a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
