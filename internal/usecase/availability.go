// File: internal/usecase/availability.go
package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/domain/ports/adapter"
	"avatar-live-server/internal/domain/ports/repository"
)

// ProbePolicy is independent of the chat retry policy. A window gets one
// Probe call; a failed probe reads as unavailable until the window ends.
type ProbePolicy struct {
	Timeout time.Duration
}

func DefaultProbePolicy() ProbePolicy {
	return ProbePolicy{Timeout: 10 * time.Second}
}

// AvailabilityCache answers "is provider X usable" without probing more
// than once per window. Probe failures of any kind read as unavailable.
type AvailabilityCache struct {
	window time.Duration
	policy ProbePolicy

	mu      sync.RWMutex
	entries map[string]model.Availability

	group  singleflight.Group
	shared repository.AvailabilityStore

	now func() time.Time
	obs Observer
	log zerolog.Logger
}

type AvailabilityOption func(*AvailabilityCache)

// WithSharedStore lets several processes share probe outcomes.
func WithSharedStore(s repository.AvailabilityStore) AvailabilityOption {
	return func(c *AvailabilityCache) { c.shared = s }
}

func WithClock(now func() time.Time) AvailabilityOption {
	return func(c *AvailabilityCache) { c.now = now }
}

func WithProbePolicy(p ProbePolicy) AvailabilityOption {
	return func(c *AvailabilityCache) { c.policy = p }
}

func WithCacheObserver(o Observer) AvailabilityOption {
	return func(c *AvailabilityCache) { c.obs = observerOrNoop(o) }
}

func NewAvailabilityCache(window time.Duration, logger *zerolog.Logger, opts ...AvailabilityOption) *AvailabilityCache {
	if window <= 0 {
		window = 60 * time.Second
	}
	c := &AvailabilityCache{
		window:  window,
		policy:  DefaultProbePolicy(),
		entries: make(map[string]model.Availability),
		now:     time.Now,
		obs:     noopObserver{},
		log:     logger.With().Str("component", "availability").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *AvailabilityCache) Window() time.Duration { return c.window }

// IsAvailable returns the cached outcome while fresh, otherwise probes.
func (c *AvailabilityCache) IsAvailable(ctx context.Context, p adapter.Provider) bool {
	name := p.Name()
	if a, ok := c.fresh(name); ok {
		c.obs.CacheLookup(name, true)
		return a.Available
	}
	if a, ok := c.fromShared(ctx, name); ok {
		c.obs.CacheLookup(name, true)
		return a.Available
	}
	c.obs.CacheLookup(name, false)

	v, _, _ := c.group.Do(name, func() (any, error) {
		// a concurrent caller may have stored a result while we waited
		if a, ok := c.fresh(name); ok {
			return a.Available, nil
		}
		ok := c.probe(context.WithoutCancel(ctx), p)
		c.store(ctx, name, model.Availability{Available: ok, CheckedAt: c.now()})
		return ok, nil
	})
	ok, _ := v.(bool)
	return ok
}

// Refresh probes unconditionally and stores the outcome.
func (c *AvailabilityCache) Refresh(ctx context.Context, p adapter.Provider) bool {
	name := p.Name()
	v, _, _ := c.group.Do(name, func() (any, error) {
		ok := c.probe(ctx, p)
		c.store(ctx, name, model.Availability{Available: ok, CheckedAt: c.now()})
		return ok, nil
	})
	ok, _ := v.(bool)
	return ok
}

// Peek returns the last stored outcome if it is still fresh. Never probes.
func (c *AvailabilityCache) Peek(name string) (model.Availability, bool) {
	return c.fresh(name)
}

// Invalidate drops the local entry so the next lookup probes.
func (c *AvailabilityCache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}

func (c *AvailabilityCache) fresh(name string) (model.Availability, bool) {
	c.mu.RLock()
	a, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok || !a.Fresh(c.now(), c.window) {
		return model.Availability{}, false
	}
	return a, true
}

func (c *AvailabilityCache) fromShared(ctx context.Context, name string) (model.Availability, bool) {
	if c.shared == nil {
		return model.Availability{}, false
	}
	a, ok, err := c.shared.Get(ctx, name)
	if err != nil {
		c.log.Debug().Err(err).Str("provider", name).Msg("shared availability lookup failed")
		return model.Availability{}, false
	}
	if !ok || !a.Fresh(c.now(), c.window) {
		return model.Availability{}, false
	}
	c.keep(name, a)
	return a, true
}

func (c *AvailabilityCache) store(ctx context.Context, name string, a model.Availability) {
	c.keep(name, a)
	if c.shared != nil {
		if err := c.shared.Set(ctx, name, a, c.window); err != nil {
			c.log.Debug().Err(err).Str("provider", name).Msg("shared availability store failed")
		}
	}
}

// keep stores a locally unless it is older than what is already there.
func (c *AvailabilityCache) keep(name string, a model.Availability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.entries[name]; ok && a.CheckedAt.Before(prev.CheckedAt) {
		return
	}
	c.entries[name] = a
}

func (c *AvailabilityCache) probe(ctx context.Context, p adapter.Provider) bool {
	ok, err := c.probeOnce(ctx, p)
	if err != nil {
		c.log.Warn().Err(err).Str("provider", p.Name()).Msg("probe failed")
		return false
	}
	c.log.Debug().Str("provider", p.Name()).Bool("available", ok).Msg("probe")
	return ok
}

func (c *AvailabilityCache) probeOnce(ctx context.Context, p adapter.Provider) (ok bool, err error) {
	if c.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.policy.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("probe panic: %v", r)
		}
	}()
	return p.Probe(ctx)
}
