package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"avatar-live-server/internal/domain/ports/adapter"
)

// Refresher re-probes one provider and records the outcome.
type Refresher interface {
	Refresh(ctx context.Context, p adapter.Provider) bool
}

// ProbeWarmer keeps the availability cache warm so status requests never
// wait on a cold probe.
type ProbeWarmer struct {
	interval  time.Duration
	cache     Refresher
	providers func() []adapter.Provider
	log       *zerolog.Logger
}

func NewProbeWarmer(interval time.Duration, cache Refresher, providers func() []adapter.Provider, logger *zerolog.Logger) *ProbeWarmer {
	l := logger.With().Str("component", "ProbeWarmer").Logger()
	return &ProbeWarmer{
		interval:  interval,
		cache:     cache,
		providers: providers,
		log:       &l,
	}
}

func (w *ProbeWarmer) Run(ctx context.Context) error {
	if w.interval <= 0 {
		w.log.Info().Msg("probe warmer disabled")
		return nil
	}
	w.log.Info().Dur("interval", w.interval).Msg("Starting probe warmer")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping probe warmer")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ProbeWarmer) sweep(ctx context.Context) {
	up, down := 0, 0
	for _, p := range w.providers() {
		if ctx.Err() != nil {
			return
		}
		if w.cache.Refresh(ctx, p) {
			up++
		} else {
			down++
			w.log.Debug().Str("provider", p.Name()).Msg("provider unavailable")
		}
	}
	w.log.Debug().Int("up", up).Int("down", down).Msg("probe sweep done")
}
