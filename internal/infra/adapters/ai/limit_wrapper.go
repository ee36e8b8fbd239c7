package ai

import (
	"context"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.GenerationProvider = (*limitedProvider)(nil)

// limitedProvider caps concurrent Generate calls to one backend. Waiting for
// a slot honours ctx, so a cancelled connection does not queue forever.
type limitedProvider struct {
	inner adapter.GenerationProvider
	sem   chan struct{}
}

func NewLimitedProvider(inner adapter.GenerationProvider, maxConcurrent int) adapter.GenerationProvider {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedProvider{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedProvider) Name() string { return l.inner.Name() }

func (l *limitedProvider) Probe(ctx context.Context) (bool, error) {
	return l.inner.Probe(ctx)
}

func (l *limitedProvider) Generate(ctx context.Context, messages []adapter.Message, params adapter.GenerationParams) (string, adapter.Usage, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return "", adapter.Usage{}, domain.NewProviderError(l.inner.Name(), domain.ErrTimeout, 0, ctx.Err())
	}
	defer func() { <-l.sem }()
	return l.inner.Generate(ctx, messages, params)
}
