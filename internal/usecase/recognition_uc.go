package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/ports/adapter"
)

// Compile-time check
var _ RecognitionUseCase = (*recognitionUC)(nil)

type RecognitionUseCase interface {
	Recognize(ctx context.Context, audio []byte, format string) (string, error)
	Provider() string
	Available(ctx context.Context) bool
}

type recognitionUC struct {
	registry *Registry[adapter.Recognizer]
	cache    *AvailabilityCache
	timeout  time.Duration
	log      zerolog.Logger
}

func NewRecognitionUseCase(registry *Registry[adapter.Recognizer], cache *AvailabilityCache, timeout time.Duration, logger *zerolog.Logger) *recognitionUC {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &recognitionUC{
		registry: registry,
		cache:    cache,
		timeout:  timeout,
		log:      logger.With().Str("component", "recognition").Logger(),
	}
}

// Recognize returns ErrEmptyInput for empty audio or an empty transcript.
func (r *recognitionUC) Recognize(ctx context.Context, audio []byte, format string) (string, error) {
	if len(audio) == 0 {
		return "", domain.ErrEmptyInput
	}
	p, ok := r.registry.Active()
	if !ok {
		return "", domain.ErrProviderUnavailable
	}
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	text, err := p.Recognize(cctx, audio, format)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
			err = domain.NewProviderError(p.Name(), domain.ErrTimeout, 0, err)
		}
		r.log.Warn().Err(err).Str("provider", p.Name()).Int("bytes", len(audio)).Msg("recognition failed")
		return "", fmt.Errorf("recognize: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.ErrEmptyInput
	}
	return text, nil
}

func (r *recognitionUC) Provider() string { return r.registry.ActiveName() }

func (r *recognitionUC) Available(ctx context.Context) bool {
	p, ok := r.registry.Active()
	if !ok {
		return false
	}
	return r.cache.IsAvailable(ctx, p)
}
