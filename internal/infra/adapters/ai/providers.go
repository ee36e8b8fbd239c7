// File: internal/infra/adapters/ai/providers.go
package ai

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"avatar-live-server/internal/config"
	"avatar-live-server/internal/domain/ports/adapter"
)

// BuildProviders constructs every generation provider the configuration can
// support. Providers missing credentials are skipped with a warning, except
// the configured default, whose absence is an error.
func BuildProviders(ctx context.Context, cfg config.LLMConfig, logger *zerolog.Logger) ([]adapter.GenerationProvider, error) {
	log := logger.With().Str("component", "llm_factory").Logger()
	var out []adapter.GenerationProvider
	add := func(name string, p adapter.GenerationProvider, err error) error {
		if err != nil {
			if name == cfg.Provider {
				return fmt.Errorf("llm provider %s: %w", name, err)
			}
			log.Warn().Err(err).Str("provider", name).Msg("provider not configured, skipping")
			return nil
		}
		out = append(out, NewLimitedProvider(p, cfg.ConcurrentLimit))
		return nil
	}

	qwen, err := NewOpenAIAdapter(OpenAIOptions{
		Name: "qwen", APIKey: cfg.Qwen.APIKey, BaseURL: cfg.Qwen.BaseURL,
		Model: cfg.Qwen.Model, Timeout: cfg.Qwen.Timeout, Probe: ProbeCompletion,
	})
	if err := add("qwen", orNil(qwen, err), err); err != nil {
		return nil, err
	}

	oa, err := NewOpenAIAdapter(OpenAIOptions{
		Name: "openai", APIKey: cfg.OpenAI.APIKey, BaseURL: cfg.OpenAI.BaseURL,
		Model: cfg.OpenAI.Model, Timeout: cfg.OpenAI.Timeout, Probe: ProbeListModels,
	})
	if err := add("openai", orNil(oa, err), err); err != nil {
		return nil, err
	}

	var gem adapter.GenerationProvider
	g, err := NewGeminiAdapter(ctx, cfg.Gemini.APIKey, cfg.Gemini.BaseURL, cfg.Gemini.Model)
	if err == nil {
		gem = g
	}
	if err := add("gemini", gem, err); err != nil {
		return nil, err
	}

	_ = add("ollama", NewOllamaAdapter(cfg.Ollama.Model, cfg.Ollama.BaseURL, cfg.Ollama.Timeout), nil)
	_ = add("echo", NewEchoAdapter(0), nil)

	log.Info().Int("count", len(out)).Str("default", cfg.Provider).Msg("generation providers ready")
	return out, nil
}

// orNil avoids storing a typed nil pointer in the interface.
func orNil(a *OpenAIAdapter, err error) adapter.GenerationProvider {
	if err != nil || a == nil {
		return nil
	}
	return a
}
