// File: internal/infra/adapters/ai/gemini_adapter.go
package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/ports/adapter"
	"avatar-live-server/internal/infra/metrics"
)

var _ adapter.GenerationProvider = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel}, nil
}

func (g *GeminiAdapter) Name() string { return "gemini" }

// Probe fetches the configured model's metadata.
func (g *GeminiAdapter) Probe(ctx context.Context) (bool, error) {
	m, err := g.client.Models.Get(ctx, g.defaultModel, nil)
	if err != nil {
		return false, Classify(g.Name(), err)
	}
	return m != nil, nil
}

func (g *GeminiAdapter) Generate(ctx context.Context, messages []adapter.Message, params adapter.GenerationParams) (string, adapter.Usage, error) {
	if len(messages) == 0 {
		return "", adapter.Usage{}, domain.NewProviderError(g.Name(), domain.ErrInvalidRequest, 0, errors.New("no messages"))
	}
	last := messages[len(messages)-1]
	if strings.ToLower(last.Role) != "user" {
		return "", adapter.Usage{}, domain.NewProviderError(g.Name(), domain.ErrInvalidRequest, 0, errors.New("last message must be from user"))
	}

	// Gemini takes the persona as a system instruction, not as history.
	var system []string
	var rest []adapter.Message
	for _, m := range messages[:len(messages)-1] {
		if strings.ToLower(m.Role) == "system" {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	cfg := &genai.GenerateContentConfig{}
	if params.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(params.MaxTokens)
	}
	if params.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(params.Temperature))
	}
	if params.TopP > 0 {
		cfg.TopP = genai.Ptr(float32(params.TopP))
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n")}}}
	}

	start := time.Now()
	chat, err := g.client.Chats.Create(ctx, g.defaultModel, cfg, toGenAIHistory(rest))
	if err != nil {
		return "", adapter.Usage{}, Classify(g.Name(), err)
	}
	resp, err := chat.SendMessage(ctx, genai.Part{Text: last.Content})
	latency := int(time.Since(start) / time.Millisecond)
	if err != nil {
		err = Classify(g.Name(), err)
		metrics.ObserveGeneration(g.Name(), g.defaultModel, 0, 0, latency, domain.Kind(err))
		return "", adapter.Usage{}, err
	}

	u := adapter.Usage{}
	if resp != nil && resp.UsageMetadata != nil {
		u.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		u.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		u.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	metrics.ObserveGeneration(g.Name(), g.defaultModel, u.PromptTokens, u.CompletionTokens, latency, "ok")

	text := ""
	if resp != nil {
		text = strings.TrimSpace(resp.Text())
	}
	if text == "" {
		return "", u, domain.NewProviderError(g.Name(), domain.ErrInvalidRequest, 0, errors.New("no candidate text"))
	}
	return text, u, nil
}

func toGenAIHistory(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		switch strings.ToLower(m.Role) {
		case "assistant", "model":
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}
