package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/ports/adapter"
	"avatar-live-server/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.GenerationProvider = (*OpenAIAdapter)(nil)

// ProbeMode selects how an OpenAI-compatible backend is health-checked.
type ProbeMode int

const (
	// ProbeListModels calls GET /models (OpenAI proper).
	ProbeListModels ProbeMode = iota
	// ProbeCompletion sends a tiny completion; DashScope's compatible mode
	// does not expose a usable model listing.
	ProbeCompletion
)

// OpenAIAdapter talks to any OpenAI-compatible Chat Completions API through
// the official SDK. It serves both the "openai" and the "qwen" providers.
type OpenAIAdapter struct {
	name   string
	model  string
	client openai.Client
	probe  ProbeMode
}

type OpenAIOptions struct {
	Name    string // registry name, e.g. "qwen"
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Probe   ProbeMode
}

func NewOpenAIAdapter(o OpenAIOptions) (*OpenAIAdapter, error) {
	if o.APIKey == "" {
		return nil, errors.New(o.Name + ": api key empty")
	}
	if o.Model == "" {
		o.Model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(o.APIKey),
		// retries are owned by the reply use case
		option.WithMaxRetries(0),
	}
	if o.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(o.BaseURL, "/")+"/"))
	}
	if o.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(o.Timeout))
	}
	return &OpenAIAdapter{
		name:   o.Name,
		model:  o.Model,
		client: openai.NewClient(opts...),
		probe:  o.Probe,
	}, nil
}

func (a *OpenAIAdapter) Name() string { return a.name }

func (a *OpenAIAdapter) Probe(ctx context.Context) (bool, error) {
	if a.probe == ProbeListModels {
		if _, err := a.client.Models.List(ctx); err != nil {
			return false, Classify(a.name, err)
		}
		return true, nil
	}
	_, _, err := a.Generate(ctx, []adapter.Message{{Role: "user", Content: "hi"}}, adapter.GenerationParams{MaxTokens: 10})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *OpenAIAdapter) Generate(ctx context.Context, messages []adapter.Message, params adapter.GenerationParams) (string, adapter.Usage, error) {
	if len(messages) == 0 {
		return "", adapter.Usage{}, domain.NewProviderError(a.name, domain.ErrInvalidRequest, 0, errors.New("no messages"))
	}
	req := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(a.model),
		Messages: toOpenAIMessages(messages),
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = openai.Int(int64(params.MaxTokens))
	}
	if params.Temperature > 0 {
		req.Temperature = openai.Float(params.Temperature)
	}
	if params.TopP > 0 {
		req.TopP = openai.Float(params.TopP)
	}

	start := time.Now()
	resp, err := a.client.Chat.Completions.New(ctx, req)
	latency := int(time.Since(start) / time.Millisecond)
	if err != nil {
		err = Classify(a.name, err)
		metrics.ObserveGeneration(a.name, a.model, 0, 0, latency, domain.Kind(err))
		return "", adapter.Usage{}, err
	}

	u := adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	metrics.ObserveGeneration(a.name, a.model, u.PromptTokens, u.CompletionTokens, latency, "ok")
	for _, c := range resp.Choices {
		if strings.TrimSpace(c.Message.Content) != "" {
			return strings.TrimSpace(c.Message.Content), u, nil
		}
	}
	return "", u, domain.NewProviderError(a.name, domain.ErrInvalidRequest, 0, errors.New("no choice content"))
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
