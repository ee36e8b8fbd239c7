package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/ports/adapter"
	"avatar-live-server/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.GenerationProvider = (*OllamaAdapter)(nil)

// OllamaAdapter implements adapter.GenerationProvider against a local Ollama
// daemon. Base URL defaults to http://localhost:11434.
// Generation: POST /api/generate (non-streaming). Probe: GET /api/tags.
type OllamaAdapter struct {
	base   string
	model  string
	client *http.Client
}

func NewOllamaAdapter(model, base string, timeout time.Duration) *OllamaAdapter {
	if model == "" {
		model = "qwen2.5:7b"
	}
	if base == "" {
		base = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &OllamaAdapter{
		base:   strings.TrimRight(base, "/"),
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

func (o *OllamaAdapter) Name() string { return "ollama" }

func (o *OllamaAdapter) Probe(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.base+"/api/tags", nil)
	if err != nil {
		return false, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false, Classify(o.Name(), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK, nil
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (o *OllamaAdapter) Generate(ctx context.Context, messages []adapter.Message, params adapter.GenerationParams) (string, adapter.Usage, error) {
	if len(messages) == 0 {
		return "", adapter.Usage{}, domain.NewProviderError(o.Name(), domain.ErrInvalidRequest, 0, errors.New("no messages"))
	}
	body := ollamaRequest{
		Model:  o.model,
		Prompt: flattenPrompt(messages),
		Options: ollamaOptions{
			NumPredict:  params.MaxTokens,
			Temperature: params.Temperature,
			TopP:        params.TopP,
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/api/generate", bytes.NewReader(b))
	if err != nil {
		return "", adapter.Usage{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.client.Do(req)
	latency := int(time.Since(start) / time.Millisecond)
	if err != nil {
		err = Classify(o.Name(), err)
		metrics.ObserveGeneration(o.Name(), o.model, 0, 0, latency, domain.Kind(err))
		return "", adapter.Usage{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := ClassifyStatus(o.Name(), resp.StatusCode, fmt.Errorf("ollama http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
		metrics.ObserveGeneration(o.Name(), o.model, 0, 0, latency, domain.Kind(err))
		return "", adapter.Usage{}, err
	}

	var payload ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", adapter.Usage{}, domain.NewProviderError(o.Name(), domain.ErrTransport, resp.StatusCode, err)
	}
	u := adapter.Usage{
		PromptTokens:     payload.PromptEvalCount,
		CompletionTokens: payload.EvalCount,
		TotalTokens:      payload.PromptEvalCount + payload.EvalCount,
	}
	metrics.ObserveGeneration(o.Name(), o.model, u.PromptTokens, u.CompletionTokens, latency, "ok")
	text := strings.TrimSpace(payload.Response)
	if text == "" {
		return "", u, domain.NewProviderError(o.Name(), domain.ErrInvalidRequest, resp.StatusCode, errors.New("empty response"))
	}
	return text, u, nil
}

// flattenPrompt renders a chat transcript for completion-style endpoints.
func flattenPrompt(msgs []adapter.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			b.WriteString(m.Content)
			b.WriteString("\n\n")
		case "assistant":
			b.WriteString("Assistant: ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		default:
			b.WriteString("User: ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}
	b.WriteString("Assistant:")
	return b.String()
}
