package adapter

import "context"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// GenerationParams are the sampling knobs forwarded to the model.
type GenerationParams struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Usage for a single chat call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is the common surface of every named backend.
type Provider interface {
	Name() string

	// Probe is a cheap reachability check. A false result with nil error
	// means the backend answered but is not usable.
	Probe(ctx context.Context) (bool, error)
}

// Initializer is implemented by providers that need a one-time setup
// (model loading and such) before their first use.
type Initializer interface {
	Init(ctx context.Context) error
}

// GenerationProvider is the port for LLM chat.
type GenerationProvider interface {
	Provider

	// Generate returns the assistant text. Errors should be (or wrap) a
	// domain.ProviderError so callers can classify them.
	Generate(ctx context.Context, messages []Message, params GenerationParams) (string, Usage, error)
}

// TokenCounter estimates the prompt size of a message list.
type TokenCounter interface {
	Count(messages []Message) int
}
