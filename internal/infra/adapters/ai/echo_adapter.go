package ai

import (
	"context"
	"time"

	"avatar-live-server/internal/domain/ports/adapter"
)

var _ adapter.GenerationProvider = (*EchoAdapter)(nil)

// EchoAdapter is an offline provider for local/dev testing. It answers by
// repeating the last user message.
type EchoAdapter struct {
	delay time.Duration
}

func NewEchoAdapter(delay time.Duration) *EchoAdapter {
	return &EchoAdapter{delay: delay}
}

func (a *EchoAdapter) Name() string { return "echo" }

func (a *EchoAdapter) Probe(ctx context.Context) (bool, error) { return true, nil }

func (a *EchoAdapter) Generate(ctx context.Context, messages []adapter.Message, _ adapter.GenerationParams) (string, adapter.Usage, error) {
	// Simulate slight processing time and respect ctx
	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
		return "", adapter.Usage{}, Classify(a.Name(), ctx.Err())
	}
	last := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			last = messages[i].Content
			break
		}
	}
	return "你说的是：" + last + " 😊", adapter.Usage{}, nil
}
