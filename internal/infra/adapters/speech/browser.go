package speech

import (
	"context"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/ports/adapter"
)

var (
	_ adapter.SynthesisProvider = Browser{}
	_ adapter.Recognizer        = Browser{}
)

// Browser delegates speech to the client (Web Speech API). It never
// produces audio on the server and is always available.
type Browser struct{}

func (Browser) Name() string                        { return "browser" }
func (Browser) Probe(context.Context) (bool, error) { return true, nil }
func (Browser) ClientSide() bool                    { return true }

func (Browser) Synthesize(context.Context, string) (adapter.Audio, error) {
	return adapter.Audio{}, domain.NewProviderError("browser", domain.ErrProviderUnavailable, 0, nil)
}

// Recognize always fails: transcripts come from the client's own recognizer.
func (Browser) Recognize(context.Context, []byte, string) (string, error) {
	return "", domain.NewProviderError("browser", domain.ErrProviderUnavailable, 0, nil)
}
