package speech

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"avatar-live-server/internal/domain/ports/adapter"
	"avatar-live-server/internal/infra/adapters/ai"
)

var _ adapter.Recognizer = (*Whisper)(nil)

// Whisper transcribes clips through the OpenAI audio transcription endpoint
// (or any server that implements it).
type Whisper struct {
	client   openai.Client
	model    string
	language string
}

func NewWhisper(apiKey, baseURL, model, language string, timeout time.Duration) (*Whisper, error) {
	if apiKey == "" {
		return nil, errors.New("whisper: api key empty")
	}
	if model == "" {
		model = "whisper-1"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &Whisper{client: openai.NewClient(opts...), model: model, language: language}, nil
}

func (w *Whisper) Name() string { return "whisper" }

func (w *Whisper) Probe(ctx context.Context) (bool, error) {
	if _, err := w.client.Models.List(ctx); err != nil {
		return false, ai.Classify(w.Name(), err)
	}
	return true, nil
}

func (w *Whisper) Recognize(ctx context.Context, audio []byte, format string) (string, error) {
	if format == "" {
		format = "webm"
	}
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), "clip."+format, "audio/"+format),
		Model: openai.AudioModel(w.model),
	}
	if w.language != "" {
		params.Language = openai.String(w.language)
	}
	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", ai.Classify(w.Name(), err)
	}
	return strings.TrimSpace(resp.Text), nil
}
