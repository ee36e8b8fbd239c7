package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/ports/adapter"
	"avatar-live-server/internal/infra/adapters/ai"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.SynthesisProvider = (*SoVITSEngine)(nil)

// Voice selects the reference clip the engine imitates.
type Voice struct {
	RefAudioPath string
	PromptText   string
	PromptLang   string
}

type SoVITSOptions struct {
	Name        string // registry name; defaults to "sovits_engine"
	BaseURL     string // e.g. http://127.0.0.1:9880
	OutputDir   string // where clips are written
	TextLang    string
	SpeedFactor float64
	Timeout     time.Duration
	Voice       Voice
}

// SoVITSEngine calls a GPT-SoVITS HTTP inference server (POST /tts) and
// stores the returned clip under OutputDir.
type SoVITSEngine struct {
	opts   SoVITSOptions
	base   string
	client *http.Client
	voice  func() Voice
}

func NewSoVITSEngine(o SoVITSOptions) *SoVITSEngine {
	if o.Name == "" {
		o.Name = "sovits_engine"
	}
	if o.TextLang == "" {
		o.TextLang = "zh"
	}
	if o.Voice.PromptLang == "" {
		o.Voice.PromptLang = "zh"
	}
	if o.SpeedFactor <= 0 {
		o.SpeedFactor = 1.0
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	e := &SoVITSEngine{
		opts:   o,
		base:   strings.TrimRight(o.BaseURL, "/"),
		client: &http.Client{Timeout: o.Timeout},
	}
	e.voice = func() Voice { return e.opts.Voice }
	return e
}

func (e *SoVITSEngine) Name() string     { return e.opts.Name }
func (e *SoVITSEngine) ClientSide() bool { return false }

// Probe treats any non-5xx answer as "engine is up"; a bare GET /tts is
// rejected with 400 by a healthy server.
func (e *SoVITSEngine) Probe(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.base+"/tts", nil)
	if err != nil {
		return false, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false, ai.Classify(e.Name(), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < 500, nil
}

type ttsRequest struct {
	Text         string  `json:"text"`
	TextLang     string  `json:"text_lang"`
	RefAudioPath string  `json:"ref_audio_path"`
	PromptText   string  `json:"prompt_text"`
	PromptLang   string  `json:"prompt_lang"`
	SpeedFactor  float64 `json:"speed_factor"`
	MediaType    string  `json:"media_type"`
}

func (e *SoVITSEngine) Synthesize(ctx context.Context, text string) (adapter.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return adapter.Audio{}, domain.ErrEmptyInput
	}
	v := e.voice()
	body, err := json.Marshal(ttsRequest{
		Text:         text,
		TextLang:     e.opts.TextLang,
		RefAudioPath: v.RefAudioPath,
		PromptText:   v.PromptText,
		PromptLang:   v.PromptLang,
		SpeedFactor:  e.opts.SpeedFactor,
		MediaType:    "wav",
	})
	if err != nil {
		return adapter.Audio{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.base+"/tts", bytes.NewReader(body))
	if err != nil {
		return adapter.Audio{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return adapter.Audio{}, ai.Classify(e.Name(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return adapter.Audio{}, ai.ClassifyStatus(e.Name(), resp.StatusCode,
			fmt.Errorf("sovits http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	if err := os.MkdirAll(e.opts.OutputDir, 0o755); err != nil {
		return adapter.Audio{}, fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(e.opts.OutputDir, "tts_"+strings.ToLower(ulid.Make().String())+".wav")
	f, err := os.Create(path)
	if err != nil {
		return adapter.Audio{}, err
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return adapter.Audio{}, ai.Classify(e.Name(), err)
	}
	if n == 0 {
		_ = os.Remove(path)
		return adapter.Audio{}, domain.NewProviderError(e.Name(), domain.ErrTransport, resp.StatusCode, errors.New("empty audio"))
	}
	return adapter.Audio{Path: path, Format: "wav"}, nil
}

// SetWeights asks the engine to load a different SoVITS checkpoint.
func (e *SoVITSEngine) SetWeights(ctx context.Context, weightsPath string) error {
	u := e.base + "/set_sovits_weights?weights_path=" + url.QueryEscape(weightsPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return ai.Classify(e.Name(), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return ai.ClassifyStatus(e.Name(), resp.StatusCode, fmt.Errorf("set weights http %d", resp.StatusCode))
	}
	return nil
}
