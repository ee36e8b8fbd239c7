// File: internal/usecase/speech_uc.go
package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/domain/ports/adapter"
)

// Compile-time check
var _ SpeechUseCase = (*speechUC)(nil)

// Client-facing synthesis modes and the provider each one selects.
const (
	ModePretrained = "pretrained_sovits"
	ModeTrained    = "trained_model"
	ModeBrowser    = "browser"

	ProviderSoVITS  = "sovits_engine"
	ProviderTrained = "trained_voice"
	ProviderBrowser = "browser"
)

var modeProviders = map[string]string{
	ModePretrained: ProviderSoVITS,
	ModeTrained:    ProviderTrained,
	ModeBrowser:    ProviderBrowser,
}

// ModeForProvider is the inverse of the mode table; unknown names map to themselves.
func ModeForProvider(name string) string {
	for m, p := range modeProviders {
		if p == name {
			return m
		}
	}
	return name
}

// SpeechUseCase synthesizes replies. Any provider failure degrades to a
// browser-mode result; only empty input is reported as an error.
type SpeechUseCase interface {
	Synthesize(ctx context.Context, text string) (model.SpeechResult, error)
	SwitchMode(ctx context.Context, mode string) (bool, error)
	Preview(ctx context.Context, mode, text string) (model.SpeechResult, error)
	// Prepare initializes the provider behind mode without selecting it.
	Prepare(ctx context.Context, mode string) error
	Mode() string
	Status() SpeechStatus
	// Reset forces the next switch to name to initialize it again.
	Reset(name string)
}

type SpeechConfig struct {
	Disabled     bool
	ServedRoot   string // directory served under ServedPrefix
	ServedPrefix string // e.g. "/temp"
	Timeout      time.Duration
	InlineAudio  bool
}

type SpeechStatus struct {
	Enabled   bool                       `json:"enabled"`
	Provider  string                     `json:"provider"`
	Mode      string                     `json:"mode"`
	Providers []model.ProviderDescriptor `json:"providers"`
}

type speechUC struct {
	registry *Registry[adapter.SynthesisProvider]
	cache    *AvailabilityCache
	cfg      SpeechConfig

	switchMu    sync.Mutex
	initialized map[string]bool

	obs Observer
	log zerolog.Logger
}

func NewSpeechUseCase(registry *Registry[adapter.SynthesisProvider], cache *AvailabilityCache, cfg SpeechConfig, obs Observer, logger *zerolog.Logger) *speechUC {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ServedPrefix == "" {
		cfg.ServedPrefix = "/temp"
	}
	return &speechUC{
		registry:    registry,
		cache:       cache,
		cfg:         cfg,
		initialized: make(map[string]bool),
		obs:         observerOrNoop(obs),
		log:         logger.With().Str("component", "speech").Logger(),
	}
}

func (s *speechUC) Synthesize(ctx context.Context, text string) (model.SpeechResult, error) {
	clean := NormalizeSpeechText(text)
	if clean == "" {
		return model.SpeechResult{}, domain.ErrEmptyInput
	}
	if s.cfg.Disabled {
		return s.browser(clean, "", "disabled"), nil
	}

	p, ok := s.registry.Active()
	if !ok {
		s.log.Warn().Err(domain.ErrProviderUnavailable).Msg("no synthesis provider selected")
		return s.browser(clean, "", "unavailable"), nil
	}
	name := p.Name()
	if p.ClientSide() {
		return s.browser(clean, name, "client_side"), nil
	}

	res, err := s.produce(ctx, p, clean)
	if err != nil {
		s.log.Warn().Err(err).Str("provider", name).Str("kind", domain.Kind(err)).Msg("synthesis failed, delegating to client")
		return s.browser(clean, name, domain.Kind(err)), nil
	}
	return res, nil
}

// Preview synthesizes with the provider behind mode without switching to it.
// Unlike Synthesize, provider failures are returned.
func (s *speechUC) Preview(ctx context.Context, mode, text string) (model.SpeechResult, error) {
	clean := NormalizeSpeechText(text)
	if clean == "" {
		return model.SpeechResult{}, domain.ErrEmptyInput
	}
	name, ok := modeProviders[mode]
	if !ok {
		return model.SpeechResult{}, fmt.Errorf("synthesis mode %q: %w", mode, domain.ErrUnknownProvider)
	}
	p, ok := s.registry.Get(name)
	if !ok {
		return model.SpeechResult{}, fmt.Errorf("synthesis provider %q: %w", name, domain.ErrUnknownProvider)
	}
	if p.ClientSide() {
		return s.browser(clean, name, "client_side"), nil
	}
	if _, needsInit := p.(adapter.Initializer); needsInit {
		s.switchMu.Lock()
		ready := s.initialized[name]
		s.switchMu.Unlock()
		if !ready {
			return model.SpeechResult{}, fmt.Errorf("%s not initialized: %w", name, domain.ErrProviderUnavailable)
		}
	}
	return s.produce(ctx, p, clean)
}

func (s *speechUC) produce(ctx context.Context, p adapter.SynthesisProvider, clean string) (model.SpeechResult, error) {
	name := p.Name()
	audio, err := s.call(ctx, p, clean)
	if err == nil {
		if _, statErr := os.Stat(audio.Path); statErr != nil {
			err = fmt.Errorf("synthesized file missing: %w", statErr)
		}
	}
	if err != nil {
		return model.SpeechResult{}, err
	}

	res := model.SpeechResult{
		Mode:     model.SpeechAudio,
		Text:     clean,
		AudioURL: s.servedURL(audio.Path),
		Provider: name,
	}
	if s.cfg.InlineAudio {
		if data, rerr := os.ReadFile(audio.Path); rerr == nil {
			res.AudioData = base64.StdEncoding.EncodeToString(data)
		}
	}
	s.obs.Synthesis(name, string(model.SpeechAudio))
	return res, nil
}

func (s *speechUC) call(ctx context.Context, p adapter.SynthesisProvider, text string) (a adapter.Audio, err error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("synthesis panic: %v", r)
		}
	}()
	a, err = p.Synthesize(cctx, text)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
		err = domain.NewProviderError(p.Name(), domain.ErrTimeout, 0, err)
	}
	return a, err
}

func (s *speechUC) browser(text, provider, reason string) model.SpeechResult {
	s.obs.Synthesis(provider, string(model.SpeechBrowser))
	return model.SpeechResult{Mode: model.SpeechBrowser, Text: text, Provider: provider, Reason: reason}
}

// servedURL maps a file under ServedRoot to its URL, falling back to the
// conventional generated_audio location by basename.
func (s *speechUC) servedURL(p string) string {
	base := filepath.Base(p)
	fallback := path.Join(s.cfg.ServedPrefix, "generated_audio", base)
	if s.cfg.ServedRoot == "" {
		return fallback
	}
	root, err := filepath.Abs(s.cfg.ServedRoot)
	if err != nil {
		return fallback
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return fallback
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fallback
	}
	return path.Join(s.cfg.ServedPrefix, filepath.ToSlash(rel))
}

func (s *speechUC) lookupMode(mode string) (string, adapter.SynthesisProvider, error) {
	name, ok := modeProviders[mode]
	if !ok {
		return "", nil, fmt.Errorf("synthesis mode %q: %w", mode, domain.ErrUnknownProvider)
	}
	p, ok := s.registry.Get(name)
	if !ok {
		return "", nil, fmt.Errorf("synthesis provider %q: %w", name, domain.ErrUnknownProvider)
	}
	return name, p, nil
}

// initLocked runs Init once per provider; caller holds switchMu.
func (s *speechUC) initLocked(ctx context.Context, name string, p adapter.SynthesisProvider) error {
	in, ok := p.(adapter.Initializer)
	if !ok || s.initialized[name] {
		return nil
	}
	if err := in.Init(ctx); err != nil {
		s.log.Error().Err(err).Str("provider", name).Msg("synthesis provider init failed")
		return err
	}
	s.initialized[name] = true
	return nil
}

func (s *speechUC) Prepare(ctx context.Context, mode string) error {
	name, p, err := s.lookupMode(mode)
	if err != nil {
		return err
	}
	s.switchMu.Lock()
	defer s.switchMu.Unlock()
	return s.initLocked(ctx, name, p)
}

func (s *speechUC) SwitchMode(ctx context.Context, mode string) (bool, error) {
	name, p, err := s.lookupMode(mode)
	if err != nil {
		return false, err
	}

	s.switchMu.Lock()
	defer s.switchMu.Unlock()
	if err := s.initLocked(ctx, name, p); err != nil {
		return false, err
	}
	if err := s.registry.Select(name); err != nil {
		return false, err
	}
	s.cache.Invalidate(name)
	s.log.Info().Str("mode", mode).Str("provider", name).Msg("synthesis mode switched")
	return true, nil
}

// MarkInitialized records that name was set up outside SwitchMode.
func (s *speechUC) MarkInitialized(name string) {
	s.switchMu.Lock()
	s.initialized[name] = true
	s.switchMu.Unlock()
}

func (s *speechUC) Reset(name string) {
	s.switchMu.Lock()
	delete(s.initialized, name)
	s.switchMu.Unlock()
	s.cache.Invalidate(name)
}

func (s *speechUC) Mode() string {
	return ModeForProvider(s.registry.ActiveName())
}

func (s *speechUC) Status() SpeechStatus {
	return SpeechStatus{
		Enabled:   !s.cfg.Disabled,
		Provider:  s.registry.ActiveName(),
		Mode:      s.Mode(),
		Providers: s.registry.Describe(s.cache),
	}
}

const speechPunct = "，。！？,.!?:;"

// NormalizeSpeechText keeps what the voice engine can pronounce.
func NormalizeSpeechText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.TrimSpace(text) {
		switch {
		case unicode.Is(unicode.Han, r),
			unicode.Is(unicode.Latin, r) && unicode.IsLetter(r),
			unicode.IsDigit(r),
			unicode.IsSpace(r),
			strings.ContainsRune(speechPunct, r):
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
