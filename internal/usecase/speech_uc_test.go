//go:build !integration

package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/domain/ports/adapter"
)

func newSpeechFixture(t *testing.T, cfg SpeechConfig, active string, providers ...adapter.SynthesisProvider) *speechUC {
	t.Helper()
	reg := NewRegistry(model.ProviderSynthesis, providers...)
	if active != "" {
		if err := reg.Select(active); err != nil {
			t.Fatal(err)
		}
	}
	cache := NewAvailabilityCache(time.Minute, silentLogger())
	return NewSpeechUseCase(reg, cache, cfg, nil, silentLogger())
}

func TestSpeech_EmptyInput(t *testing.T) {
	p := &fakeSynth{name: ProviderSoVITS}
	s := newSpeechFixture(t, SpeechConfig{}, ProviderSoVITS, p)
	for _, in := range []string{"", "   ", "🎉🎉"} {
		if _, err := s.Synthesize(context.Background(), in); !errors.Is(err, domain.ErrEmptyInput) {
			t.Errorf("Synthesize(%q): expected ErrEmptyInput, got %v", in, err)
		}
	}
	if p.synthCalls.Load() != 0 {
		t.Error("provider must not be called for empty input")
	}
}

func TestSpeech_FailureDelegatesToClient(t *testing.T) {
	p := &fakeSynth{name: ProviderSoVITS, err: domain.NewProviderError(ProviderSoVITS, domain.ErrTransport, 500, nil)}
	s := newSpeechFixture(t, SpeechConfig{}, ProviderSoVITS, p)

	res, err := s.Synthesize(context.Background(), "你好，世界！")
	if err != nil {
		t.Fatalf("failures must not surface: %v", err)
	}
	if res.Mode != model.SpeechBrowser || res.Text != "你好，世界！" {
		t.Errorf("expected browser result, got %+v", res)
	}
}

func TestSpeech_MissingFileIsFailure(t *testing.T) {
	p := &fakeSynth{name: ProviderSoVITS, path: filepath.Join(t.TempDir(), "gone.wav")}
	s := newSpeechFixture(t, SpeechConfig{}, ProviderSoVITS, p)
	res, err := s.Synthesize(context.Background(), "hello")
	if err != nil || res.Mode != model.SpeechBrowser {
		t.Fatalf("expected browser result, got %+v / %v", res, err)
	}
}

func TestSpeech_NoActiveProvider(t *testing.T) {
	s := newSpeechFixture(t, SpeechConfig{}, "", &fakeSynth{name: ProviderSoVITS})
	res, err := s.Synthesize(context.Background(), "hello")
	if err != nil || res.Mode != model.SpeechBrowser || res.Reason != "unavailable" {
		t.Fatalf("unexpected: %+v / %v", res, err)
	}
}

func TestSpeech_SuccessTranslatesPath(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "generated_audio")
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatal(err)
	}
	p := &fakeSynth{name: ProviderSoVITS, dir: out}
	s := newSpeechFixture(t, SpeechConfig{ServedRoot: root, ServedPrefix: "/temp", InlineAudio: true}, ProviderSoVITS, p)

	res, err := s.Synthesize(context.Background(), "你好")
	if err != nil {
		t.Fatal(err)
	}
	if res.Mode != model.SpeechAudio || res.AudioURL != "/temp/generated_audio/tts_test.wav" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.AudioData == "" {
		t.Error("expected inline audio")
	}

	t.Run("outside served root falls back to basename", func(t *testing.T) {
		s.cfg.ServedRoot = t.TempDir()
		res, _ := s.Synthesize(context.Background(), "你好")
		if res.AudioURL != "/temp/generated_audio/tts_test.wav" {
			t.Errorf("got %q", res.AudioURL)
		}
	})
}

func TestSpeech_SwitchMode(t *testing.T) {
	sovits := &fakeSynth{name: ProviderSoVITS}
	trained := &fakeSynth{name: ProviderTrained, initErr: errors.New("no trained model")}
	browser := &fakeSynth{name: ProviderBrowser, clientSide: true}
	s := newSpeechFixture(t, SpeechConfig{}, ProviderSoVITS, sovits, trained, browser)

	ok, err := s.SwitchMode(context.Background(), ModeTrained)
	if ok || err == nil {
		t.Fatal("expected switch to fail when init fails")
	}
	if trained.initCalls.Load() != 1 {
		t.Errorf("expected exactly one init attempt, got %d", trained.initCalls.Load())
	}
	if s.Mode() != ModePretrained {
		t.Errorf("mode must be unchanged, got %s", s.Mode())
	}

	trained.initErr = nil
	if ok, err := s.SwitchMode(context.Background(), ModeTrained); !ok || err != nil {
		t.Fatalf("expected switch to succeed: %v", err)
	}
	if ok, _ := s.SwitchMode(context.Background(), ModeTrained); !ok {
		t.Fatal("second switch should succeed")
	}
	if trained.initCalls.Load() != 2 {
		t.Errorf("initialized provider must not be re-initialized, got %d calls", trained.initCalls.Load())
	}

	if ok, err := s.SwitchMode(context.Background(), "karaoke"); ok || !errors.Is(err, domain.ErrUnknownProvider) {
		t.Errorf("expected unknown mode error, got %v", err)
	}

	if ok, _ := s.SwitchMode(context.Background(), ModeBrowser); !ok {
		t.Fatal("switch to browser failed")
	}
	res, err := s.Synthesize(context.Background(), "hi")
	if err != nil || res.Mode != model.SpeechBrowser || res.Reason != "client_side" {
		t.Errorf("unexpected browser-mode result %+v / %v", res, err)
	}

	st := s.Status()
	if !st.Enabled || st.Mode != ModeBrowser || len(st.Providers) != 3 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestNormalizeSpeechText(t *testing.T) {
	cases := map[string]string{
		"  你好！😊 ": "你好！",
		"Hi, 小雨~": "Hi, 小雨",
		"(＾▽＾)":   "",
		"第1名。":    "第1名。",
	}
	for in, want := range cases {
		if got := NormalizeSpeechText(in); got != want {
			t.Errorf("NormalizeSpeechText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSpeech_PreviewDoesNotSwitch(t *testing.T) {
	sovits := &fakeSynth{name: ProviderSoVITS, err: domain.NewProviderError(ProviderSoVITS, domain.ErrTransport, 502, nil)}
	trained := &fakeSynth{name: ProviderTrained}
	browser := &fakeSynth{name: ProviderBrowser, clientSide: true}
	s := newSpeechFixture(t, SpeechConfig{}, ProviderBrowser, sovits, trained, browser)
	s.MarkInitialized(ProviderSoVITS)

	if _, err := s.Preview(context.Background(), ModePretrained, "你好"); !errors.Is(err, domain.ErrTransport) {
		t.Errorf("preview should surface provider errors, got %v", err)
	}
	if _, err := s.Preview(context.Background(), ModeTrained, "你好"); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Errorf("uninitialized provider should be unavailable, got %v", err)
	}
	if trained.initCalls.Load() != 0 {
		t.Error("preview must not initialize providers")
	}
	if s.Mode() != ModeBrowser {
		t.Errorf("preview changed the mode to %s", s.Mode())
	}
}

func TestSpeech_PrepareInitializesWithoutSelecting(t *testing.T) {
	trained := &fakeSynth{name: ProviderTrained, dir: t.TempDir()}
	browser := &fakeSynth{name: ProviderBrowser, clientSide: true}
	s := newSpeechFixture(t, SpeechConfig{}, ProviderBrowser, trained, browser)

	for i := 0; i < 2; i++ {
		if err := s.Prepare(context.Background(), ModeTrained); err != nil {
			t.Fatalf("prepare #%d: %v", i+1, err)
		}
	}
	if got := trained.initCalls.Load(); got != 1 {
		t.Errorf("expected one init, got %d", got)
	}
	if s.Mode() != ModeBrowser {
		t.Errorf("prepare changed the mode to %s", s.Mode())
	}
	if res, err := s.Preview(context.Background(), ModeTrained, "你好"); err != nil || res.Mode != model.SpeechAudio {
		t.Fatalf("preview after prepare: %+v / %v", res, err)
	}

	s.Reset(ProviderTrained)
	if err := s.Prepare(context.Background(), ModeTrained); err != nil {
		t.Fatal(err)
	}
	if got := trained.initCalls.Load(); got != 2 {
		t.Errorf("reset must force a new init, got %d", got)
	}

	trained.initErr = errors.New("weights missing")
	s.Reset(ProviderTrained)
	if err := s.Prepare(context.Background(), ModeTrained); err == nil {
		t.Error("expected init failure to surface")
	}
	if err := s.Prepare(context.Background(), "robot"); !errors.Is(err, domain.ErrUnknownProvider) {
		t.Errorf("unknown mode: got %v", err)
	}
}
