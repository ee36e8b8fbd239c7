//go:build !integration

package speech

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/domain/ports/adapter"
	"avatar-live-server/internal/infra/storage"
)

func quiet() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func fakeEngine(t *testing.T, status int, body string) (*httptest.Server, *ttsRequest) {
	t.Helper()
	var last ttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/tts" && r.Method == http.MethodGet:
			http.Error(w, "text is required", http.StatusBadRequest)
		case r.URL.Path == "/tts":
			_ = json.NewDecoder(r.Body).Decode(&last)
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		case r.URL.Path == "/set_sovits_weights":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func TestSoVITSEngine_Synthesize(t *testing.T) {
	srv, last := fakeEngine(t, http.StatusOK, "RIFF....WAVE")
	out := t.TempDir()
	e := NewSoVITSEngine(SoVITSOptions{BaseURL: srv.URL, OutputDir: out, Voice: Voice{RefAudioPath: "ref.wav", PromptText: "您回来啦"}})

	if ok, err := e.Probe(context.Background()); !ok || err != nil {
		t.Fatalf("probe: %v %v", ok, err)
	}
	a, err := e.Synthesize(context.Background(), "你好")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(a.Path) != out || !strings.HasPrefix(filepath.Base(a.Path), "tts_") {
		t.Errorf("unexpected path %s", a.Path)
	}
	if b, _ := os.ReadFile(a.Path); string(b) != "RIFF....WAVE" {
		t.Errorf("unexpected audio %q", b)
	}
	if last.Text != "你好" || last.RefAudioPath != "ref.wav" || last.MediaType != "wav" {
		t.Errorf("unexpected request %+v", *last)
	}
}

func TestSoVITSEngine_Failures(t *testing.T) {
	srv, _ := fakeEngine(t, http.StatusInternalServerError, "cuda oom")
	e := NewSoVITSEngine(SoVITSOptions{BaseURL: srv.URL, OutputDir: t.TempDir()})
	if _, err := e.Synthesize(context.Background(), "你好"); !errors.Is(err, domain.ErrTransport) {
		t.Errorf("expected transport error, got %v", err)
	}

	empty, _ := fakeEngine(t, http.StatusOK, "")
	e = NewSoVITSEngine(SoVITSOptions{BaseURL: empty.URL, OutputDir: t.TempDir()})
	if _, err := e.Synthesize(context.Background(), "你好"); err == nil {
		t.Error("empty audio must be an error")
	}

	down := NewSoVITSEngine(SoVITSOptions{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	if ok, err := down.Probe(context.Background()); ok || err == nil {
		t.Errorf("unreachable engine: ok=%v err=%v", ok, err)
	}
}

func TestTrainedVoice_InitRequiresReadyArtifact(t *testing.T) {
	srv, last := fakeEngine(t, http.StatusOK, "RIFF")
	arts := storage.NewArtifactStore(t.TempDir())
	tv := NewTrainedVoice(SoVITSOptions{BaseURL: srv.URL, OutputDir: t.TempDir()}, arts, "arona_voice", "", quiet())

	if _, err := tv.Synthesize(context.Background(), "hi"); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected unavailable before init, got %v", err)
	}
	if err := tv.Init(context.Background()); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("init without artifact: %v", err)
	}

	_ = arts.Save(context.Background(), &model.TrainingArtifact{
		ModelName: "arona_voice", Status: model.TrainingReady,
		AudioSource: "audio_files/arona.wav", ReferenceText: "您回来啦，我等您很久啦！",
	})
	if err := tv.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := tv.Synthesize(context.Background(), "你好"); err != nil {
		t.Fatal(err)
	}
	if last.RefAudioPath != "audio_files/arona.wav" || last.PromptText != "您回来啦，我等您很久啦！" {
		t.Errorf("trained voice should use the artifact reference, got %+v", *last)
	}

	tv.Unload()
	if ok, _ := tv.Probe(context.Background()); ok {
		t.Error("unloaded voice must probe unavailable")
	}
}

func TestBrowser(t *testing.T) {
	var b Browser
	if !b.ClientSide() {
		t.Error("browser synthesis is client side")
	}
	if _, err := b.Recognize(context.Background(), []byte{1}, "webm"); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Errorf("got %v", err)
	}
}

func TestToolkit_PreparesAndCleansData(t *testing.T) {
	root := t.TempDir()
	audio := filepath.Join(root, "voice.wav")
	text := filepath.Join(root, "lines.txt")
	_ = os.WriteFile(audio, []byte("RIFF"), 0o644)
	_ = os.WriteFile(text, []byte("短句\n这是一个足够长的训练句子，用来测试。\n另一句同样足够长的训练文本内容。\n"), 0o644)

	in := adapter.TrainingInput{
		ModelName: "arona_voice",
		AudioFile: audio,
		TextFile:  text,
		DataDir:   filepath.Join(root, "training_data"),
		ModelsDir: filepath.Join(root, "trained_models"),
	}
	tk := NewToolkit("", 0, quiet())
	tk.ffmpeg = filepath.Join(root, "no-such-ffmpeg")

	for _, step := range model.TrainingSteps {
		if err := tk.RunStep(context.Background(), step, in); err != nil {
			t.Fatalf("step %s: %v", step.Key, err)
		}
	}
	if b, err := os.ReadFile(filepath.Join(in.DataDir, "arona_voice_processed.wav")); err != nil || string(b) != "RIFF" {
		t.Errorf("copy fallback failed: %q %v", b, err)
	}
	var samples []trainingSample
	b, _ := os.ReadFile(filepath.Join(in.DataDir, "arona_voice_list.json"))
	if err := json.Unmarshal(b, &samples); err != nil || len(samples) != 2 {
		t.Errorf("expected 2 samples, got %d (%v)", len(samples), err)
	}

	if err := tk.Cleanup(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	left, _ := filepath.Glob(filepath.Join(in.DataDir, "arona_voice*"))
	if len(left) != 0 {
		t.Errorf("cleanup left %v", left)
	}
	if err := tk.Cleanup(context.Background(), in); err != nil {
		t.Errorf("second cleanup: %v", err)
	}
}

func TestToolkit_MissingFiles(t *testing.T) {
	tk := NewToolkit("", 0, quiet())
	err := tk.RunStep(context.Background(), model.TrainingSteps[0], adapter.TrainingInput{AudioFile: "/nope.wav"})
	if err == nil {
		t.Fatal("expected missing file error")
	}
}

func TestToolkit_StepDelayHonoursContext(t *testing.T) {
	tk := NewToolkit("", time.Hour, quiet())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := tk.RunStep(ctx, model.TrainingSteps[3], adapter.TrainingInput{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v", err)
	}
}
