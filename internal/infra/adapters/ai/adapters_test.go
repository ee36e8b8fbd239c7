//go:build !integration

package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"avatar-live-server/internal/config"
	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/ports/adapter"
	ai "avatar-live-server/internal/infra/adapters/ai"
)

func quiet() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

var convo = []adapter.Message{
	{Role: "system", Content: "你是小雨"},
	{Role: "user", Content: "你好"},
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status int
		want   error
	}{
		{401, domain.ErrAuth},
		{403, domain.ErrAuth},
		{429, domain.ErrRateLimited},
		{504, domain.ErrTimeout},
		{500, domain.ErrTransport},
		{503, domain.ErrTransport},
		{400, domain.ErrInvalidRequest},
	}
	for _, c := range cases {
		err := ai.ClassifyStatus("p", c.status, errors.New("x"))
		if !errors.Is(err, c.want) {
			t.Errorf("status %d: got %v, want %v", c.status, err, c.want)
		}
	}
	if err := ai.Classify("p", context.DeadlineExceeded); !errors.Is(err, domain.ErrTimeout) {
		t.Errorf("deadline should be a timeout, got %v", err)
	}
	wrapped := domain.NewProviderError("p", domain.ErrAuth, 401, nil)
	if got := ai.Classify("other", wrapped); got != error(wrapped) {
		t.Errorf("provider errors must pass through unchanged")
	}
}

func TestOllamaAdapter(t *testing.T) {
	t.Parallel()
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		case "/api/generate":
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			_, _ = w.Write([]byte(`{"response":" 你好呀！ ","prompt_eval_count":7,"eval_count":4}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	o := ai.NewOllamaAdapter("llama3", srv.URL, time.Second)
	ok, err := o.Probe(context.Background())
	if !ok || err != nil {
		t.Fatalf("probe: %v %v", ok, err)
	}
	text, usage, err := o.Generate(context.Background(), convo, adapter.GenerationParams{MaxTokens: 150, Temperature: 0.8})
	if err != nil {
		t.Fatal(err)
	}
	if text != "你好呀！" || usage.TotalTokens != 11 {
		t.Errorf("got %q %+v", text, usage)
	}
	if gotBody["model"] != "llama3" || gotBody["stream"] != false {
		t.Errorf("unexpected request %v", gotBody)
	}
}

func TestOllamaAdapter_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	o := ai.NewOllamaAdapter("", srv.URL, time.Second)
	if ok, _ := o.Probe(context.Background()); ok {
		t.Error("probe should report unavailable")
	}
	_, _, err := o.Generate(context.Background(), convo, adapter.GenerationParams{})
	if !errors.Is(err, domain.ErrTransport) || !domain.IsTransient(err) {
		t.Errorf("expected transient transport error, got %v", err)
	}
}

func TestOpenAIAdapter(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer good" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"qwen-plus",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"今天很开心！"}}],
			"usage":{"prompt_tokens":9,"completion_tokens":5,"total_tokens":14}}`))
	}))
	defer srv.Close()

	good, err := ai.NewOpenAIAdapter(ai.OpenAIOptions{Name: "qwen", APIKey: "good", BaseURL: srv.URL, Model: "qwen-plus", Probe: ai.ProbeCompletion})
	if err != nil {
		t.Fatal(err)
	}
	text, usage, err := good.Generate(context.Background(), convo, adapter.GenerationParams{MaxTokens: 150})
	if err != nil || text != "今天很开心！" || usage.TotalTokens != 14 {
		t.Fatalf("got %q %+v %v", text, usage, err)
	}
	if ok, err := good.Probe(context.Background()); !ok || err != nil {
		t.Errorf("probe: %v %v", ok, err)
	}

	bad, _ := ai.NewOpenAIAdapter(ai.OpenAIOptions{Name: "qwen", APIKey: "bad", BaseURL: srv.URL})
	before := calls.Load()
	_, _, err = bad.Generate(context.Background(), convo, adapter.GenerationParams{})
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if n := calls.Load() - before; n != 1 {
		t.Errorf("SDK must not retry on its own, saw %d calls", n)
	}
}

func TestLimitedProvider_HonoursContext(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	slow := &blockingGen{block: block}
	p := ai.NewLimitedProvider(slow, 1)

	go func() { _, _, _ = p.Generate(context.Background(), convo, adapter.GenerationParams{}) }()
	for slow.started.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := p.Generate(ctx, convo, adapter.GenerationParams{})
	if !errors.Is(err, domain.ErrTimeout) {
		t.Errorf("expected timeout waiting for a slot, got %v", err)
	}
	close(block)
}

type blockingGen struct {
	block   chan struct{}
	started atomic.Int32
}

func (b *blockingGen) Name() string                        { return "slow" }
func (b *blockingGen) Probe(context.Context) (bool, error) { return true, nil }
func (b *blockingGen) Generate(ctx context.Context, _ []adapter.Message, _ adapter.GenerationParams) (string, adapter.Usage, error) {
	b.started.Add(1)
	<-b.block
	return "ok", adapter.Usage{}, nil
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()
	cfg := config.LLMConfig{
		Provider: "qwen",
		Qwen:     config.ProviderConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1", Model: "qwen-plus"},
	}
	ps, err := ai.BuildProviders(context.Background(), cfg, quiet())
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, p := range ps {
		names[p.Name()] = true
	}
	for _, want := range []string{"qwen", "ollama", "echo"} {
		if !names[want] {
			t.Errorf("missing provider %s in %v", want, names)
		}
	}
	if names["openai"] || names["gemini"] {
		t.Errorf("providers without keys must be skipped: %v", names)
	}

	cfg.Provider = "openai"
	if _, err := ai.BuildProviders(context.Background(), cfg, quiet()); err == nil {
		t.Error("missing key for the default provider should fail")
	}
}

func TestEchoAdapter(t *testing.T) {
	t.Parallel()
	text, _, err := ai.NewEchoAdapter(0).Generate(context.Background(), convo, adapter.GenerationParams{})
	if err != nil || text == "" {
		t.Fatalf("got %q %v", text, err)
	}
}

func TestTiktokenCounter(t *testing.T) {
	t.Parallel()
	c, err := ai.NewTiktokenCounter("cl100k_base")
	if err != nil {
		t.Skipf("encoding unavailable offline: %v", err)
	}
	short := c.Count(convo[:1])
	long := c.Count(convo)
	if short <= 0 || long <= short {
		t.Errorf("counts not monotonic: %d %d", short, long)
	}
}
