//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LLM_PROVIDER", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), true)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Runtime.Dev {
		t.Errorf("dev flag not propagated")
	}
	if cfg.LLM.Provider != "qwen" || cfg.LLM.Qwen.Model != "qwen-plus" {
		t.Errorf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.LLM.MaxTokens != 150 || cfg.LLM.Temperature != 0.8 || cfg.LLM.TopP != 0.9 {
		t.Errorf("unexpected generation params: %+v", cfg.LLM)
	}
	if cfg.LLM.Retry.MaxRetries != 2 || cfg.LLM.Probe.Timeout != 10*time.Second {
		t.Errorf("retry/probe policies should default independently, got %+v / %+v", cfg.LLM.Retry, cfg.LLM.Probe)
	}
	if cfg.Availability.Window != 60*time.Second {
		t.Errorf("availability window = %s", cfg.Availability.Window)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Avatar.Expressions["excited"] != "happy" {
		t.Errorf("intent mapping missing")
	}
}

func TestLoadConfig_YAMLAndEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("DATABASE_URL", "")
	p := writeYAML(t, `
llm:
  provider: OpenAI
  retry:
    max_retries: -1
tts:
  provider: browser
availability:
  window: 5s
`)
	cfg, err := LoadConfig(p, false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("provider = %q", cfg.LLM.Provider)
	}
	if cfg.LLM.OpenAI.APIKey != "sk-env" {
		t.Errorf("env override not applied")
	}
	if cfg.LLM.Retry.MaxRetries != 0 {
		t.Errorf("negative max_retries should disable retries, got %d", cfg.LLM.Retry.MaxRetries)
	}
	if cfg.Availability.Window != 5*time.Second || cfg.Scheduler.ProbeInterval != 5*time.Second {
		t.Errorf("window/probe interval = %s/%s", cfg.Availability.Window, cfg.Scheduler.ProbeInterval)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("DATABASE_URL", "")
	cases := map[string]string{
		"unknown llm":        "llm:\n  provider: nope\n",
		"unknown tts":        "tts:\n  provider: nope\n",
		"postgres no url":    "database:\n  driver: postgres\n",
		"bad encryption key": "database:\n  encryption_key: short\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeYAML(t, body), false); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
