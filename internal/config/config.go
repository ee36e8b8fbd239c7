package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	StaticDir    string        `yaml:"static_dir"`
	TempDir      string        `yaml:"temp_dir"` // served under /temp
	JWTSecret    string        `yaml:"jwt_secret"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	Driver        string `yaml:"driver"` // sqlite | postgres
	URL           string `yaml:"url"`
	Path          string `yaml:"path"`
	MaxConns      int32  `yaml:"max_conns"`
	EncryptionKey string `yaml:"encryption_key"` // optional, enables encryption at rest
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	RateLimitBase time.Duration `yaml:"rate_limit_base"`
	MaxDelay      time.Duration `yaml:"max_delay"`
}

type ProbeConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type ProviderConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type LLMConfig struct {
	Provider        string         `yaml:"provider"` // qwen | openai | gemini | ollama | echo
	Qwen            ProviderConfig `yaml:"qwen"`
	OpenAI          ProviderConfig `yaml:"openai"`
	Gemini          ProviderConfig `yaml:"gemini"`
	Ollama          ProviderConfig `yaml:"ollama"`
	MaxTokens       int            `yaml:"max_tokens"`
	Temperature     float64        `yaml:"temperature"`
	TopP            float64        `yaml:"top_p"`
	HistoryTurns    int            `yaml:"history_turns"`
	TokenBudget     int            `yaml:"token_budget"` // 0 disables prompt trimming
	Encoding        string         `yaml:"encoding"`
	ConcurrentLimit int            `yaml:"concurrent_limit"`
	Retry           RetryConfig    `yaml:"retry"`
	Probe           ProbeConfig    `yaml:"probe"`
	Language        string         `yaml:"language"` // persona locale: zh | en
}

type SoVITSConfig struct {
	BaseURL       string        `yaml:"base_url"`
	RefAudioPath  string        `yaml:"ref_audio_path"`
	PromptText    string        `yaml:"prompt_text"`
	PromptLang    string        `yaml:"prompt_lang"`
	TextLang      string        `yaml:"text_lang"`
	Timeout       time.Duration `yaml:"timeout"`
	SpeedFactor   float64       `yaml:"speed_factor"`
	TrainedWeight string        `yaml:"trained_weight"` // weights path sent when the trained voice is active
}

type TTSConfig struct {
	Disabled     bool          `yaml:"disabled"`
	Provider     string        `yaml:"provider"` // sovits_engine | trained_voice | browser
	OutputDir    string        `yaml:"output_dir"`
	ServedPrefix string        `yaml:"served_prefix"`
	Timeout      time.Duration `yaml:"timeout"`
	InlineAudio  bool          `yaml:"inline_audio"`
	SoVITS       SoVITSConfig  `yaml:"sovits"`
}

type ASRConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Provider string         `yaml:"provider"` // browser | whisper
	Whisper  ProviderConfig `yaml:"whisper"`
	Language string         `yaml:"language"`
}

type AvatarConfig struct {
	ModelPath    string            `yaml:"model_path"`
	PublicDir    string            `yaml:"public_dir"`
	BaseDuration time.Duration     `yaml:"base_duration"`
	Expressions  map[string]string `yaml:"expressions"` // emotion/intent -> expression id
	MotionGroups map[string]string `yaml:"motion_groups"`
}

type TrainingConfig struct {
	ModelName     string        `yaml:"model_name"`
	AudioFile     string        `yaml:"audio_file"`
	TextFile      string        `yaml:"text_file"`
	ToolkitPath   string        `yaml:"toolkit_path"`
	ReferenceText string        `yaml:"reference_text"`
	ModelsDir     string        `yaml:"models_dir"`
	DataDir       string        `yaml:"data_dir"`
	Epochs        int           `yaml:"epochs"`
	BatchSize     int           `yaml:"batch_size"`
	LearningRate  float64       `yaml:"learning_rate"`
	StepDelay     time.Duration `yaml:"step_delay"`
	LockTTL       time.Duration `yaml:"lock_ttl"`
}

type AvailabilityConfig struct {
	Window time.Duration `yaml:"window"`
}

type SessionConfig struct {
	SendQueue      int           `yaml:"send_queue"`
	InboundQueue   int           `yaml:"inbound_queue"`
	RateLimit      int           `yaml:"rate_limit"` // messages per RateWindow, 0 disables
	RateWindow     time.Duration `yaml:"rate_window"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxMessageSize int64         `yaml:"max_message_size"`
}

type SchedulerConfig struct {
	ProbeInterval   time.Duration `yaml:"probe_interval"`
	RetentionDays   int           `yaml:"retention_days"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	LLM          LLMConfig          `yaml:"llm"`
	TTS          TTSConfig          `yaml:"tts"`
	ASR          ASRConfig          `yaml:"asr"`
	Avatar       AvatarConfig       `yaml:"avatar"`
	Training     TrainingConfig     `yaml:"training"`
	Availability AvailabilityConfig `yaml:"availability"`
	Session      SessionConfig      `yaml:"session"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

var knownLLM = map[string]bool{"qwen": true, "openai": true, "gemini": true, "ollama": true, "echo": true}
var knownTTS = map[string]bool{"sovits_engine": true, "trained_voice": true, "browser": true}

// LoadConfig reads the YAML file at path. A missing file is not fatal: the
// defaults plus environment overrides are enough to boot a dev instance.
func LoadConfig(path string, dev bool) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setIfEnv(&cfg.LLM.Qwen.APIKey, "QWEN_API_KEY")
	setIfEnv(&cfg.LLM.Qwen.APIKey, "DASHSCOPE_API_KEY")
	setIfEnv(&cfg.LLM.OpenAI.APIKey, "OPENAI_API_KEY")
	setIfEnv(&cfg.LLM.Gemini.APIKey, "GEMINI_API_KEY")
	setIfEnv(&cfg.ASR.Whisper.APIKey, "WHISPER_API_KEY")
	setIfEnv(&cfg.Database.URL, "DATABASE_URL")
	setIfEnv(&cfg.Database.EncryptionKey, "CHAT_ENCRYPTION_KEY")
	setIfEnv(&cfg.Redis.URL, "REDIS_URL")
	setIfEnv(&cfg.Server.JWTSecret, "JWT_SECRET")
	setIfEnv(&cfg.LLM.Provider, "LLM_PROVIDER")
}

func setIfEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.StaticDir == "" {
		cfg.Server.StaticDir = "public"
	}
	if cfg.Server.TempDir == "" {
		cfg.Server.TempDir = "temp"
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Database.Driver == "" {
		if cfg.Database.URL != "" {
			cfg.Database.Driver = "postgres"
		} else {
			cfg.Database.Driver = "sqlite"
		}
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/chat_history.db"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	l := &cfg.LLM
	l.Provider = strings.ToLower(strings.TrimSpace(l.Provider))
	if l.Provider == "" {
		l.Provider = "qwen"
	}
	if l.Qwen.BaseURL == "" {
		l.Qwen.BaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	}
	if l.Qwen.Model == "" {
		l.Qwen.Model = "qwen-plus"
	}
	if l.OpenAI.BaseURL == "" {
		l.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if l.OpenAI.Model == "" {
		l.OpenAI.Model = "gpt-4o-mini"
	}
	if l.Gemini.Model == "" {
		l.Gemini.Model = "gemini-2.0-flash"
	}
	if l.Ollama.BaseURL == "" {
		l.Ollama.BaseURL = "http://localhost:11434"
	}
	if l.Ollama.Model == "" {
		l.Ollama.Model = "qwen2.5:7b"
	}
	for _, p := range []*ProviderConfig{&l.Qwen, &l.OpenAI, &l.Gemini, &l.Ollama} {
		if p.Timeout <= 0 {
			p.Timeout = 45 * time.Second
		}
	}
	if l.MaxTokens <= 0 {
		l.MaxTokens = 150
	}
	if l.Temperature <= 0 {
		l.Temperature = 0.8
	}
	if l.TopP <= 0 {
		l.TopP = 0.9
	}
	if l.HistoryTurns <= 0 {
		l.HistoryTurns = 3
	}
	if l.Encoding == "" {
		l.Encoding = "cl100k_base"
	}
	if l.ConcurrentLimit <= 0 {
		l.ConcurrentLimit = 16
	}
	// -1 disables retries; 0 means "unset".
	if l.Retry.MaxRetries < 0 {
		l.Retry.MaxRetries = 0
	} else if l.Retry.MaxRetries == 0 {
		l.Retry.MaxRetries = 2
	}
	if l.Retry.BaseDelay <= 0 {
		l.Retry.BaseDelay = 500 * time.Millisecond
	}
	if l.Retry.RateLimitBase <= 0 {
		l.Retry.RateLimitBase = time.Second
	}
	if l.Retry.MaxDelay <= 0 {
		l.Retry.MaxDelay = 8 * time.Second
	}
	if l.Probe.Timeout <= 0 {
		l.Probe.Timeout = 10 * time.Second
	}
	if l.Language == "" {
		l.Language = "zh"
	}

	t := &cfg.TTS
	if t.Provider == "" {
		t.Provider = "sovits_engine"
	}
	if t.OutputDir == "" {
		t.OutputDir = cfg.Server.TempDir + "/generated_audio"
	}
	if t.ServedPrefix == "" {
		t.ServedPrefix = "/temp"
	}
	if t.Timeout <= 0 {
		t.Timeout = 30 * time.Second
	}
	if t.SoVITS.BaseURL == "" {
		t.SoVITS.BaseURL = "http://127.0.0.1:9880"
	}
	if t.SoVITS.PromptLang == "" {
		t.SoVITS.PromptLang = "zh"
	}
	if t.SoVITS.TextLang == "" {
		t.SoVITS.TextLang = "zh"
	}
	if t.SoVITS.SpeedFactor <= 0 {
		t.SoVITS.SpeedFactor = 1.0
	}
	if t.SoVITS.Timeout <= 0 {
		t.SoVITS.Timeout = t.Timeout
	}

	if cfg.ASR.Provider == "" {
		cfg.ASR.Provider = "browser"
	}
	if cfg.ASR.Whisper.Model == "" {
		cfg.ASR.Whisper.Model = "whisper-1"
	}
	if cfg.ASR.Whisper.Timeout <= 0 {
		cfg.ASR.Whisper.Timeout = 30 * time.Second
	}
	if cfg.ASR.Language == "" {
		cfg.ASR.Language = "zh"
	}

	a := &cfg.Avatar
	if a.PublicDir == "" {
		a.PublicDir = cfg.Server.StaticDir
	}
	if a.BaseDuration <= 0 {
		a.BaseDuration = 2 * time.Second
	}
	if len(a.Expressions) == 0 {
		a.Expressions = DefaultExpressionMapping()
	}
	if len(a.MotionGroups) == 0 {
		a.MotionGroups = map[string]string{
			"idle":      "Idle",
			"greeting":  "TapBody",
			"speaking":  "Speaking",
			"listening": "Listening",
		}
	}

	tr := &cfg.Training
	if tr.ModelName == "" {
		tr.ModelName = "arona_voice"
	}
	if tr.AudioFile == "" {
		tr.AudioFile = "audio_files/arona_attendance_enter_1.wav"
	}
	if tr.TextFile == "" {
		tr.TextFile = "audio_files/txt.txt"
	}
	if tr.ToolkitPath == "" {
		tr.ToolkitPath = "GPT-SoVITS"
	}
	if tr.ReferenceText == "" {
		tr.ReferenceText = "您回来啦，我等您很久啦！"
	}
	if tr.ModelsDir == "" {
		tr.ModelsDir = "trained_models"
	}
	if tr.DataDir == "" {
		tr.DataDir = "training_data"
	}
	if tr.Epochs <= 0 {
		tr.Epochs = 200
	}
	if tr.BatchSize <= 0 {
		tr.BatchSize = 8
	}
	if tr.LearningRate <= 0 {
		tr.LearningRate = 0.0001
	}
	if tr.StepDelay < 0 {
		tr.StepDelay = 0
	}
	if tr.LockTTL <= 0 {
		tr.LockTTL = 30 * time.Minute
	}

	if cfg.Availability.Window <= 0 {
		cfg.Availability.Window = 60 * time.Second
	}

	s := &cfg.Session
	if s.SendQueue <= 0 {
		s.SendQueue = 64
	}
	if s.InboundQueue <= 0 {
		s.InboundQueue = 32
	}
	if s.RateWindow <= 0 {
		s.RateWindow = time.Minute
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = 5 * time.Second
	}
	if s.PingInterval <= 0 {
		s.PingInterval = 20 * time.Second
	}
	if s.MaxMessageSize <= 0 {
		s.MaxMessageSize = 8 << 20
	}

	if cfg.Scheduler.ProbeInterval <= 0 {
		cfg.Scheduler.ProbeInterval = cfg.Availability.Window
	}
	if cfg.Scheduler.RetentionDays <= 0 {
		cfg.Scheduler.RetentionDays = 30
	}
	if cfg.Scheduler.CleanupInterval <= 0 {
		cfg.Scheduler.CleanupInterval = 24 * time.Hour
	}
}

// Validate performs the minimal checks needed to wire the process.
func (c *Config) Validate() error {
	if !knownLLM[c.LLM.Provider] {
		return fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider)
	}
	if !knownTTS[c.TTS.Provider] {
		return fmt.Errorf("tts.provider %q is not supported", c.TTS.Provider)
	}
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if k := len(c.Database.EncryptionKey); k != 0 && k != 16 && k != 24 && k != 32 {
		return fmt.Errorf("database.encryption_key must be 16, 24 or 32 bytes; got %d", k)
	}
	return nil
}

// DefaultExpressionMapping maps emotions and the broader intent vocabulary to
// expression ids of the default avatar.
func DefaultExpressionMapping() map[string]string {
	return map[string]string{
		"neutral":      "neutral",
		"happy":        "happy",
		"sad":          "sad",
		"angry":        "angry",
		"surprised":    "surprised",
		"joy":          "happy",
		"excited":      "happy",
		"disappointed": "sad",
		"frustrated":   "angry",
		"amazed":       "surprised",
		"confused":     "neutral",
		"thinking":     "neutral",
	}
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
