package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"avatar-live-server/internal/application"
	"avatar-live-server/internal/config"
	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/domain/ports/adapter"
	"avatar-live-server/internal/domain/ports/repository"
	aiAdapters "avatar-live-server/internal/infra/adapters/ai"
	"avatar-live-server/internal/infra/adapters/speech"
	"avatar-live-server/internal/infra/avatar"
	pg "avatar-live-server/internal/infra/db/postgres"
	"avatar-live-server/internal/infra/db/sqlite"
	"avatar-live-server/internal/infra/i18n"
	"avatar-live-server/internal/infra/logging"
	"avatar-live-server/internal/infra/metrics"
	red "avatar-live-server/internal/infra/redis"
	"avatar-live-server/internal/infra/sched"
	"avatar-live-server/internal/infra/scheduler"
	"avatar-live-server/internal/infra/security"
	"avatar-live-server/internal/infra/storage"
	"avatar-live-server/internal/infra/web"
	"avatar-live-server/internal/infra/worker"
	"avatar-live-server/internal/infra/ws"
	"avatar-live-server/internal/usecase"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

var _ usecase.Observer = metrics.Observer{}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, verbose errors)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	metrics.SetStartTime(time.Now().Unix())
	logger.Info().Str("version", version).Bool("dev", cfg.Runtime.Dev).Msg("starting avatar-live-server")

	for _, dir := range []string{cfg.Server.TempDir, cfg.TTS.OutputDir, cfg.Training.ModelsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	// ---- Encryption (optional) ----
	encSvc, err := buildEncryption(cfg)
	if err != nil {
		return err
	}

	// ---- Chat log storage ----
	var (
		chatRepo repository.ChatSessionRepository
		tm       repository.TransactionManager
	)
	switch cfg.Database.Driver {
	case "postgres":
		pool, err := pg.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		if err := pg.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		go pg.ReportPoolStats(ctx, pool, 15*time.Second, logger)
		chatRepo = pg.NewChatSessionRepo(pool, encSvc)
		tm = pg.NewTxManager(pool)
	default:
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		defer db.Close()
		chatRepo = sqlite.NewChatSessionRepo(db, encSvc)
		tm = sqlite.NewTxManager(db)
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("chat log storage ready")

	// ---- Redis (optional) ----
	var (
		locker      repository.Locker
		rateLimiter repository.RateLimiter
		cacheOpts   = []usecase.AvailabilityOption{
			usecase.WithProbePolicy(usecase.ProbePolicy{Timeout: cfg.LLM.Probe.Timeout}),
			usecase.WithCacheObserver(metrics.Observer{}),
		}
	)
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rc.Close()
		locker = red.NewLocker(rc)
		rateLimiter = red.NewRateLimiter(rc)
		cacheOpts = append(cacheOpts, usecase.WithSharedStore(red.NewAvailabilityStore(rc)))
		logger.Info().Msg("redis connected; locks, rate limits and availability are shared")
	}
	cache := usecase.NewAvailabilityCache(cfg.Availability.Window, logger, cacheOpts...)

	// ---- Generation ----
	genProviders, err := aiAdapters.BuildProviders(ctx, cfg.LLM, logger)
	if err != nil {
		return err
	}
	genRegistry := usecase.NewRegistry(model.ProviderGeneration, genProviders...)
	if err := genRegistry.Select(cfg.LLM.Provider); err != nil {
		return err
	}
	counter, err := aiAdapters.NewTiktokenCounter(cfg.LLM.Encoding)
	if err != nil {
		return fmt.Errorf("token counter: %w", err)
	}

	// ---- Synthesis ----
	artifacts := storage.NewArtifactStore(cfg.Training.ModelsDir)
	sovitsOpts := speech.SoVITSOptions{
		BaseURL:     cfg.TTS.SoVITS.BaseURL,
		OutputDir:   cfg.TTS.OutputDir,
		TextLang:    cfg.TTS.SoVITS.TextLang,
		SpeedFactor: cfg.TTS.SoVITS.SpeedFactor,
		Timeout:     cfg.TTS.SoVITS.Timeout,
		Voice: speech.Voice{
			RefAudioPath: cfg.TTS.SoVITS.RefAudioPath,
			PromptText:   cfg.TTS.SoVITS.PromptText,
			PromptLang:   cfg.TTS.SoVITS.PromptLang,
		},
	}
	trainedVoice := speech.NewTrainedVoice(sovitsOpts, artifacts, cfg.Training.ModelName, cfg.TTS.SoVITS.TrainedWeight, logger)
	synthRegistry := usecase.NewRegistry[adapter.SynthesisProvider](model.ProviderSynthesis,
		speech.NewSoVITSEngine(sovitsOpts),
		trainedVoice,
		speech.Browser{},
	)
	if err := synthRegistry.Select(usecase.ProviderSoVITS); err != nil {
		return err
	}

	// ---- Recognition ----
	recogRegistry := usecase.NewRegistry[adapter.Recognizer](model.ProviderRecognition, speech.Browser{})
	if cfg.ASR.Enabled && cfg.ASR.Provider == "whisper" {
		w, err := speech.NewWhisper(cfg.ASR.Whisper.APIKey, cfg.ASR.Whisper.BaseURL, cfg.ASR.Whisper.Model, cfg.ASR.Language, cfg.ASR.Whisper.Timeout)
		if err != nil {
			return fmt.Errorf("whisper: %w", err)
		}
		recogRegistry.Register(w)
	}
	asrProvider := "browser"
	if _, ok := recogRegistry.Get(cfg.ASR.Provider); ok && cfg.ASR.Enabled {
		asrProvider = cfg.ASR.Provider
	}
	if err := recogRegistry.Select(asrProvider); err != nil {
		return err
	}

	// ---- Locale ----
	phrases, err := i18n.NewTranslator(i18n.LocalesFS, cfg.LLM.Language)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}

	// ---- Use cases ----
	obs := metrics.Observer{}
	chatLog := usecase.NewChatLogUseCase(chatRepo, tm, logger)
	reply := usecase.NewReplyUseCase(genRegistry, cache, usecase.NewEmotionClassifier(nil), chatLog, phrases,
		usecase.ReplyConfig{
			Params: adapter.GenerationParams{
				MaxTokens:   cfg.LLM.MaxTokens,
				Temperature: cfg.LLM.Temperature,
				TopP:        cfg.LLM.TopP,
			},
			HistoryTurns: cfg.LLM.HistoryTurns,
			TokenBudget:  cfg.LLM.TokenBudget,
			Retry: usecase.RetryPolicy{
				MaxRetries:    cfg.LLM.Retry.MaxRetries,
				BaseDelay:     cfg.LLM.Retry.BaseDelay,
				RateLimitBase: cfg.LLM.Retry.RateLimitBase,
				MaxDelay:      cfg.LLM.Retry.MaxDelay,
			},
		},
		logger,
		usecase.WithTokenCounter(counter),
		usecase.WithReplyObserver(obs),
	)
	speechUC := usecase.NewSpeechUseCase(synthRegistry, cache, usecase.SpeechConfig{
		Disabled:     cfg.TTS.Disabled,
		ServedRoot:   cfg.Server.TempDir,
		ServedPrefix: cfg.TTS.ServedPrefix,
		Timeout:      cfg.TTS.Timeout,
		InlineAudio:  cfg.TTS.InlineAudio,
	}, obs, logger)
	recognition := usecase.NewRecognitionUseCase(recogRegistry, cache, cfg.ASR.Whisper.Timeout, logger)

	avatarModel := avatar.DefaultModel()
	if cfg.Avatar.ModelPath != "" {
		m, err := avatar.LoadModel3(cfg.Avatar.ModelPath, cfg.Avatar.PublicDir)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.Avatar.ModelPath).Msg("avatar model unreadable, using default")
		} else {
			avatarModel = m
		}
	}
	avatarUC := usecase.NewAvatarUseCase(avatarModel, usecase.AvatarConfig{
		BaseDuration: cfg.Avatar.BaseDuration,
		Expressions:  cfg.Avatar.Expressions,
		MotionGroups: cfg.Avatar.MotionGroups,
	}, logger)

	pool := worker.NewPool(2, 8, logger)
	pool.Start(ctx)
	defer pool.Stop()

	training := usecase.NewTrainingUseCase(usecase.TrainingConfig{
		ModelName:     cfg.Training.ModelName,
		AudioFile:     cfg.Training.AudioFile,
		TextFile:      cfg.Training.TextFile,
		ReferenceText: cfg.Training.ReferenceText,
		DataDir:       cfg.Training.DataDir,
		ModelsDir:     cfg.Training.ModelsDir,
		Params: model.TrainingParams{
			Epochs:       cfg.Training.Epochs,
			BatchSize:    cfg.Training.BatchSize,
			LearningRate: cfg.Training.LearningRate,
		},
		LockTTL: cfg.Training.LockTTL,
	}, speech.NewToolkit(cfg.Training.ToolkitPath, cfg.Training.StepDelay, logger), artifacts, locker, pool, obs, logger)
	if err := training.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("restore training artifact")
	}

	if mode := usecase.ModeForProvider(cfg.TTS.Provider); cfg.TTS.Provider != usecase.ProviderSoVITS {
		if _, err := speechUC.SwitchMode(ctx, mode); err != nil {
			logger.Warn().Err(err).Str("mode", mode).Msg("configured synthesis mode unavailable, keeping pretrained")
		}
	}

	stats := usecase.NewStatsUseCase(reply, speechUC, recognition, training, chatLog, logger)

	// ---- Live sessions ----
	mgr := application.NewSessionManager(application.Deps{
		Reply:       reply,
		Speech:      speechUC,
		Recognition: recognition,
		Avatar:      avatarUC,
		Training:    training,
		Phrases:     phrases,
		Limiter:     rateLimiter,
		OnModelDeleted: func(context.Context) {
			trainedVoice.Unload()
		},
	}, application.Config{
		HistoryTurns: cfg.LLM.HistoryTurns,
		InboundQueue: cfg.Session.InboundQueue,
		RateLimit:    cfg.Session.RateLimit,
		RateWindow:   cfg.Session.RateWindow,
		Dev:          cfg.Runtime.Dev,
	}, logger)

	wsHandler := ws.NewHandler(ws.Config{
		SendQueue:      cfg.Session.SendQueue,
		WriteTimeout:   cfg.Session.WriteTimeout,
		PingInterval:   cfg.Session.PingInterval,
		MaxMessageSize: cfg.Session.MaxMessageSize,
	}, func(ctx context.Context, c *ws.Conn) { mgr.Serve(ctx, c) }, logger)

	srv := web.NewServer(web.Deps{
		Stats:       stats,
		ChatLog:     chatLog,
		Speech:      speechUC,
		Recognition: recognition,
		Avatar:      avatarUC,
		Hub:         mgr,
		WS:          wsHandler,
		Limiter:     rateLimiter,
	}, web.Options{
		Port:        cfg.Server.Port,
		StaticDir:   cfg.Server.StaticDir,
		TempDir:     cfg.Server.TempDir,
		JWTSecret:   cfg.Server.JWTSecret,
		ReadTimeout: cfg.Server.ReadTimeout,
		RateLimit:   cfg.Session.RateLimit,
		RateWindow:  cfg.Session.RateWindow,
		Client: web.ClientConfig{
			Language:    phrases.Lang(),
			LLMProvider: cfg.LLM.Provider,
			ASREnabled:  cfg.ASR.Enabled,
			ASRProvider: asrProvider,
			ModelURL:    avatarModel.ModelURL,
			WSPath:      "/ws",
		},
	}, logger)

	// ---- Background jobs ----
	warmer := sched.NewProbeWarmer(cfg.Scheduler.ProbeInterval, cache, func() []adapter.Provider {
		var out []adapter.Provider
		for _, p := range genRegistry.All() {
			out = append(out, p)
		}
		for _, p := range synthRegistry.All() {
			out = append(out, p)
		}
		for _, p := range recogRegistry.All() {
			out = append(out, p)
		}
		return out
	}, logger)
	go func() {
		if err := warmer.Run(ctx); err != nil {
			logger.Warn().Err(err).Msg("probe warmer stopped")
		}
	}()

	var retention *scheduler.Scheduler
	if cfg.Scheduler.RetentionDays > 0 {
		retention = scheduler.NewScheduler(cfg.Scheduler.CleanupInterval, sched.NewRetentionJob(chatLog, cfg.Scheduler.RetentionDays, logger), logger)
		retention.Start(ctx)
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	mgr.CloseAll()
	if retention != nil {
		retention.Stop()
	}
	logger.Info().Msg("bye")
	return nil
}

func buildEncryption(cfg *config.Config) (*security.EncryptionService, error) {
	if cfg.Database.EncryptionKey == "" {
		return nil, nil
	}
	svc, err := security.NewEncryptionService(cfg.Database.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption: %w", err)
	}
	return svc, nil
}
