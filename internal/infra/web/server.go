package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"avatar-live-server/internal/domain/ports/repository"
	"avatar-live-server/internal/usecase"
)

// Hub is the live-session side the HTTP API needs.
type Hub interface {
	Connections() int
	DeleteVoiceModel(ctx context.Context) error
}

// ClientConfig is the public part of the configuration served to the page.
type ClientConfig struct {
	Language    string `json:"language"`
	LLMProvider string `json:"llm_provider"`
	TTSMode     string `json:"tts_mode"`
	ASREnabled  bool   `json:"asr_enabled"`
	ASRProvider string `json:"asr_provider"`
	ModelURL    string `json:"model_url"`
	WSPath      string `json:"ws_path"`
}

type Deps struct {
	Stats       usecase.StatsUseCase
	ChatLog     usecase.ChatLogUseCase
	Speech      usecase.SpeechUseCase
	Recognition usecase.RecognitionUseCase
	Avatar      usecase.AvatarUseCase
	Hub         Hub
	WS          http.Handler
	Limiter     repository.RateLimiter // optional
}

type Options struct {
	Port           int
	StaticDir      string
	TempDir        string
	JWTSecret      string
	ReadTimeout    time.Duration
	RequestTimeout time.Duration
	RateLimit      int // one-shot ASR/TTS requests per RateWindow and client
	RateWindow     time.Duration
	MaxUploadBytes int64
	Client         ClientConfig
}

type Server struct {
	deps    Deps
	opts    Options
	auth    *AuthManager
	limiter *clientLimiter
	log     *zerolog.Logger

	srv *http.Server
}

func NewServer(deps Deps, opts Options, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 16 << 20
	}
	l := logger.With().Str("component", "http").Logger()
	s := &Server{
		deps:    deps,
		opts:    opts,
		auth:    NewAuthManager(opts.JWTSecret, 0),
		limiter: newClientLimiter(deps.Limiter, opts.RateLimit, opts.RateWindow, &l),
		log:     &l,
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       opts.ReadTimeout,
		// websocket connections outlive any write timeout; the ws layer sets
		// per-frame deadlines itself
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Router builds the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(TraceID())
	r.Use(RequestLog(s.log))
	r.Use(Recover(s.log))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	if s.deps.WS != nil {
		r.Get("/ws", s.deps.WS.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(Timeout(s.opts.RequestTimeout))

		r.Get("/model/config", s.handleModelConfig)
		r.Get("/config", s.handleClientConfig)
		r.Get("/status", s.handleStatus)
		r.Get("/statistics", s.handleStatistics)
		r.Get("/speech/providers", s.handleSpeechProviders)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}/messages", s.handleSessionMessages)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Require)
			r.Post("/sessions/new", s.handleNewSession)
			r.Delete("/sessions/{id}", s.handleDeleteSession)
			r.Delete("/voice/model", s.handleDeleteVoiceModel)

			r.Group(func(r chi.Router) {
				r.Use(s.limiter.Middleware)
				r.Post("/asr/recognize", s.handleRecognize)
				r.Post("/tts/synthesize", s.handleSynthesize)
			})
		})
	})

	if s.opts.TempDir != "" {
		r.Handle("/temp/*", http.StripPrefix("/temp/", http.FileServer(http.Dir(s.opts.TempDir))))
	}
	if s.opts.StaticDir != "" {
		if _, err := os.Stat(s.opts.StaticDir); err == nil {
			r.Handle("/*", http.FileServer(http.Dir(s.opts.StaticDir)))
		} else {
			s.log.Warn().Str("dir", s.opts.StaticDir).Msg("static directory missing, not serving files")
		}
	}
	return r
}

// Start blocks until the server stops. http.ErrServerClosed is not an error.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.opts.Port).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
