// File: internal/infra/logging/logging.go
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"avatar-live-server/internal/config"

	"github.com/rs/zerolog"
)

// New builds the process logger. Levels: trace|debug|info|warn|error;
// formats: json|console (dev always uses console).
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.DurationFieldUnit = time.Millisecond

	var w io.Writer = os.Stdout
	if strings.ToLower(cfg.Format) == "console" || dev {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"}
	}
	base := zerolog.New(w).With().Timestamp().Str("service", "avatar-live-server").Logger()

	if cfg.Sampling && !dev {
		// per-message chatter (http_request, ws.* traces) is bursty; warnings
		// and errors are never sampled
		burst := &zerolog.BurstSampler{Burst: 50, Period: time.Second, NextSampler: &zerolog.BasicSampler{N: 20}}
		base = base.Sample(zerolog.LevelSampler{TraceSampler: burst, DebugSampler: burst, InfoSampler: burst})
	}
	return &base
}

type ctxKey string

const (
	ctxTraceID ctxKey = "trace_id"
	ctxConnID  ctxKey = "conn_id"
	ctxSessID  ctxKey = "session_id"
)

// With attaches the ids carried by ctx (trace, connection, chat session).
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	l := base.With()
	if v, ok := ctx.Value(ctxTraceID).(string); ok {
		l = l.Str("trace_id", v)
	}
	if v, ok := ctx.Value(ctxConnID).(string); ok {
		l = l.Str("conn_id", v)
	}
	if v, ok := ctx.Value(ctxSessID).(string); ok {
		l = l.Str("session_id", v)
	}
	logger := l.Logger()
	return &logger
}

// TraceDuration logs start and end with elapsed duration at TRACE level.
// Usage: defer logging.TraceDuration(logger, "SessionManager.handleChat")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	start := time.Now()
	logger.Trace().Str("method", name).Msg("start")
	return func() {
		elapsed := time.Since(start)
		logger.Trace().Str("method", name).Dur("duration", elapsed).Msg("finish")
	}
}

// Redact hides user text when not in dev; keep short/preview.
func Redact(s string, dev bool) string {
	if dev {
		return s
	}
	n := utf8.RuneCountInString(s)
	if n <= 8 {
		return "***"
	}
	r := []rune(s)
	return string(r[:4]) + "..." + string(r[n-2:])
}

// Helpers to put IDs into context.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxTraceID, id)
}
func WithConnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxConnID, id)
}
func WithSessID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxSessID, id)
}

// TraceIDFrom returns the trace id stored by WithTraceID, if any.
func TraceIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxTraceID).(string)
	return v
}
