// File: internal/usecase/reply_uc.go
package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/domain/ports/adapter"
)

// Compile-time check
var _ ReplyUseCase = (*replyUC)(nil)

// Phrasebook supplies persona and canned text for the active locale.
type Phrasebook interface {
	Persona() string
	T(key string, args ...interface{}) string
	Pick(key string) string
}

// ReplyUseCase produces one assistant reply per user turn. It never fails:
// every error path yields a canned reply instead.
type ReplyUseCase interface {
	Generate(ctx context.Context, sess *model.Session, userText string) model.Reply
	Switch(name string) error
	ActiveProvider() string
	Providers() []model.ProviderDescriptor
}

type ReplyConfig struct {
	Params       adapter.GenerationParams
	HistoryTurns int
	TokenBudget  int // 0 disables trimming
	Retry        RetryPolicy
	CallTimeout  time.Duration
}

type replyUC struct {
	registry   *Registry[adapter.GenerationProvider]
	cache      *AvailabilityCache
	classifier *EmotionClassifier
	chatLog    ChatLogUseCase
	phrases    Phrasebook
	counter    adapter.TokenCounter
	cfg        ReplyConfig

	sleep sleepFunc
	obs   Observer
	log   zerolog.Logger
}

type ReplyOption func(*replyUC)

func WithTokenCounter(c adapter.TokenCounter) ReplyOption {
	return func(u *replyUC) { u.counter = c }
}

func WithReplyObserver(o Observer) ReplyOption {
	return func(u *replyUC) { u.obs = observerOrNoop(o) }
}

func withReplySleep(s sleepFunc) ReplyOption {
	return func(u *replyUC) { u.sleep = s }
}

// NewReplyUseCase wires the generator. chatLog may be nil.
func NewReplyUseCase(
	registry *Registry[adapter.GenerationProvider],
	cache *AvailabilityCache,
	classifier *EmotionClassifier,
	chatLog ChatLogUseCase,
	phrases Phrasebook,
	cfg ReplyConfig,
	logger *zerolog.Logger,
	opts ...ReplyOption,
) *replyUC {
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 3
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 45 * time.Second
	}
	u := &replyUC{
		registry:   registry,
		cache:      cache,
		classifier: classifier,
		chatLog:    chatLog,
		phrases:    phrases,
		cfg:        cfg,
		sleep:      sleepCtx,
		obs:        noopObserver{},
		log:        logger.With().Str("component", "reply").Logger(),
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

func (u *replyUC) Generate(ctx context.Context, sess *model.Session, userText string) model.Reply {
	text := strings.TrimSpace(userText)
	if text == "" {
		return model.Reply{Text: u.phrases.T("clarification"), Emotion: model.EmotionNeutral}
	}

	p, ok := u.registry.Active()
	if !ok {
		return u.fallback("no_provider")
	}
	name := p.Name()
	if !u.cache.IsAvailable(ctx, p) {
		u.log.Warn().Str("provider", name).Msg("provider unavailable, using fallback reply")
		return u.fallback("unavailable")
	}

	msgs := u.buildMessages(sess, text)
	var out string
	attempts, err := retry(ctx, u.cfg.Retry, u.sleep, func(ctx context.Context, attempt int) error {
		cctx, cancel := context.WithTimeout(ctx, u.cfg.CallTimeout)
		defer cancel()
		reply, _, err := p.Generate(cctx, msgs, u.cfg.Params)
		if err == nil && strings.TrimSpace(reply) == "" {
			err = domain.NewProviderError(name, domain.ErrInvalidRequest, 0, errors.New("empty completion"))
		}
		if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
			err = domain.NewProviderError(name, domain.ErrTimeout, 0, err)
		}
		u.obs.GenerationAttempt(name, domain.Kind(err))
		if err != nil {
			u.log.Warn().Err(err).Str("provider", name).Int("attempt", attempt).Str("kind", domain.Kind(err)).Msg("generation attempt failed")
			return err
		}
		out = strings.TrimSpace(reply)
		return nil
	})
	if err != nil {
		u.log.Error().Err(err).Str("provider", name).Int("attempts", attempts).Msg("generation failed, using fallback reply")
		return u.fallback(domain.Kind(err))
	}

	emotion := u.classifier.Classify(out)
	sess.AddTurn(model.RoleUser, text)
	sess.AddTurn(model.RoleAssistant, out)
	if u.chatLog != nil {
		if err := u.chatLog.AppendExchange(ctx, sess, text, out, emotion); err != nil {
			u.log.Error().Err(err).Str("conn", sess.ConnID).Msg("chat log append failed")
		}
	}
	return model.Reply{Text: out, Emotion: emotion, Provider: name, Attempts: attempts}
}

func (u *replyUC) buildMessages(sess *model.Session, text string) []adapter.Message {
	history := sess.RecentTurns(u.cfg.HistoryTurns * 2)
	build := func(h []model.Turn) []adapter.Message {
		msgs := make([]adapter.Message, 0, len(h)+2)
		msgs = append(msgs, adapter.Message{Role: model.RoleSystem, Content: u.phrases.Persona()})
		for _, t := range h {
			msgs = append(msgs, adapter.Message{Role: t.Role, Content: t.Content})
		}
		return append(msgs, adapter.Message{Role: model.RoleUser, Content: text})
	}
	msgs := build(history)
	if u.counter == nil || u.cfg.TokenBudget <= 0 {
		return msgs
	}
	for len(history) > 0 && u.counter.Count(msgs) > u.cfg.TokenBudget {
		history = history[1:]
		msgs = build(history)
	}
	return msgs
}

func (u *replyUC) fallback(reason string) model.Reply {
	u.obs.Fallback(reason)
	text := u.phrases.Pick("fallbacks")
	if text == "" {
		text = u.phrases.T("clarification")
	}
	return model.Reply{Text: text, Emotion: model.EmotionHappy, Fallback: true}
}

// Switch changes the active generation provider and forgets its cached state.
func (u *replyUC) Switch(name string) error {
	if err := u.registry.Select(name); err != nil {
		return err
	}
	u.cache.Invalidate(name)
	u.log.Info().Str("provider", name).Msg("generation provider switched")
	return nil
}

func (u *replyUC) ActiveProvider() string { return u.registry.ActiveName() }

func (u *replyUC) Providers() []model.ProviderDescriptor {
	return u.registry.Describe(u.cache)
}
