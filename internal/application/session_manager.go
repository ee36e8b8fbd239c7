package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/domain/ports/repository"
	derror "avatar-live-server/internal/error"
	"avatar-live-server/internal/infra/logging"
	"avatar-live-server/internal/infra/metrics"
	"avatar-live-server/internal/infra/ws"
	"avatar-live-server/internal/usecase"
)

// Conn is what the manager needs from a transport connection.
type Conn interface {
	ID() string
	Send(data []byte) error
	Close() error
	ReadPump(ctx context.Context, inbound chan<- []byte) error
	WritePump(ctx context.Context) error
}

// Phrases supplies the user-facing texts.
type Phrases interface {
	T(key string, args ...interface{}) string
	List(key string) []string
}

type Deps struct {
	Reply       usecase.ReplyUseCase
	Speech      usecase.SpeechUseCase
	Recognition usecase.RecognitionUseCase
	Avatar      usecase.AvatarUseCase
	Training    usecase.TrainingUseCase
	Phrases     Phrases
	// Limiter shares per-connection budgets between instances; nil uses a
	// local token bucket.
	Limiter repository.RateLimiter
	// OnModelDeleted runs after the trained voice was removed.
	OnModelDeleted func(ctx context.Context)
}

type Config struct {
	HistoryTurns int
	InboundQueue int
	RateLimit    int // messages per RateWindow, 0 disables
	RateWindow   time.Duration
	Dev          bool
}

type client struct {
	conn    Conn
	sess    *model.Session
	limiter *rate.Limiter
}

// SessionManager owns the live connections. Each connection gets a reader,
// a strictly sequential processor and a writer.
type SessionManager struct {
	deps Deps
	cfg  Config
	log  zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*client

	greetMu sync.Mutex
	greetAt int

	// trainMu guards trainedBy, the connection that started the current
	// training run; it hears the new voice once the run is ready.
	trainMu   sync.Mutex
	trainedBy *client

	routes map[string]handlerFunc
}

func NewSessionManager(deps Deps, cfg Config, logger *zerolog.Logger) *SessionManager {
	if cfg.InboundQueue <= 0 {
		cfg.InboundQueue = 16
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	m := &SessionManager{
		deps:    deps,
		cfg:     cfg,
		log:     logger.With().Str("component", "session_manager").Logger(),
		clients: make(map[string]*client),
	}
	m.routes = m.buildRoutes()
	if deps.Training != nil {
		deps.Training.OnChange(m.onTrainingChange)
	}
	return m
}

// Serve runs one connection until the peer leaves or ctx ends.
func (m *SessionManager) Serve(ctx context.Context, conn Conn) {
	cl := &client{conn: conn, sess: model.NewSession(conn.ID(), m.cfg.HistoryTurns)}
	if m.cfg.RateLimit > 0 && m.deps.Limiter == nil {
		perSec := rate.Limit(float64(m.cfg.RateLimit) / m.cfg.RateWindow.Seconds())
		cl.limiter = rate.NewLimiter(perSec, m.cfg.RateLimit)
	}
	m.register(cl)
	defer m.unregister(cl)

	ctx = logging.WithConnID(ctx, conn.ID())
	g, gctx := errgroup.WithContext(ctx)
	inbound := make(chan []byte, m.cfg.InboundQueue)

	g.Go(func() error { return conn.ReadPump(gctx, inbound) })
	g.Go(func() error { return conn.WritePump(gctx) })

	procCtx, stop := context.WithCancel(gctx)
	defer stop()
	g.Go(func() error {
		defer stop()
		m.send(cl, Outbound{Type: OutModelConfig, Data: m.deps.Avatar.Model()})
		for raw := range inbound {
			m.dispatch(procCtx, cl, raw)
		}
		return errConnDone
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, errConnDone) {
		m.log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("connection ended")
	}
}

var errConnDone = errors.New("connection done")

func (m *SessionManager) register(cl *client) {
	m.mu.Lock()
	m.clients[cl.conn.ID()] = cl
	n := len(m.clients)
	m.mu.Unlock()
	metrics.ConnOpened()
	m.log.Info().Str("conn_id", cl.conn.ID()).Int("connections", n).Msg("connection opened")
}

func (m *SessionManager) unregister(cl *client) {
	m.mu.Lock()
	_, ok := m.clients[cl.conn.ID()]
	delete(m.clients, cl.conn.ID())
	n := len(m.clients)
	m.mu.Unlock()
	_ = cl.conn.Close()
	if ok {
		metrics.ConnClosed()
		m.log.Info().Str("conn_id", cl.conn.ID()).Int("connections", n).Msg("connection closed")
	}
}

// Connections reports the number of live connections.
func (m *SessionManager) Connections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// send is best effort: a closed connection is dropped and later sends to it
// are skipped.
func (m *SessionManager) send(cl *client, out Outbound) {
	data, err := out.Encode()
	if err != nil {
		m.log.Error().Err(err).Str("type", out.Type).Msg("encode outbound message")
		return
	}
	if err := cl.conn.Send(data); err != nil {
		m.log.Debug().Err(err).Str("conn_id", cl.conn.ID()).Str("type", out.Type).Msg("send skipped")
		if !errors.Is(err, ws.ErrQueueFull) {
			m.drop(cl)
		}
	}
}

func (m *SessionManager) drop(cl *client) {
	m.mu.Lock()
	_, ok := m.clients[cl.conn.ID()]
	delete(m.clients, cl.conn.ID())
	m.mu.Unlock()
	if ok {
		metrics.ConnClosed()
		_ = cl.conn.Close()
	}
}

// CloseAll disconnects every client; used on shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.RLock()
	snapshot := make([]*client, 0, len(m.clients))
	for _, cl := range m.clients {
		snapshot = append(snapshot, cl)
	}
	m.mu.RUnlock()
	for _, cl := range snapshot {
		_ = cl.conn.Close()
	}
}

// Broadcast sends out to every live connection.
func (m *SessionManager) Broadcast(out Outbound) {
	m.mu.RLock()
	snapshot := make([]*client, 0, len(m.clients))
	for _, cl := range m.clients {
		snapshot = append(snapshot, cl)
	}
	m.mu.RUnlock()
	for _, cl := range snapshot {
		m.send(cl, out)
	}
}

func (m *SessionManager) dispatch(ctx context.Context, cl *client, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().
				Str("conn_id", cl.conn.ID()).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("handler panic recovered")
			m.send(cl, errorMessage(m.deps.Phrases.T("internal_error")))
		}
	}()

	if !m.allow(ctx, cl) {
		metrics.IncRateLimited("ws")
		m.log.Debug().Err(derror.ErrRateLimited).Str("conn_id", cl.conn.ID()).Msg("inbound dropped")
		m.send(cl, errorMessage(m.deps.Phrases.T("rate_limited")))
		return
	}

	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil || in.Type == "" {
		metrics.IncInbound("malformed")
		m.log.Debug().Err(derror.ErrMalformedMessage).Str("conn_id", cl.conn.ID()).Msg("inbound dropped")
		m.send(cl, errorMessage(m.deps.Phrases.T("malformed_message")))
		return
	}

	h, ok := m.routes[in.Type]
	if !ok {
		metrics.IncInbound("unknown")
		m.log.Debug().Err(derror.ErrUnknownMessageType).Str("conn_id", cl.conn.ID()).Str("type", in.Type).Msg("inbound dropped")
		m.send(cl, errorMessage(m.deps.Phrases.T("unknown_message", in.Type)))
		return
	}
	metrics.IncInbound(in.Type)

	defer logging.TraceDuration(logging.With(ctx, &m.log), "ws."+in.Type)()
	h(ctx, cl, in)
}

func (m *SessionManager) allow(ctx context.Context, cl *client) bool {
	if m.cfg.RateLimit <= 0 {
		return true
	}
	if m.deps.Limiter != nil {
		key := fmt.Sprintf("rate_limit:ws:%s", cl.conn.ID())
		ok, err := m.deps.Limiter.Allow(ctx, key, m.cfg.RateLimit, m.cfg.RateWindow)
		if err != nil {
			// shared limiter down: do not punish the client
			m.log.Warn().Err(err).Msg("rate limiter unavailable")
			return true
		}
		return ok
	}
	return cl.limiter.Allow()
}

func (m *SessionManager) onTrainingChange(job model.TrainingJob) {
	m.Broadcast(Outbound{Type: OutVoiceStatus, Data: m.voiceStatus(job)})
	switch job.Status {
	case model.TrainingReady:
		requester := m.takeRequester()
		m.broadcastExcept(requester, Outbound{Type: OutVoiceTrained, Data: TrainedPayload{Success: true, Message: job.Message}})
		if requester != nil {
			// synthesis may take seconds; training listeners must return promptly
			go m.playTrainedVoice(requester, job)
		}
	case model.TrainingFailed:
		m.takeRequester()
		m.Broadcast(Outbound{Type: OutVoiceTrained, Data: TrainedPayload{Success: false, Message: job.Error}})
	}
}

// setRequester records cl as the owner of the run being started and returns
// the previous owner.
func (m *SessionManager) setRequester(cl *client) *client {
	m.trainMu.Lock()
	defer m.trainMu.Unlock()
	prev := m.trainedBy
	m.trainedBy = cl
	return prev
}

// restoreRequester undoes setRequester when the start was refused.
func (m *SessionManager) restoreRequester(cl, prev *client) {
	m.trainMu.Lock()
	if m.trainedBy == cl {
		m.trainedBy = prev
	}
	m.trainMu.Unlock()
}

func (m *SessionManager) takeRequester() *client {
	m.trainMu.Lock()
	defer m.trainMu.Unlock()
	cl := m.trainedBy
	m.trainedBy = nil
	return cl
}

func (m *SessionManager) broadcastExcept(skip *client, out Outbound) {
	m.mu.RLock()
	snapshot := make([]*client, 0, len(m.clients))
	for _, cl := range m.clients {
		if cl != skip {
			snapshot = append(snapshot, cl)
		}
	}
	m.mu.RUnlock()
	for _, cl := range snapshot {
		m.send(cl, out)
	}
}

// playTrainedVoice speaks the demo phrase with the freshly trained voice to
// the connection that asked for training. The client plays tts_response
// itself when auto_play is set.
func (m *SessionManager) playTrainedVoice(cl *client, job model.TrainingJob) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("trained voice demo panic recovered")
		}
	}()
	ctx := logging.WithConnID(context.Background(), cl.conn.ID())
	log := logging.With(ctx, &m.log)
	text := m.deps.Phrases.T("trained_demo")

	// a new model replaces whatever the trained provider loaded before
	m.deps.Speech.Reset(usecase.ProviderTrained)
	res, err := m.trainedDemo(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("trained voice demo synthesis failed")
		m.send(cl, Outbound{Type: OutVoiceTrained, Data: TrainedPayload{Success: true, Message: job.Message, AudioPlayFailed: true}})
		return
	}
	m.send(cl, Outbound{Type: OutVoiceTrained, Data: TrainedPayload{Success: true, Message: job.Message}})
	m.send(cl, Outbound{Type: OutTTSResponse, Data: TTSPayload{
		AudioFile: res.AudioURL,
		AudioData: res.AudioData,
		Text:      text,
		Mode:      usecase.ModeTrained,
		AutoPlay:  true,
	}})
}

func (m *SessionManager) trainedDemo(ctx context.Context, text string) (model.SpeechResult, error) {
	if err := m.deps.Speech.Prepare(ctx, usecase.ModeTrained); err != nil {
		return model.SpeechResult{}, err
	}
	res, err := m.deps.Speech.Preview(ctx, usecase.ModeTrained, text)
	if err != nil {
		return model.SpeechResult{}, err
	}
	if res.Mode != model.SpeechAudio || res.AudioURL == "" {
		return model.SpeechResult{}, fmt.Errorf("trained voice produced no audio: %w", domain.ErrProviderUnavailable)
	}
	return res, nil
}

func (m *SessionManager) voiceStatus(job model.TrainingJob) VoiceStatus {
	return VoiceStatus{TTS: m.deps.Speech.Status(), Training: job}
}

// DeleteVoiceModel removes the trained voice and moves synthesis off it.
func (m *SessionManager) DeleteVoiceModel(ctx context.Context) error {
	if err := m.deps.Training.Delete(ctx); err != nil {
		return err
	}
	if m.deps.Speech.Mode() == usecase.ModeTrained {
		if ok, err := m.deps.Speech.SwitchMode(ctx, usecase.ModePretrained); !ok {
			m.log.Warn().Err(err).Msg("pretrained voice unavailable after delete, using browser")
			_, _ = m.deps.Speech.SwitchMode(ctx, usecase.ModeBrowser)
		}
	}
	m.deps.Speech.Reset(usecase.ProviderTrained)
	if m.deps.OnModelDeleted != nil {
		m.deps.OnModelDeleted(ctx)
	}
	m.Broadcast(Outbound{Type: OutVoiceStatus, Data: m.voiceStatus(m.deps.Training.Status())})
	return nil
}
