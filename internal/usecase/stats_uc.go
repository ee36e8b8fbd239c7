package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"avatar-live-server/internal/domain/model"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type StatsUseCase interface {
	// Status is a read-only view; it never probes providers.
	Status() SystemStatus
	Statistics(ctx context.Context) (*model.ChatStats, error)
}

type GenerationStatus struct {
	Provider  string                     `json:"provider"`
	Providers []model.ProviderDescriptor `json:"providers"`
}

type RecognitionStatus struct {
	Provider string `json:"provider"`
}

type SystemStatus struct {
	Generation  GenerationStatus  `json:"llm"`
	Speech      SpeechStatus      `json:"tts"`
	Recognition RecognitionStatus `json:"asr"`
	Training    model.TrainingJob `json:"voice_training"`
	StartedAt   time.Time         `json:"started_at"`
	Uptime      string            `json:"uptime"`
}

type statsUC struct {
	reply    ReplyUseCase
	speech   SpeechUseCase
	recog    RecognitionUseCase
	training TrainingUseCase
	chatLog  ChatLogUseCase
	started  time.Time

	log *zerolog.Logger
}

func NewStatsUseCase(reply ReplyUseCase, speech SpeechUseCase, recog RecognitionUseCase, training TrainingUseCase, chatLog ChatLogUseCase, logger *zerolog.Logger) *statsUC {
	return &statsUC{
		reply:    reply,
		speech:   speech,
		recog:    recog,
		training: training,
		chatLog:  chatLog,
		started:  time.Now(),
		log:      logger,
	}
}

func (s *statsUC) Status() SystemStatus {
	st := SystemStatus{
		StartedAt: s.started,
		Uptime:    time.Since(s.started).Truncate(time.Second).String(),
	}
	if s.reply != nil {
		st.Generation = GenerationStatus{Provider: s.reply.ActiveProvider(), Providers: s.reply.Providers()}
	}
	if s.speech != nil {
		st.Speech = s.speech.Status()
	}
	if s.recog != nil {
		st.Recognition = RecognitionStatus{Provider: s.recog.Provider()}
	}
	if s.training != nil {
		st.Training = s.training.Status()
	}
	return st
}

func (s *statsUC) Statistics(ctx context.Context) (*model.ChatStats, error) {
	st, err := s.chatLog.Stats(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("chat statistics failed")
		return nil, err
	}
	return st, nil
}
