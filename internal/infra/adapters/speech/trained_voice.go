package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/domain/ports/adapter"
	"avatar-live-server/internal/domain/ports/repository"
)

var (
	_ adapter.SynthesisProvider = (*TrainedVoice)(nil)
	_ adapter.Initializer       = (*TrainedVoice)(nil)
)

// TrainedVoice is the SoVITS engine bound to the artifact of a finished
// training run. It refuses to synthesize until Init has loaded a ready artifact.
type TrainedVoice struct {
	engine    *SoVITSEngine
	artifacts repository.TrainingArtifactRepository
	modelName string
	weights   string

	mu     sync.RWMutex
	loaded *model.TrainingArtifact
	log    zerolog.Logger
}

func NewTrainedVoice(o SoVITSOptions, artifacts repository.TrainingArtifactRepository, modelName, weights string, logger *zerolog.Logger) *TrainedVoice {
	o.Name = "trained_voice"
	t := &TrainedVoice{
		engine:    NewSoVITSEngine(o),
		artifacts: artifacts,
		modelName: modelName,
		weights:   weights,
		log:       logger.With().Str("component", "trained_voice").Logger(),
	}
	t.engine.voice = t.voice
	return t
}

func (t *TrainedVoice) Name() string     { return "trained_voice" }
func (t *TrainedVoice) ClientSide() bool { return false }

func (t *TrainedVoice) Init(ctx context.Context) error {
	a, err := t.artifacts.Load(ctx, t.modelName)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewProviderError(t.Name(), domain.ErrProviderUnavailable, 0, fmt.Errorf("no trained model %q", t.modelName))
	}
	if err != nil {
		return err
	}
	if a.Status != model.TrainingReady {
		return domain.NewProviderError(t.Name(), domain.ErrProviderUnavailable, 0, fmt.Errorf("model %q is %s", t.modelName, a.Status))
	}
	if t.weights != "" {
		if err := t.engine.SetWeights(ctx, t.weights); err != nil {
			return err
		}
	}
	t.mu.Lock()
	t.loaded = a
	t.mu.Unlock()
	t.log.Info().Str("model", a.ModelName).Float64("quality", a.QualityScore).Msg("trained voice loaded")
	return nil
}

// Unload forgets the artifact, e.g. after the model was deleted.
func (t *TrainedVoice) Unload() {
	t.mu.Lock()
	t.loaded = nil
	t.mu.Unlock()
}

func (t *TrainedVoice) Probe(ctx context.Context) (bool, error) {
	t.mu.RLock()
	ready := t.loaded != nil
	t.mu.RUnlock()
	if !ready {
		return false, nil
	}
	return t.engine.Probe(ctx)
}

func (t *TrainedVoice) Synthesize(ctx context.Context, text string) (adapter.Audio, error) {
	t.mu.RLock()
	ready := t.loaded != nil
	t.mu.RUnlock()
	if !ready {
		return adapter.Audio{}, domain.NewProviderError(t.Name(), domain.ErrProviderUnavailable, 0, errors.New("trained voice not initialized"))
	}
	return t.engine.Synthesize(ctx, text)
}

func (t *TrainedVoice) voice() Voice {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v := t.engine.opts.Voice
	if t.loaded != nil {
		v.RefAudioPath = t.loaded.AudioSource
		if t.loaded.ReferenceText != "" {
			v.PromptText = t.loaded.ReferenceText
		}
	}
	return v
}
