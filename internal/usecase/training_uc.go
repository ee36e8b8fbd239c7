// File: internal/usecase/training_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/domain/ports/adapter"
	"avatar-live-server/internal/domain/ports/repository"
)

// Compile-time check
var _ TrainingUseCase = (*trainingUC)(nil)

// TrainingUseCase is the voice training state machine. At most one run is
// in flight per process (and per cluster when a Locker is configured).
type TrainingUseCase interface {
	// Start returns domain.ErrJobConflict while a run is in progress.
	Start(ctx context.Context) error
	Status() model.TrainingJob
	// Delete removes the trained voice; calling it again is a no-op.
	Delete(ctx context.Context) error
	// Restore marks the job ready when a ready artifact already exists.
	Restore(ctx context.Context) error
	OnChange(fn func(model.TrainingJob))
}

// TaskRunner executes background work; worker.Pool satisfies it.
type TaskRunner interface {
	Submit(task func(ctx context.Context) error) error
}

type TrainingConfig struct {
	ModelName     string
	AudioFile     string
	TextFile      string
	ReferenceText string
	DataDir       string
	ModelsDir     string
	Params        model.TrainingParams
	LockTTL       time.Duration
}

const trainingDoneLabel = "训练完成"

type trainingUC struct {
	cfg       TrainingConfig
	toolkit   adapter.TrainingToolkit
	artifacts repository.TrainingArtifactRepository
	locker    repository.Locker
	runner    TaskRunner

	// notifyMu orders transitions with their delivery so listeners see
	// them in the order they happened. Taken before mu.
	notifyMu  sync.Mutex
	mu        sync.Mutex
	job       model.TrainingJob
	lockToken string
	deleting  bool
	listeners []func(model.TrainingJob)

	now func() time.Time
	obs Observer
	log zerolog.Logger
}

// NewTrainingUseCase accepts nil locker and runner; runs then use a plain goroutine.
func NewTrainingUseCase(
	cfg TrainingConfig,
	toolkit adapter.TrainingToolkit,
	artifacts repository.TrainingArtifactRepository,
	locker repository.Locker,
	runner TaskRunner,
	obs Observer,
	logger *zerolog.Logger,
) *trainingUC {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return &trainingUC{
		cfg:       cfg,
		toolkit:   toolkit,
		artifacts: artifacts,
		locker:    locker,
		runner:    runner,
		job:       model.IdleTrainingJob(),
		now:       time.Now,
		obs:       observerOrNoop(obs),
		log:       logger.With().Str("component", "training").Str("model", cfg.ModelName).Logger(),
	}
}

func (t *trainingUC) lockKey() string { return "lock:voice_training:" + t.cfg.ModelName }

func (t *trainingUC) modelFile() string {
	return filepath.Join(t.cfg.ModelsDir, model.ArtifactFileName(t.cfg.ModelName))
}

func (t *trainingUC) Start(ctx context.Context) error {
	t.notifyMu.Lock()
	t.mu.Lock()
	if t.job.Status == model.TrainingRunning || t.deleting {
		t.mu.Unlock()
		t.notifyMu.Unlock()
		return domain.ErrJobConflict
	}
	token := ""
	if t.locker != nil {
		tok, err := t.locker.TryLock(ctx, t.lockKey(), t.cfg.LockTTL)
		if err != nil {
			t.mu.Unlock()
			t.notifyMu.Unlock()
			t.log.Warn().Err(err).Msg("training lock held elsewhere")
			return fmt.Errorf("%w: %v", domain.ErrJobConflict, err)
		}
		token = tok
	}
	prev := t.job
	started := t.now()
	t.job = model.TrainingJob{
		Status:    model.TrainingRunning,
		Step:      "准备开始",
		Message:   "训练任务已提交",
		StartedAt: &started,
	}
	t.lockToken = token
	snapshot := t.job
	t.mu.Unlock()
	t.notify(snapshot)
	t.notifyMu.Unlock()

	// The run starts only after the running state has been delivered.
	run := func(ctx context.Context) error { return t.run(ctx) }
	var err error
	if t.runner != nil {
		err = t.runner.Submit(run)
	} else {
		go func() { _ = run(context.WithoutCancel(ctx)) }()
	}
	if err != nil {
		t.update(func(j *model.TrainingJob) {
			*j = prev
			t.lockToken = ""
		})
		t.releaseLock(token)
		return fmt.Errorf("submit training: %w", err)
	}

	t.log.Info().Msg("voice training started")
	t.obs.TrainingStatus(string(model.TrainingRunning))
	return nil
}

func (t *trainingUC) input() adapter.TrainingInput {
	return adapter.TrainingInput{
		ModelName:     t.cfg.ModelName,
		AudioFile:     t.cfg.AudioFile,
		TextFile:      t.cfg.TextFile,
		ReferenceText: t.cfg.ReferenceText,
		DataDir:       t.cfg.DataDir,
		ModelsDir:     t.cfg.ModelsDir,
		Params:        t.cfg.Params,
	}
}

func (t *trainingUC) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("training panic: %v", r)
			t.fail(err)
		}
	}()

	in := t.input()
	for _, step := range model.TrainingSteps {
		t.update(func(j *model.TrainingJob) {
			j.Progress = step.Progress
			j.Step = step.Label
			j.Message = step.Message
		})
		if err := t.toolkit.RunStep(ctx, step, in); err != nil {
			t.log.Error().Err(err).Str("step", step.Key).Msg("training step failed")
			t.fail(fmt.Errorf("%s: %w", step.Label, err))
			return err
		}
	}

	trainedAt := t.now()
	artifact := &model.TrainingArtifact{
		ModelName:     t.cfg.ModelName,
		AudioSource:   t.cfg.AudioFile,
		TextSource:    t.cfg.TextFile,
		ReferenceText: t.cfg.ReferenceText,
		Status:        model.TrainingReady,
		TrainedAt:     trainedAt,
		ModelVersion:  "1.0",
		QualityScore:  model.QualityScore(t.cfg.Params.Epochs),
		Training:      t.cfg.Params,
	}
	if err := t.artifacts.Save(ctx, artifact); err != nil {
		t.fail(fmt.Errorf("save artifact: %w", err))
		return err
	}

	t.update(func(j *model.TrainingJob) {
		j.Status = model.TrainingReady
		j.Progress = 100
		j.Step = trainingDoneLabel
		j.Message = "语音模型训练成功"
		j.ModelFile = t.modelFile()
		j.TrainedAt = &trainedAt
		j.Error = ""
	})
	t.obs.TrainingStatus(string(model.TrainingReady))
	t.log.Info().Float64("quality", artifact.QualityScore).Msg("voice training finished")
	t.releaseHeldLock()
	return nil
}

// fail keeps step and progress so the client can see where it stopped.
func (t *trainingUC) fail(err error) {
	t.update(func(j *model.TrainingJob) {
		j.Status = model.TrainingFailed
		j.Error = err.Error()
		j.Message = "训练失败"
	})
	t.obs.TrainingStatus(string(model.TrainingFailed))
	t.releaseHeldLock()
}

// update applies fn under the state lock and delivers the result before any
// later transition can be delivered.
func (t *trainingUC) update(fn func(j *model.TrainingJob)) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	t.mu.Lock()
	fn(&t.job)
	snapshot := t.job
	t.mu.Unlock()
	t.notify(snapshot)
}

func (t *trainingUC) releaseHeldLock() {
	t.mu.Lock()
	token := t.lockToken
	t.lockToken = ""
	t.mu.Unlock()
	t.releaseLock(token)
}

func (t *trainingUC) releaseLock(token string) {
	if t.locker == nil || token == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.locker.Unlock(ctx, t.lockKey(), token); err != nil {
		t.log.Warn().Err(err).Msg("training lock release failed")
	}
}

func (t *trainingUC) Status() model.TrainingJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job
}

func (t *trainingUC) Delete(ctx context.Context) error {
	// deleting keeps Start out until the job is idle again.
	t.mu.Lock()
	if t.job.Status == model.TrainingRunning || t.deleting {
		t.mu.Unlock()
		return domain.ErrJobConflict
	}
	t.deleting = true
	t.mu.Unlock()

	if err := t.artifacts.Delete(ctx, t.cfg.ModelName); err != nil && !errors.Is(err, domain.ErrNotFound) {
		t.mu.Lock()
		t.deleting = false
		t.mu.Unlock()
		return fmt.Errorf("delete artifact: %w", err)
	}
	if err := t.toolkit.Cleanup(ctx, t.input()); err != nil {
		t.log.Warn().Err(err).Msg("training data cleanup failed")
	}

	t.update(func(j *model.TrainingJob) {
		*j = model.IdleTrainingJob()
		t.deleting = false
	})
	t.obs.TrainingStatus(string(model.TrainingIdle))
	t.log.Info().Msg("trained voice deleted")
	return nil
}

func (t *trainingUC) Restore(ctx context.Context) error {
	a, err := t.artifacts.Load(ctx, t.cfg.ModelName)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if a.Status != model.TrainingReady {
		return nil
	}
	trainedAt := a.TrainedAt
	t.update(func(j *model.TrainingJob) {
		if j.Status == model.TrainingRunning {
			return
		}
		*j = model.TrainingJob{
			Status:    model.TrainingReady,
			Progress:  100,
			Step:      trainingDoneLabel,
			Message:   "已加载训练好的模型",
			ModelFile: t.modelFile(),
			TrainedAt: &trainedAt,
		}
	})
	t.log.Info().Msg("restored trained voice")
	return nil
}

// OnChange registers a listener called after every transition, in
// transition order. Listeners must not start or delete a run inline.
func (t *trainingUC) OnChange(fn func(model.TrainingJob)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

func (t *trainingUC) notify(job model.TrainingJob) {
	t.mu.Lock()
	ls := slices.Clone(t.listeners)
	t.mu.Unlock()
	for _, fn := range ls {
		fn(job)
	}
}
