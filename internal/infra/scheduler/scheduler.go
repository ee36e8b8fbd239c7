package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"avatar-live-server/internal/infra/metrics"
)

// Job is one periodic unit of work. Run returns the number of items it handled.
type Job interface {
	Name() string
	Run(ctx context.Context) (int, error)
}

// Scheduler periodically runs a Job.
type Scheduler struct {
	interval time.Duration
	timeout  time.Duration
	job      Job
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler constructs a scheduler that runs job every `interval`.
// If interval <= 0 it defaults to 1 hour.
func NewScheduler(interval time.Duration, job Job, logger *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		interval: interval,
		timeout:  time.Minute,
		job:      job,
		log:      logger.With().Str("component", "scheduler").Str("job", job.Name()).Logger(),
		done:     make(chan struct{}),
	}
}

// Start begins the scheduler loop in a background goroutine.
// Calling Start multiple times has no effect.
func (s *Scheduler) Start(parentCtx context.Context) {
	if s.ctx != nil {
		return
	}
	ctx, cancel := context.WithCancel(parentCtx)
	s.ctx = ctx
	s.cancel = cancel

	go s.loop()
}

// RunOnce executes the job immediately with the scheduler's timeout.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.job.Run(runCtx)
	if err != nil {
		metrics.IncBackgroundTask("error")
		return n, err
	}
	metrics.IncBackgroundTask("ok")
	return n, nil
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("context cancelled; stopping")
			return
		case <-ticker.C:
			n, err := s.RunOnce(s.ctx)
			if err != nil {
				s.log.Error().Err(err).Msg("job failed")
				continue
			}
			if n > 0 {
				s.log.Debug().Int("handled", n).Msg("job finished")
			}
		}
	}
}

// Stop cancels the scheduler and waits for the loop to finish. It is idempotent.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.ctx = nil
	s.cancel = nil
	s.done = make(chan struct{})
	s.log.Info().Msg("stopped")
}
