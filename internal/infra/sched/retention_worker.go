package sched

import (
	"context"

	"github.com/rs/zerolog"

	"avatar-live-server/internal/infra/metrics"
)

// Cleaner removes chat log sessions older than a retention period.
type Cleaner interface {
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

// RetentionJob adapts a Cleaner to the scheduler.
type RetentionJob struct {
	cleaner Cleaner
	days    int
	log     *zerolog.Logger
}

func NewRetentionJob(cleaner Cleaner, days int, logger *zerolog.Logger) *RetentionJob {
	l := logger.With().Str("component", "RetentionJob").Logger()
	return &RetentionJob{cleaner: cleaner, days: days, log: &l}
}

func (j *RetentionJob) Name() string { return "chat_retention" }

func (j *RetentionJob) Run(ctx context.Context) (int, error) {
	n, err := j.cleaner.Cleanup(ctx, j.days)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddRetentionDeleted(n)
		j.log.Info().Int64("sessions", n).Int("retention_days", j.days).Msg("old chat sessions removed")
	}
	return int(n), nil
}
