//go:build !integration

package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type tickJob struct{ runs atomic.Int32 }

func (j *tickJob) Name() string { return "tick" }

func (j *tickJob) Run(ctx context.Context) (int, error) {
	j.runs.Add(1)
	return 1, nil
}

func TestScheduler_RunsAndStops(t *testing.T) {
	logger := zerolog.Nop()
	job := &tickJob{}
	s := NewScheduler(5*time.Millisecond, job, &logger)
	s.Start(context.Background())
	s.Start(context.Background()) // no-op

	deadline := time.Now().Add(time.Second)
	for job.runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	s.Stop()
	s.Stop()

	after := job.runs.Load()
	if after < 2 {
		t.Fatalf("expected at least two runs, got %d", after)
	}
	time.Sleep(20 * time.Millisecond)
	if job.runs.Load() != after {
		t.Error("job ran after Stop")
	}
}

func TestScheduler_RunOnce(t *testing.T) {
	logger := zerolog.Nop()
	job := &tickJob{}
	s := NewScheduler(0, job, &logger)
	if n, err := s.RunOnce(context.Background()); n != 1 || err != nil {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if s.interval != time.Hour {
		t.Errorf("default interval = %v", s.interval)
	}
}
