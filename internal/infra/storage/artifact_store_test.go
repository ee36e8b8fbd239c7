//go:build !integration

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/model"
)

func TestArtifactStore_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "trained_models")
	s := NewArtifactStore(dir)
	ctx := context.Background()

	if _, err := s.Load(ctx, "arona_voice"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	a := &model.TrainingArtifact{
		ModelName:    "arona_voice",
		Status:       model.TrainingReady,
		TrainedAt:    time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		ModelVersion: "1.0",
		QualityScore: model.QualityScore(200),
		Training:     model.TrainingParams{Epochs: 200, BatchSize: 8},
	}
	if err := s.Save(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "arona_voice_model.json")); err != nil {
		t.Fatalf("artifact file missing: %v", err)
	}
	got, err := s.Load(ctx, "arona_voice")
	if err != nil {
		t.Fatal(err)
	}
	if got.QualityScore != 0.97 || got.Status != model.TrainingReady || !got.TrainedAt.Equal(a.TrainedAt) {
		t.Errorf("unexpected artifact %+v", got)
	}

	if err := s.Delete(ctx, "arona_voice"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "arona_voice"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestArtifactStore_RejectsPathNames(t *testing.T) {
	s := NewArtifactStore(t.TempDir())
	for _, name := range []string{"", "../x", `a\b`} {
		if _, err := s.Load(context.Background(), name); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("Load(%q): %v", name, err)
		}
	}
}
