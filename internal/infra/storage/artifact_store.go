// File: internal/infra/storage/artifact_store.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.TrainingArtifactRepository = (*ArtifactStore)(nil)

// ArtifactStore keeps one JSON document per trained model under dir.
// Writes go through a temp file and rename so readers never see a partial file.
type ArtifactStore struct {
	dir string
	mu  sync.Mutex
}

func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir}
}

func (s *ArtifactStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("artifact name %q: %w", name, domain.ErrInvalidArgument)
	}
	return filepath.Join(s.dir, model.ArtifactFileName(name)), nil
}

func (s *ArtifactStore) Load(ctx context.Context, name string) (*model.TrainingArtifact, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var a model.TrainingArtifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", p, err)
	}
	return &a, nil
}

func (s *ArtifactStore) Save(ctx context.Context, a *model.TrainingArtifact) error {
	if a == nil {
		return domain.ErrInvalidArgument
	}
	p, err := s.path(a.ModelName)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create models dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".artifact-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (s *ArtifactStore) Delete(ctx context.Context, name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err = os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return domain.ErrNotFound
	}
	return err
}
