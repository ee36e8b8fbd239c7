// Package avatar reads Live2D model definitions.
package avatar

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"avatar-live-server/internal/domain/model"
)

type model3File struct {
	FileReferences struct {
		Moc         string                       `json:"Moc"`
		Motions     map[string][]json.RawMessage `json:"Motions"`
		Expressions []struct {
			Name string `json:"Name"`
			File string `json:"File"`
		} `json:"Expressions"`
	} `json:"FileReferences"`
}

// LoadModel3 parses a Cubism 3+ model3.json. When publicDir contains the
// file, ModelURL is its path relative to publicDir.
func LoadModel3(path, publicDir string) (*model.AvatarModel, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model3: %w", err)
	}
	var f model3File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse model3 %s: %w", path, err)
	}

	m := &model.AvatarModel{
		Name:    strings.TrimSuffix(filepath.Base(path), ".model3.json"),
		Motions: make(map[string]int, len(f.FileReferences.Motions)),
	}
	for group, motions := range f.FileReferences.Motions {
		m.Motions[group] = len(motions)
	}
	for _, e := range f.FileReferences.Expressions {
		if e.Name != "" {
			m.Expressions = append(m.Expressions, e.Name)
		}
	}
	if len(m.Expressions) == 0 {
		m.Expressions = append([]string(nil), model.DefaultExpressions...)
	}
	m.ModelURL = modelURL(path, publicDir)
	return m, nil
}

func modelURL(path, publicDir string) string {
	if publicDir == "" {
		return ""
	}
	root, err := filepath.Abs(publicDir)
	if err != nil {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return "/" + filepath.ToSlash(rel)
}

// DefaultModel is used when no model file is configured or readable.
func DefaultModel() *model.AvatarModel {
	return &model.AvatarModel{
		Name:        "default",
		Expressions: append([]string(nil), model.DefaultExpressions...),
		Motions:     map[string]int{"Idle": 1, "TapBody": 1, "Speaking": 1, "Listening": 1},
	}
}
