package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/domain/ports/adapter"
)

var _ adapter.TrainingToolkit = (*Toolkit)(nil)

const maxTrainingSentences = 50

// Toolkit prepares training data on disk and paces the remaining steps.
// The heavy model steps are delegated to an external GPT-SoVITS checkout and
// are only simulated here.
type Toolkit struct {
	toolkitPath string
	stepDelay   time.Duration
	ffmpeg      string
	log         zerolog.Logger
}

func NewToolkit(toolkitPath string, stepDelay time.Duration, logger *zerolog.Logger) *Toolkit {
	return &Toolkit{
		toolkitPath: toolkitPath,
		stepDelay:   stepDelay,
		ffmpeg:      "ffmpeg",
		log:         logger.With().Str("component", "training_toolkit").Logger(),
	}
}

func (t *Toolkit) RunStep(ctx context.Context, step model.TrainingStep, in adapter.TrainingInput) error {
	if err := t.pace(ctx); err != nil {
		return err
	}
	switch step.Key {
	case "check_files":
		return t.checkFiles(in)
	case "preprocess_audio":
		return t.preprocessAudio(ctx, in)
	case "prepare_text":
		return t.prepareText(in)
	case "save":
		return os.MkdirAll(in.ModelsDir, 0o755)
	default:
		t.log.Debug().Str("step", step.Key).Msg("simulated step complete")
		return nil
	}
}

func (t *Toolkit) pace(ctx context.Context) error {
	if t.stepDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(t.stepDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Toolkit) checkFiles(in adapter.TrainingInput) error {
	st, err := os.Stat(in.AudioFile)
	if err != nil {
		return fmt.Errorf("audio file: %w", err)
	}
	if _, err := os.Stat(in.TextFile); err != nil {
		return fmt.Errorf("text file: %w", err)
	}
	if t.toolkitPath != "" {
		if _, err := os.Stat(t.toolkitPath); err != nil {
			t.log.Warn().Str("path", t.toolkitPath).Msg("voice toolkit directory missing; model steps stay simulated")
		}
	}
	t.log.Info().Str("audio", in.AudioFile).Int64("bytes", st.Size()).Msg("training files present")
	return os.MkdirAll(in.DataDir, 0o755)
}

func (t *Toolkit) processedAudio(in adapter.TrainingInput) string {
	return filepath.Join(in.DataDir, in.ModelName+"_processed.wav")
}

// preprocessAudio resamples to 22.05kHz mono; without ffmpeg the source is copied as-is.
func (t *Toolkit) preprocessAudio(ctx context.Context, in adapter.TrainingInput) error {
	out := t.processedAudio(in)
	cmd := exec.CommandContext(ctx, t.ffmpeg, "-y", "-i", in.AudioFile, "-ar", "22050", "-ac", "1", "-f", "wav", out)
	if b, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.log.Warn().Err(err).Str("output", tail(string(b), 200)).Msg("ffmpeg failed, copying source audio")
		return copyFile(in.AudioFile, out)
	}
	return nil
}

type trainingSample struct {
	AudioPath string `json:"audio_path"`
	Text      string `json:"text"`
	Speaker   string `json:"speaker"`
}

func (t *Toolkit) prepareText(in adapter.TrainingInput) error {
	raw, err := os.ReadFile(in.TextFile)
	if err != nil {
		return fmt.Errorf("read text: %w", err)
	}
	var samples []trainingSample
	for i, line := range strings.Split(string(raw), "\n") {
		if i >= maxTrainingSentences {
			break
		}
		line = strings.TrimSpace(line)
		// very short lines carry too little signal
		if utf8.RuneCountInString(line) <= 10 {
			continue
		}
		samples = append(samples, trainingSample{AudioPath: t.processedAudio(in), Text: line, Speaker: in.ModelName})
	}
	b, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return err
	}
	t.log.Info().Int("samples", len(samples)).Msg("training list prepared")
	return os.WriteFile(filepath.Join(in.DataDir, in.ModelName+"_list.json"), b, 0o644)
}

// Cleanup removes every DataDir entry prefixed with the model name.
func (t *Toolkit) Cleanup(ctx context.Context, in adapter.TrainingInput) error {
	matches, err := filepath.Glob(filepath.Join(in.DataDir, in.ModelName+"*"))
	if err != nil {
		return err
	}
	var errs []error
	for _, m := range matches {
		if err := os.RemoveAll(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
