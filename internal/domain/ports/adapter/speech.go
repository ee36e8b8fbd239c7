package adapter

import (
	"context"

	"avatar-live-server/internal/domain/model"
)

// Audio is a synthesized clip on local disk.
type Audio struct {
	Path   string
	Format string
}

// SynthesisProvider turns text into audio.
type SynthesisProvider interface {
	Provider

	// ClientSide reports that this provider never produces audio and the
	// client must speak the text itself.
	ClientSide() bool

	Synthesize(ctx context.Context, text string) (Audio, error)
}

// Recognizer turns an uploaded clip into text.
type Recognizer interface {
	Provider
	Recognize(ctx context.Context, audio []byte, format string) (string, error)
}

// TrainingInput is everything a toolkit step needs to know about the run.
type TrainingInput struct {
	ModelName     string
	AudioFile     string
	TextFile      string
	ReferenceText string
	DataDir       string
	ModelsDir     string
	Params        model.TrainingParams
}

// TrainingToolkit executes the individual steps of a voice training run.
type TrainingToolkit interface {
	RunStep(ctx context.Context, step model.TrainingStep, in TrainingInput) error
	// Cleanup removes intermediate data of the run; missing data is not an error.
	Cleanup(ctx context.Context, in TrainingInput) error
}
