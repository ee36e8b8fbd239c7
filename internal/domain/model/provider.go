package model

import "time"

type ProviderKind string

const (
	ProviderGeneration  ProviderKind = "generation"
	ProviderSynthesis   ProviderKind = "synthesis"
	ProviderRecognition ProviderKind = "recognition"
)

// ProviderDescriptor is the status view of one registered provider.
type ProviderDescriptor struct {
	Name        string       `json:"name"`
	Kind        ProviderKind `json:"kind"`
	Active      bool         `json:"active"`
	Available   *bool        `json:"available,omitempty"` // nil: never probed or stale
	LastProbeAt *time.Time   `json:"last_probe_at,omitempty"`
}

// Availability is one cached probe outcome.
type Availability struct {
	Available bool      `json:"available"`
	CheckedAt time.Time `json:"checked_at"`
}

// Fresh reports whether the entry can be trusted at now.
func (a Availability) Fresh(now time.Time, window time.Duration) bool {
	if a.CheckedAt.IsZero() {
		return false
	}
	return now.Sub(a.CheckedAt) < window
}

// Reply is the outcome of one generation turn.
type Reply struct {
	Text     string  `json:"text"`
	Emotion  Emotion `json:"emotion"`
	Fallback bool    `json:"fallback"`
	Provider string  `json:"provider,omitempty"`
	Attempts int     `json:"-"`
}

type SpeechMode string

const (
	SpeechAudio   SpeechMode = "audio"
	SpeechBrowser SpeechMode = "browser"
)

// SpeechResult is what the synthesizer hands back to the session layer.
// Browser mode means the client should speak Text itself.
type SpeechResult struct {
	Mode      SpeechMode `json:"mode"`
	Text      string     `json:"text"`
	AudioURL  string     `json:"audio_file,omitempty"`
	AudioData string     `json:"audio_data,omitempty"` // base64, only when inline audio is enabled
	Provider  string     `json:"provider,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}
