package model

// DefaultExpressions is used when the model file declares none.
var DefaultExpressions = []string{"neutral", "happy", "sad", "angry", "surprised"}

// AvatarModel describes what the loaded Live2D model can do.
type AvatarModel struct {
	Name        string         `json:"name"`
	ModelURL    string         `json:"model_url"`
	Expressions []string       `json:"expressions"`
	Motions     map[string]int `json:"motions"` // group -> motion count
}

func (m *AvatarModel) HasExpression(name string) bool {
	for _, e := range m.Expressions {
		if e == name {
			return true
		}
	}
	return false
}

func (m *AvatarModel) MotionCount(group string) (int, bool) {
	n, ok := m.Motions[group]
	return n, ok
}

const (
	CommandSuccess = "success"
	CommandError   = "error"

	CommandExpression = "expression"
	CommandMotion     = "motion"
)

// AvatarCommand is issued to the renderer. Invalid requests come back with
// Status "error" and a Message naming the violated constraint.
type AvatarCommand struct {
	Status     string     `json:"status"`
	Type       string     `json:"type"`
	Expression string     `json:"expression,omitempty"`
	Motion     *MotionRef `json:"motion,omitempty"`
	Duration   float64    `json:"duration,omitempty"` // seconds
	Intensity  float64    `json:"intensity,omitempty"`
	Message    string     `json:"message,omitempty"`
}

func (c AvatarCommand) OK() bool { return c.Status == CommandSuccess }

// AvatarStatus is the controller view of one session.
type AvatarStatus struct {
	Expression     string          `json:"current_expression"`
	Motion         *MotionRef      `json:"current_motion,omitempty"`
	Speaking       bool            `json:"is_speaking"`
	RecentEmotions []EmotionRecord `json:"emotion_history"`
	Expressions    []string        `json:"available_expressions"`
	MotionGroups   map[string]int  `json:"motion_groups"`
}
