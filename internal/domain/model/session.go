package model

import (
	"sync"
	"time"
)

const emotionHistoryCap = 10

// Turn is one entry of the in-memory conversation buffer.
type Turn struct {
	Role    string
	Content string
}

type EmotionRecord struct {
	Emotion   Emotion   `json:"emotion"`
	Intensity float64   `json:"intensity"`
	At        time.Time `json:"timestamp"`
}

type MotionRef struct {
	Group string `json:"group"`
	Index int    `json:"index"`
}

// Session is the server-side state of one live connection.
type Session struct {
	mu sync.RWMutex

	ConnID    string
	CreatedAt time.Time

	logID      string
	buffer     []Turn
	bufferCap  int
	expression string
	motion     *MotionRef
	speaking   bool
	emotions   []EmotionRecord
}

// NewSession keeps the most recent historyTurns exchanges (2 messages each).
func NewSession(connID string, historyTurns int) *Session {
	if historyTurns <= 0 {
		historyTurns = 3
	}
	return &Session{
		ConnID:     connID,
		CreatedAt:  time.Now(),
		bufferCap:  historyTurns * 2,
		expression: string(EmotionNeutral),
	}
}

func (s *Session) LogID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logID
}

func (s *Session) SetLogID(id string) {
	s.mu.Lock()
	s.logID = id
	s.mu.Unlock()
}

// AddTurn appends to the buffer, evicting the oldest entries beyond capacity.
func (s *Session) AddTurn(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = append(s.buffer, Turn{Role: role, Content: content})
	if over := len(s.buffer) - s.bufferCap; over > 0 {
		s.buffer = append([]Turn(nil), s.buffer[over:]...)
	}
}

// RecentTurns returns a copy of the last n buffered messages.
func (s *Session) RecentTurns(n int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.buffer) {
		n = len(s.buffer)
	}
	out := make([]Turn, n)
	copy(out, s.buffer[len(s.buffer)-n:])
	return out
}

func (s *Session) ClearHistory() {
	s.mu.Lock()
	s.buffer = nil
	s.logID = ""
	s.mu.Unlock()
}

func (s *Session) Expression() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expression
}

func (s *Session) SetExpression(expr string) {
	s.mu.Lock()
	s.expression = expr
	s.mu.Unlock()
}

// Motion returns the current motion, nil when none was issued yet.
func (s *Session) Motion() *MotionRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.motion == nil {
		return nil
	}
	m := *s.motion
	return &m
}

func (s *Session) SetMotion(group string, index int) {
	s.mu.Lock()
	s.motion = &MotionRef{Group: group, Index: index}
	s.mu.Unlock()
}

func (s *Session) Speaking() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speaking
}

func (s *Session) SetSpeaking(v bool) {
	s.mu.Lock()
	s.speaking = v
	s.mu.Unlock()
}

func (s *Session) RecordEmotion(e Emotion, intensity float64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emotions = append(s.emotions, EmotionRecord{Emotion: e, Intensity: intensity, At: at})
	if over := len(s.emotions) - emotionHistoryCap; over > 0 {
		s.emotions = append([]EmotionRecord(nil), s.emotions[over:]...)
	}
}

// RecentEmotions returns up to n of the newest records, oldest first.
func (s *Session) RecentEmotions(n int) []EmotionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.emotions) {
		n = len(s.emotions)
	}
	out := make([]EmotionRecord, n)
	copy(out, s.emotions[len(s.emotions)-n:])
	return out
}
