//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"avatar-live-server/internal/domain"
)

func TestNewChatMessage(t *testing.T) {
	t.Run("should create a message with id and timestamp", func(t *testing.T) {
		start := time.Now().UTC()
		msg, err := NewChatMessage("s1", RoleUser, "你好", EmotionHappy)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if msg.ID == "" {
			t.Error("expected message ID to be non-empty")
		}
		if msg.SessionID != "s1" || msg.Role != RoleUser || msg.Content != "你好" {
			t.Errorf("unexpected message fields: %+v", msg)
		}
		if msg.Timestamp.Before(start.Add(-time.Second)) {
			t.Errorf("timestamp too old: %v", msg.Timestamp)
		}
	})

	t.Run("should reject unknown role", func(t *testing.T) {
		_, err := NewChatMessage("s1", RoleSystem, "x", EmotionNeutral)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("should reject empty session id", func(t *testing.T) {
		_, err := NewChatMessage("  ", RoleAssistant, "x", EmotionNeutral)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestNewChatSession_DefaultTitle(t *testing.T) {
	s := NewChatSession("")
	if s.ID == "" {
		t.Fatal("expected id")
	}
	if s.Title == "" {
		t.Error("expected generated title")
	}
	if s2 := NewChatSession("mine"); s2.Title != "mine" {
		t.Errorf("expected title 'mine', got %q", s2.Title)
	}
}

func TestParseEmotion(t *testing.T) {
	cases := map[string]Emotion{
		"happy":     EmotionHappy,
		" SAD ":     EmotionSad,
		"surprised": EmotionSurprised,
		"bored":     EmotionNeutral,
		"":          EmotionNeutral,
	}
	for in, want := range cases {
		if got := ParseEmotion(in); got != want {
			t.Errorf("ParseEmotion(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSession_BufferEviction(t *testing.T) {
	s := NewSession("c1", 2)
	for i := 0; i < 3; i++ {
		s.AddTurn(RoleUser, string(rune('a'+i)))
		s.AddTurn(RoleAssistant, string(rune('A'+i)))
	}
	turns := s.RecentTurns(0)
	if len(turns) != 4 {
		t.Fatalf("expected 4 buffered turns, got %d", len(turns))
	}
	if turns[0].Content != "b" || turns[3].Content != "C" {
		t.Errorf("unexpected buffer order: %+v", turns)
	}

	last := s.RecentTurns(2)
	if len(last) != 2 || last[0].Content != "c" {
		t.Errorf("unexpected tail: %+v", last)
	}

	s.SetLogID("log")
	s.ClearHistory()
	if len(s.RecentTurns(0)) != 0 || s.LogID() != "" {
		t.Error("expected history and log id cleared")
	}
}

func TestSession_EmotionHistoryBounded(t *testing.T) {
	s := NewSession("c1", 3)
	now := time.Now()
	for i := 0; i < 15; i++ {
		e := EmotionNeutral
		if i == 14 {
			e = EmotionAngry
		}
		s.RecordEmotion(e, 0.5, now.Add(time.Duration(i)*time.Second))
	}
	all := s.RecentEmotions(0)
	if len(all) != emotionHistoryCap {
		t.Fatalf("expected %d records, got %d", emotionHistoryCap, len(all))
	}
	last := s.RecentEmotions(5)
	if len(last) != 5 || last[4].Emotion != EmotionAngry {
		t.Errorf("unexpected recent emotions: %+v", last)
	}
}

func TestSession_MotionCopy(t *testing.T) {
	s := NewSession("c1", 3)
	if s.Motion() != nil {
		t.Fatal("expected no motion")
	}
	s.SetMotion("idle", 1)
	m := s.Motion()
	m.Index = 9
	if s.Motion().Index != 1 {
		t.Error("Motion must return a copy")
	}
}

func TestAvailability_Fresh(t *testing.T) {
	now := time.Now()
	a := Availability{Available: true, CheckedAt: now.Add(-30 * time.Second)}
	if !a.Fresh(now, time.Minute) {
		t.Error("expected fresh within window")
	}
	if a.Fresh(now.Add(time.Minute), time.Minute) {
		t.Error("expected stale after window")
	}
	if (Availability{}).Fresh(now, time.Minute) {
		t.Error("zero value must never be fresh")
	}
}

func TestTrainingSteps_Increasing(t *testing.T) {
	prev := 0
	for _, s := range TrainingSteps {
		if s.Progress <= prev {
			t.Fatalf("progress not increasing at %s", s.Key)
		}
		prev = s.Progress
	}
	if prev >= 100 {
		t.Errorf("last step must stay below 100, got %d", prev)
	}
}

func TestQualityScore(t *testing.T) {
	if got := QualityScore(100); got != 0.945 {
		t.Errorf("QualityScore(100) = %v, want 0.945", got)
	}
	if got := QualityScore(0); got != 0.92 {
		t.Errorf("QualityScore(0) = %v, want 0.92", got)
	}
}
