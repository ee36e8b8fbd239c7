//go:build !integration

package usecase

import (
	"context"
	"testing"

	"avatar-live-server/internal/domain/model"
)

func TestStats_StatusWithPartialWiring(t *testing.T) {
	tr := NewTrainingUseCase(testTrainingConfig(), &fakeToolkit{}, newMemArtifacts(), nil, syncRunner{}, nil, silentLogger())
	s := NewStatsUseCase(nil, nil, nil, tr, nil, silentLogger())

	st := s.Status()
	if st.Training.Status != model.TrainingIdle {
		t.Errorf("training status = %q, want idle", st.Training.Status)
	}
	if st.Generation.Provider != "" || st.Recognition.Provider != "" {
		t.Errorf("unwired components must stay empty: %+v", st)
	}
	if st.StartedAt.IsZero() || st.Uptime == "" {
		t.Errorf("missing uptime: %+v", st)
	}
}

func TestStats_StatisticsFromChatLog(t *testing.T) {
	repo := newMemChatRepo()
	chatLog := NewChatLogUseCase(repo, nil, silentLogger())
	sess := model.NewSession("c1", 3)
	ctx := context.Background()
	if err := chatLog.AppendExchange(ctx, sess, "我好开心", "太好了", model.EmotionHappy); err != nil {
		t.Fatal(err)
	}

	s := NewStatsUseCase(nil, nil, nil, nil, chatLog, silentLogger())
	st, err := s.Statistics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Sessions != 1 || st.Messages != 2 {
		t.Fatalf("got %d sessions / %d messages", st.Sessions, st.Messages)
	}
	if st.ByRole[model.RoleUser] != 1 || st.ByRole[model.RoleAssistant] != 1 {
		t.Errorf("by role: %v", st.ByRole)
	}
	if st.ByEmotion[string(model.EmotionHappy)] != 1 {
		t.Errorf("by emotion: %v", st.ByEmotion)
	}
}
