//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/model"
)

func TestChatLog_AppendExchangeOpensSessionLazily(t *testing.T) {
	repo := newMemChatRepo()
	uc := NewChatLogUseCase(repo, nil, silentLogger())
	sess := model.NewSession("c1", 3)

	if err := uc.AppendExchange(context.Background(), sess, "这是一个非常非常非常非常非常非常长的问题吗", "是的", model.EmotionHappy); err != nil {
		t.Fatal(err)
	}
	id := sess.LogID()
	if id == "" {
		t.Fatal("expected log id")
	}
	if err := uc.AppendExchange(context.Background(), sess, "再问", "好", model.EmotionNeutral); err != nil {
		t.Fatal(err)
	}
	if sess.LogID() != id {
		t.Error("log id must be stable for the session")
	}

	msgs, err := uc.Messages(context.Background(), id, 0)
	if err != nil || len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d / %v", len(msgs), err)
	}
	if msgs[0].Role != model.RoleUser || msgs[1].Emotion != model.EmotionHappy {
		t.Errorf("unexpected order or emotion: %+v %+v", msgs[0], msgs[1])
	}

	list, _ := uc.ListSessions(context.Background(), 10)
	if len(list) != 1 || list[0].MessageCount != 4 {
		t.Fatalf("unexpected sessions %+v", list)
	}
	if r := []rune(list[0].Title); len(r) != titleRunes+3 {
		t.Errorf("expected truncated title, got %q", list[0].Title)
	}

	st, _ := uc.Stats(context.Background())
	if st.ByRole[model.RoleAssistant] != 2 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestChatLog_DeleteIsIdempotent(t *testing.T) {
	repo := newMemChatRepo()
	uc := NewChatLogUseCase(repo, nil, silentLogger())
	s, err := uc.NewSession(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := uc.DeleteSession(context.Background(), s.ID); err != nil {
			t.Fatalf("delete #%d: %v", i+1, err)
		}
	}
	if _, err := uc.Messages(context.Background(), s.ID, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := uc.Messages(context.Background(), " ", 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}
