//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/model"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, BaseDelay: 500 * time.Millisecond, RateLimitBase: time.Second, MaxDelay: 3 * time.Second}
	timeout := domain.NewProviderError("p", domain.ErrTimeout, 0, nil)
	limited := domain.NewProviderError("p", domain.ErrRateLimited, 429, nil)

	cases := []struct {
		n    int
		err  error
		want time.Duration
	}{
		{1, timeout, 500 * time.Millisecond},
		{2, timeout, time.Second},
		{3, timeout, 2 * time.Second},
		{4, timeout, 3 * time.Second},
		{1, limited, time.Second},
		{2, limited, 2 * time.Second},
	}
	for _, c := range cases {
		if got := p.Backoff(c.n, c.err); got != c.want {
			t.Errorf("Backoff(%d, %v) = %v, want %v", c.n, domain.Kind(c.err), got, c.want)
		}
	}
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	n, err := retry(context.Background(), DefaultRetryPolicy(), noSleep, func(ctx context.Context, attempt int) error {
		calls++
		return domain.NewProviderError("p", domain.ErrInvalidRequest, 400, nil)
	})
	if calls != 1 || n != 1 || !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("calls=%d n=%d err=%v", calls, n, err)
	}
}

func TestRetry_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := retry(ctx, RetryPolicy{MaxRetries: 5}, noSleep, func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return domain.ErrTransport
	})
	if calls != 1 || !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}

func TestEmotionClassifier(t *testing.T) {
	c := NewEmotionClassifier(nil)
	cases := map[string]model.Emotion{
		"哈哈，今天好开心":      model.EmotionHappy,
		"我有点难过，想哭":      model.EmotionSad,
		"真让人生气！":        model.EmotionAngry,
		"哇，太意外了":        model.EmotionSurprised,
		"今天天气一般":        model.EmotionNeutral,
		"":              model.EmotionNeutral,
		"I am SO HAPPY": model.EmotionHappy,
	}
	for in, want := range cases {
		if got := c.Classify(in); got != want {
			t.Errorf("Classify(%q) = %s, want %s", in, got, want)
		}
	}

	t.Run("ties follow priority", func(t *testing.T) {
		if got := c.Classify("开心又难过"); got != model.EmotionHappy {
			t.Errorf("happy should win a tie with sad, got %s", got)
		}
		if got := c.Classify("难过又生气"); got != model.EmotionSad {
			t.Errorf("sad should win a tie with angry, got %s", got)
		}
	})

	t.Run("overlapping matches count", func(t *testing.T) {
		custom := NewEmotionClassifier(map[model.Emotion][]string{
			model.EmotionHappy: {"aa"},
			model.EmotionSad:   {"aaa"},
		})
		// "aaaa": aa x3, aaa x2
		if got := custom.Classify("aaaa"); got != model.EmotionHappy {
			t.Errorf("got %s", got)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			if c.Classify("开心 难过 生气 惊讶") != model.EmotionHappy {
				t.Fatal("classification must be deterministic")
			}
		}
	})
}
