//go:build !integration

package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/domain/ports/adapter"
)

func newTestCache(clock *fakeClock, opts ...AvailabilityOption) *AvailabilityCache {
	base := []AvailabilityOption{
		WithClock(clock.Now),
		WithProbePolicy(ProbePolicy{Timeout: time.Second}),
	}
	return NewAvailabilityCache(time.Minute, silentLogger(), append(base, opts...)...)
}

func TestAvailability_ProbesOncePerWindow(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	p := &fakeGen{name: "qwen", probeOK: true}

	if !c.IsAvailable(context.Background(), p) {
		t.Fatal("expected available")
	}
	clock.Advance(30 * time.Second)
	if !c.IsAvailable(context.Background(), p) {
		t.Fatal("expected cached available")
	}
	if got := p.probeCalls.Load(); got != 1 {
		t.Fatalf("expected 1 probe inside window, got %d", got)
	}

	clock.Advance(31 * time.Second)
	c.IsAvailable(context.Background(), p)
	if got := p.probeCalls.Load(); got != 2 {
		t.Fatalf("expected re-probe after window, got %d probes", got)
	}
}

func TestAvailability_FailuresReadAsUnavailable(t *testing.T) {
	t.Run("unreachable provider checked once per window", func(t *testing.T) {
		clock := newFakeClock()
		c := newTestCache(clock)
		p := &fakeGen{name: "x", probeErr: errors.New("dial tcp: refused")}
		if c.IsAvailable(context.Background(), p) {
			t.Fatal("expected unavailable")
		}
		clock.Advance(10 * time.Second)
		if c.IsAvailable(context.Background(), p) {
			t.Fatal("expected cached unavailable")
		}
		if got := p.probeCalls.Load(); got != 1 {
			t.Errorf("expected exactly 1 probe call for two lookups, got %d", got)
		}
	})

	t.Run("probe panic contained", func(t *testing.T) {
		c := newTestCache(newFakeClock())
		p := &fakeGen{name: "x", probePanic: true}
		if c.IsAvailable(context.Background(), p) {
			t.Fatal("expected unavailable")
		}
	})

	t.Run("negative answer is not retried", func(t *testing.T) {
		c := newTestCache(newFakeClock())
		p := &fakeGen{name: "x", probeOK: false}
		if c.IsAvailable(context.Background(), p) {
			t.Fatal("expected unavailable")
		}
		if got := p.probeCalls.Load(); got != 1 {
			t.Errorf("expected 1 probe, got %d", got)
		}
	})
}

func TestAvailability_ConcurrentMissesCollapse(t *testing.T) {
	c := newTestCache(newFakeClock())
	p := &fakeGen{name: "slow", probeOK: true, probeDelay: 50 * time.Millisecond}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.IsAvailable(context.Background(), p) {
				t.Error("expected available")
			}
		}()
	}
	wg.Wait()
	if got := p.probeCalls.Load(); got != 1 {
		t.Errorf("expected a single probe, got %d", got)
	}
}

func TestAvailability_SharedStore(t *testing.T) {
	clock := newFakeClock()
	store := &memAvailStore{}
	_ = store.Set(context.Background(), "qwen", model.Availability{Available: true, CheckedAt: clock.Now()}, time.Minute)

	c := newTestCache(clock, WithSharedStore(store))
	p := &fakeGen{name: "qwen", probeOK: false}
	if !c.IsAvailable(context.Background(), p) {
		t.Fatal("expected shared result to be used")
	}
	if p.probeCalls.Load() != 0 {
		t.Error("expected no probe when shared entry is fresh")
	}

	other := &fakeGen{name: "ollama", probeOK: true}
	c.IsAvailable(context.Background(), other)
	if a, ok, _ := store.Get(context.Background(), "ollama"); !ok || !a.Available {
		t.Error("expected probe outcome written to shared store")
	}
}

func TestAvailability_TimestampNeverMovesBack(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	now := clock.Now()
	c.keep("p", model.Availability{Available: true, CheckedAt: now})
	c.keep("p", model.Availability{Available: false, CheckedAt: now.Add(-time.Second)})
	a, ok := c.Peek("p")
	if !ok || !a.Available || !a.CheckedAt.Equal(now) {
		t.Errorf("older entry must not replace newer one: %+v", a)
	}
}

func TestRegistry_SelectAndDescribe(t *testing.T) {
	a := &fakeGen{name: "qwen"}
	b := &fakeGen{name: "ollama"}
	r := NewRegistry[adapter.GenerationProvider](model.ProviderGeneration, a, b)

	if _, ok := r.Active(); ok {
		t.Fatal("expected no active provider before Select")
	}
	if err := r.Select("nope"); err == nil {
		t.Fatal("expected unknown provider error")
	}
	if err := r.Select("qwen"); err != nil {
		t.Fatalf("select: %v", err)
	}
	held, _ := r.Active()
	if err := r.Select("ollama"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if held.Name() != "qwen" {
		t.Error("previously loaded provider must stay usable")
	}
	if r.ActiveName() != "ollama" {
		t.Errorf("active = %q", r.ActiveName())
	}

	ds := r.Describe(nil)
	if len(ds) != 2 || ds[0].Name != "ollama" || !ds[0].Active || ds[1].Active {
		t.Errorf("unexpected descriptors: %+v", ds)
	}
}
