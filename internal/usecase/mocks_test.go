//go:build !integration

// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/domain/ports/adapter"
	"avatar-live-server/internal/domain/ports/repository"
)

func silentLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// ---- generation ----

type fakeGen struct {
	name       string
	probeOK    bool
	probeErr   error
	probePanic bool
	probeDelay time.Duration
	probeCalls atomic.Int32

	mu       sync.Mutex
	replies  []string
	errs     []error
	calls    int
	lastMsgs []adapter.Message
}

func (f *fakeGen) Name() string { return f.name }

func (f *fakeGen) Probe(ctx context.Context) (bool, error) {
	f.probeCalls.Add(1)
	if f.probeDelay > 0 {
		time.Sleep(f.probeDelay)
	}
	if f.probePanic {
		panic("probe exploded")
	}
	return f.probeOK, f.probeErr
}

// Generate replays errs then replies in order; the last entry repeats.
func (f *fakeGen) Generate(ctx context.Context, msgs []adapter.Message, _ adapter.GenerationParams) (string, adapter.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastMsgs = append([]adapter.Message(nil), msgs...)
	if len(f.errs) > 0 {
		err := f.errs[0]
		if len(f.errs) > 1 {
			f.errs = f.errs[1:]
		}
		if err != nil {
			return "", adapter.Usage{}, err
		}
	}
	if len(f.replies) == 0 {
		return "", adapter.Usage{}, nil
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return r, adapter.Usage{}, nil
}

func (f *fakeGen) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ---- synthesis ----

type fakeSynth struct {
	name       string
	clientSide bool
	dir        string // when set, Synthesize writes a file here
	path       string // returned path when dir is empty
	err        error
	initErr    error
	initCalls  atomic.Int32
	synthCalls atomic.Int32
}

func (f *fakeSynth) Name() string                        { return f.name }
func (f *fakeSynth) Probe(context.Context) (bool, error) { return f.err == nil, nil }
func (f *fakeSynth) ClientSide() bool                    { return f.clientSide }
func (f *fakeSynth) Init(context.Context) error          { f.initCalls.Add(1); return f.initErr }
func (f *fakeSynth) Synthesize(ctx context.Context, text string) (adapter.Audio, error) {
	f.synthCalls.Add(1)
	if f.err != nil {
		return adapter.Audio{}, f.err
	}
	if f.dir != "" {
		p := filepath.Join(f.dir, "tts_test.wav")
		if err := os.WriteFile(p, []byte("RIFF"), 0o644); err != nil {
			return adapter.Audio{}, err
		}
		return adapter.Audio{Path: p, Format: "wav"}, nil
	}
	return adapter.Audio{Path: f.path, Format: "wav"}, nil
}

// ---- phrases ----

type fakePhrases struct{}

func (fakePhrases) Persona() string { return "你是小雨" }
func (fakePhrases) T(key string, args ...interface{}) string {
	if key == "clarification" {
		return "咦？小雨没有听清楚，可以再说一遍吗？"
	}
	return key
}
func (fakePhrases) Pick(key string) string {
	if key == "fallbacks" {
		return "嗯嗯，我明白了！"
	}
	return ""
}

// ---- chat log ----

type memChatRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.ChatSession
	messages []*model.ChatMessage
	saveErr  error
}

func newMemChatRepo() *memChatRepo {
	return &memChatRepo{sessions: map[string]*model.ChatSession{}}
}

var _ repository.ChatSessionRepository = (*memChatRepo)(nil)

func (m *memChatRepo) Save(ctx context.Context, qx any, s *model.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memChatRepo) SaveMessage(ctx context.Context, qx any, msg *model.ChatMessage) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[msg.SessionID]
	if !ok {
		return domain.ErrNotFound
	}
	s.MessageCount++
	s.UpdatedAt = msg.Timestamp
	cp := *msg
	m.messages = append(m.messages, &cp)
	return nil
}

func (m *memChatRepo) Delete(ctx context.Context, qx any, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.sessions, id)
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.SessionID != id {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	return nil
}

func (m *memChatRepo) FindByID(ctx context.Context, qx any, id string) (*model.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memChatRepo) List(ctx context.Context, qx any, limit int) ([]*model.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.ChatSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memChatRepo) Messages(ctx context.Context, qx any, sessionID string, limit int) ([]*model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ChatMessage
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memChatRepo) Stats(ctx context.Context, qx any) (*model.ChatStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &model.ChatStats{Sessions: len(m.sessions), Messages: len(m.messages),
		ByRole: map[string]int{}, ByEmotion: map[string]int{}}
	for _, msg := range m.messages {
		st.ByRole[msg.Role]++
		if msg.Emotion != "" {
			st.ByEmotion[string(msg.Emotion)]++
		}
	}
	return st, nil
}

func (m *memChatRepo) CleanupOldMessages(ctx context.Context, retentionDays int) (int64, error) {
	return 0, nil
}

func (m *memChatRepo) messageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// fakeTM runs fn inline and counts transactions.
type fakeTM struct{ calls atomic.Int32 }

func (f *fakeTM) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	f.calls.Add(1)
	return fn(ctx, "tx")
}

// ---- training ----

type fakeToolkit struct {
	mu       sync.Mutex
	steps    []string
	failAt   string
	block    chan struct{} // when set, every step waits on it
	cleanups int

	// onCleanup runs inside Cleanup, while the delete is still in progress.
	onCleanup func()
}

func (f *fakeToolkit) RunStep(ctx context.Context, step model.TrainingStep, in adapter.TrainingInput) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, step.Key)
	if step.Key == f.failAt {
		return domain.ErrTransport
	}
	return nil
}

func (f *fakeToolkit) Cleanup(ctx context.Context, in adapter.TrainingInput) error {
	f.mu.Lock()
	f.cleanups++
	hook := f.onCleanup
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

type memArtifacts struct {
	mu    sync.Mutex
	items map[string]model.TrainingArtifact
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{items: map[string]model.TrainingArtifact{}}
}

func (m *memArtifacts) Load(ctx context.Context, name string) (*model.TrainingArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (m *memArtifacts) Save(ctx context.Context, a *model.TrainingArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[a.ModelName] = *a
	return nil
}

func (m *memArtifacts) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[name]; !ok {
		return domain.ErrNotFound
	}
	delete(m.items, name)
	return nil
}

// syncRunner runs tasks inline so tests observe the final state. Like a
// pool, it only reports submission failures.
type syncRunner struct{}

func (syncRunner) Submit(task func(ctx context.Context) error) error {
	_ = task(context.Background())
	return nil
}

type fakeLocker struct {
	held   atomic.Bool
	denied bool
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if l.denied || !l.held.CompareAndSwap(false, true) {
		return "", domain.ErrJobConflict
	}
	return "tok", nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.held.Store(false)
	return nil
}

// ---- availability store ----

type memAvailStore struct {
	mu    sync.Mutex
	items map[string]model.Availability
}

func (m *memAvailStore) Get(ctx context.Context, key string) (model.Availability, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[key]
	return a, ok, nil
}

func (m *memAvailStore) Set(ctx context.Context, key string, a model.Availability, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = map[string]model.Availability{}
	}
	m.items[key] = a
	return nil
}

// ---- clock ----

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
