package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/presetd/internal/autosave"
	"github.com/newthinker/presetd/internal/backtest"
	"github.com/newthinker/presetd/internal/core"
	"github.com/newthinker/presetd/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const ns = "strategies/ema"

type fakeTimer struct {
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

// fakeClock records deferred calls; tests fire them explicitly.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) autosave.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

// fire runs every armed timer once and returns how many ran.
func (c *fakeClock) fire() int {
	c.mu.Lock()
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
	return len(due)
}

var errInjected = errors.New("connection reset by peer")

// faultyStore fails selected calls once.
type faultyStore struct {
	*store.MemoryStore

	mu    sync.Mutex
	fails map[string]int // "op:name" -> remaining failures
	calls []string
}

func newFaultyStore() *faultyStore {
	return &faultyStore{MemoryStore: store.NewMemoryStore(), fails: make(map[string]int)}
}

func (f *faultyStore) failNext(op, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails[op+":"+name]++
}

func (f *faultyStore) check(op, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op+":"+name)
	key := op + ":" + name
	if f.fails[key] > 0 {
		f.fails[key]--
		return errInjected
	}
	return nil
}

func (f *faultyStore) List(ctx context.Context, presetPath string) ([]string, error) {
	if err := f.check("list", presetPath); err != nil {
		return nil, err
	}
	return f.MemoryStore.List(ctx, presetPath)
}

func (f *faultyStore) Load(ctx context.Context, presetPath, presetName string) (core.ParameterSet, error) {
	if err := f.check("load", presetName); err != nil {
		return core.ParameterSet{}, err
	}
	return f.MemoryStore.Load(ctx, presetPath, presetName)
}

func (f *faultyStore) Save(ctx context.Context, presetPath, presetName string, ps core.ParameterSet) error {
	if err := f.check("save", presetName); err != nil {
		return err
	}
	return f.MemoryStore.Save(ctx, presetPath, presetName, ps)
}

func (f *faultyStore) Delete(ctx context.Context, presetPath, presetName string) error {
	if err := f.check("delete", presetName); err != nil {
		return err
	}
	return f.MemoryStore.Delete(ctx, presetPath, presetName)
}

type fakeBacktester struct {
	path   string
	values map[string]any
}

func (b *fakeBacktester) Run(ctx context.Context, strategyPath string, values map[string]any) (*backtest.Result, error) {
	b.path = strategyPath
	b.values = values
	return &backtest.Result{StrategyPath: strategyPath, Inputs: values}, nil
}

type countingRecorder struct {
	mu      sync.Mutex
	ops     map[string]int
	autos   map[string]int
	purged  int
	session int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{ops: make(map[string]int), autos: make(map[string]int)}
}

func (r *countingRecorder) RecordLifecycleOp(op, status string, seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op+":"+status]++
}

func (r *countingRecorder) RecordAutosave(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autos[status]++
}

func (r *countingRecorder) RecordDraftsPurged(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purged += n
}

func (r *countingRecorder) SetSessionsActive(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = n
}

func step(v float64) *float64 { return &v }

func emaSet(fast float64) core.ParameterSet {
	return core.NewParameterSet(
		core.Parameter{Name: "fast", Value: fast, Description: "Fast EMA", Step: step(1)},
		core.Parameter{Name: "slow", Value: 21, Description: "Slow EMA"},
	)
}

type harness struct {
	ctx   context.Context
	store *faultyStore
	clock *fakeClock
	rec   *countingRecorder
	bt    *fakeBacktester
	c     *Controller
}

func newHarness(t *testing.T, seed map[string]core.ParameterSet) *harness {
	t.Helper()
	h := &harness{
		ctx:   context.Background(),
		store: newFaultyStore(),
		clock: &fakeClock{},
		rec:   newCountingRecorder(),
		bt:    &fakeBacktester{},
	}
	for name, ps := range seed {
		require.NoError(t, h.store.MemoryStore.Save(h.ctx, ns, name, ps))
	}
	h.c = New(h.store, ns, Options{
		SessionID:  "test-session",
		Recorder:   h.rec,
		Backtester: h.bt,
		Logger:     zaptest.NewLogger(t),
		Autosave:   autosave.Options{Clock: h.clock, MaxRetries: 2},
	})
	t.Cleanup(h.c.Close)
	return h
}

func (h *harness) names(t *testing.T) []string {
	t.Helper()
	names, err := h.store.MemoryStore.List(h.ctx, ns)
	require.NoError(t, err)
	return names
}

func (h *harness) record(t *testing.T, name string) core.ParameterSet {
	t.Helper()
	ps, err := h.store.MemoryStore.Load(h.ctx, ns, name)
	require.NoError(t, err)
	return ps
}

// edit applies values and lets the quiet period elapse.
func (h *harness) edit(t *testing.T, values core.ParameterSet) {
	t.Helper()
	require.NoError(t, h.c.Update(h.ctx, values))
	require.Equal(t, 1, h.clock.fire())
}
