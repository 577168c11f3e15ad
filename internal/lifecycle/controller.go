// Package lifecycle owns the editing session of one preset namespace: which
// preset is active, its unsaved draft chain, and the load, save, switch and
// delete transitions that keep the draft families consistent.
package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/presetd/internal/autosave"
	"github.com/newthinker/presetd/internal/backtest"
	"github.com/newthinker/presetd/internal/core"
	"github.com/newthinker/presetd/internal/draft"
	"github.com/newthinker/presetd/internal/naming"
	"github.com/newthinker/presetd/internal/store"
	"go.uber.org/zap"
)

// DefaultPersistenceTimeout bounds every single store call.
const DefaultPersistenceTimeout = 10 * time.Second

// DefaultPurgeConcurrency caps parallel deletes in one purge batch.
const DefaultPurgeConcurrency = 8

// State is the session state.
type State string

const (
	StateIdle   State = "idle"
	StateLoaded State = "loaded"
	StateDirty  State = "dirty"
)

// Backtester runs a strategy with raw parameter values.
type Backtester interface {
	Run(ctx context.Context, strategyPath string, values map[string]any) (*backtest.Result, error)
}

// Recorder receives operational measurements.
type Recorder interface {
	RecordLifecycleOp(op, status string, seconds float64)
	RecordAutosave(status string)
	RecordDraftsPurged(n int)
	SetSessionsActive(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordLifecycleOp(string, string, float64) {}
func (nopRecorder) RecordAutosave(string)                     {}
func (nopRecorder) RecordDraftsPurged(int)                    {}
func (nopRecorder) SetSessionsActive(int)                     {}

// Options configures a Controller.
type Options struct {
	SessionID          string
	Tracker            *draft.Tracker
	Confirmer          Confirmer
	Backtester         Backtester
	Recorder           Recorder
	Logger             *zap.Logger
	Autosave           autosave.Options
	PersistenceTimeout time.Duration
	PurgeConcurrency   int
}

// Snapshot is the externally visible session state.
type Snapshot struct {
	SessionID        string            `json:"session_id"`
	PresetPath       string            `json:"preset_path"`
	State            State             `json:"state"`
	ActivePresetName string            `json:"active_preset_name,omitempty"`
	BaseName         string            `json:"base_name,omitempty"`
	Version          uint64            `json:"version"`
	Values           core.ParameterSet `json:"values"`
	Presets          []string          `json:"presets"`
	Unsaved          bool              `json:"unsaved"`
}

// Controller serializes lifecycle operations for one preset namespace and
// is the only path that writes to the store for it.
type Controller struct {
	id         string
	presetPath string
	store      store.Store
	tracker    *draft.Tracker
	confirmer  Confirmer
	backtester Backtester
	recorder   Recorder
	logger     *zap.Logger
	timeout    time.Duration
	purgeLimit int

	scheduler *autosave.Scheduler
	events    *broker

	// ops admits one lifecycle operation or autosave write at a time.
	ops chan struct{}

	mu      sync.Mutex
	state   State
	active  string
	values  core.ParameterSet
	known   []string
	editGen uint64
	closed  bool
}

// New creates an idle controller for presetPath.
func New(st store.Store, presetPath string, opts Options) *Controller {
	c := &Controller{
		id:         opts.SessionID,
		presetPath: presetPath,
		store:      st,
		tracker:    opts.Tracker,
		confirmer:  opts.Confirmer,
		backtester: opts.Backtester,
		recorder:   opts.Recorder,
		logger:     opts.Logger,
		timeout:    opts.PersistenceTimeout,
		purgeLimit: opts.PurgeConcurrency,
		events:     newBroker(),
		ops:        make(chan struct{}, 1),
		state:      StateIdle,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.With(zap.String("preset_path", presetPath))
	if c.id != "" {
		c.logger = c.logger.With(zap.String("session_id", c.id))
	}
	if c.tracker == nil {
		c.tracker = draft.NewTracker(c.logger)
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultPersistenceTimeout
	}
	if c.purgeLimit <= 0 {
		c.purgeLimit = DefaultPurgeConcurrency
	}

	asOpts := opts.Autosave
	if asOpts.Logger == nil {
		asOpts.Logger = c.logger
	}
	c.scheduler = autosave.New(c, asOpts)
	return c
}

// ID returns the session ID.
func (c *Controller) ID() string { return c.id }

// PresetPath returns the namespace this controller edits.
func (c *Controller) PresetPath() string { return c.presetPath }

// Update records an edit of the active preset and schedules an autosave.
// It waits for an in-flight lifecycle operation to finish first.
func (c *Controller) Update(ctx context.Context, values core.ParameterSet) error {
	release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return core.ErrNoActivePreset
	}
	c.values = values.WithActive(false)
	c.state = StateDirty
	c.editGen++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.scheduler.OnValuesChanged(values)
	c.publish(Event{Type: EventTransition, Snapshot: snap})
	return nil
}

// PersistDraft writes one autosave draft. It is called by the scheduler
// and never waits for a lifecycle operation; it reports autosave.ErrSkipped
// instead.
func (c *Controller) PersistDraft(ctx context.Context, values core.ParameterSet) error {
	select {
	case c.ops <- struct{}{}:
	default:
		c.recorder.RecordAutosave("skipped")
		return autosave.ErrSkipped
	}
	defer func() { <-c.ops }()

	c.mu.Lock()
	if c.closed || c.state == StateIdle {
		c.mu.Unlock()
		c.recorder.RecordAutosave("skipped")
		return autosave.ErrSkipped
	}
	base := naming.BaseOf(c.active)
	names := append(append([]string(nil), c.known...), c.active)
	gen := c.editGen
	c.mu.Unlock()

	name := naming.DraftName(base, c.tracker.NextVersion(names, base))
	if err := c.save(ctx, name, values.WithActive(true)); err != nil {
		c.recorder.RecordAutosave("error")
		c.publish(Event{Type: EventAutosaveFailed, Snapshot: c.Snapshot(), Error: err.Error()})
		return err
	}

	c.mu.Lock()
	c.active = name
	c.known = addName(c.known, name)
	if gen == c.editGen {
		c.state = StateLoaded
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.recorder.RecordAutosave("ok")
	c.logger.Debug("autosaved draft", zap.String("draft", name))
	c.publish(Event{Type: EventAutosaved, Snapshot: snap})
	return nil
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:        c.id,
		PresetPath:       c.presetPath,
		State:            c.state,
		ActivePresetName: c.active,
		Values:           c.values.Clone(),
		Presets:          naming.Visible(c.known),
	}
	if c.active != "" {
		snap.BaseName = naming.BaseOf(c.active)
		if v, ok := naming.Version(c.active); ok {
			snap.Version = v
		}
		names := append(append([]string(nil), c.known...), c.active)
		snap.Unsaved = c.state == StateDirty || c.tracker.HasUnsavedChanges(names, snap.BaseName)
	}
	return snap
}

// LiveBase returns the base name whose draft family this session owns.
func (c *Controller) LiveBase() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle || c.active == "" {
		return "", false
	}
	return naming.BaseOf(c.active), true
}

// Subscribe returns a stream of session events and a cancel function.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	return c.events.subscribe()
}

// Backtest runs strategyPath with the current values, metadata stripped.
func (c *Controller) Backtest(ctx context.Context, strategyPath string) (*backtest.Result, error) {
	if c.backtester == nil {
		return nil, core.WrapError(core.ErrBacktestFailed, errors.New("no backtest engine configured"))
	}
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return nil, core.ErrNoActivePreset
	}
	values := c.values.Values()
	c.mu.Unlock()

	return c.backtester.Run(ctx, strategyPath, values)
}

// Close cancels any pending autosave and ends the session.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.scheduler.Close()
	c.publish(Event{Type: EventClosed, Snapshot: snap})
	c.events.close()
}

func (c *Controller) acquire(ctx context.Context) (func(), error) {
	select {
	case c.ops <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		<-c.ops
		return nil, core.ErrSessionClosed
	}
	return func() { <-c.ops }, nil
}

func (c *Controller) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if dropped := c.events.publish(e); dropped > 0 {
		c.logger.Warn("dropped session events for slow subscribers",
			zap.String("event", string(e.Type)),
			zap.Int("dropped", dropped),
		)
	}
}

// call bounds fn by the persistence timeout and maps failures other than
// a missing record to core.ErrNetwork.
func (c *Controller) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := fn(ctx)
	if err == nil || errors.Is(err, core.ErrPresetNotFound) || errors.Is(err, core.ErrNetwork) {
		return err
	}
	return core.WrapError(core.ErrNetwork, err)
}

func (c *Controller) list(ctx context.Context) ([]string, error) {
	var names []string
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		names, err = c.store.List(ctx, c.presetPath)
		return err
	})
	return names, err
}

func (c *Controller) load(ctx context.Context, name string) (core.ParameterSet, error) {
	var ps core.ParameterSet
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		ps, err = c.store.Load(ctx, c.presetPath, name)
		return err
	})
	return ps, err
}

func (c *Controller) save(ctx context.Context, name string, ps core.ParameterSet) error {
	return c.call(ctx, func(ctx context.Context) error {
		return c.store.Save(ctx, c.presetPath, name, ps)
	})
}

func (c *Controller) remove(ctx context.Context, name string) error {
	err := c.call(ctx, func(ctx context.Context) error {
		return c.store.Delete(ctx, c.presetPath, name)
	})
	if errors.Is(err, core.ErrPresetNotFound) {
		return nil
	}
	return err
}

func statusOf(err error) string {
	if err == nil {
		return "ok"
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		return strings.ToLower(ce.Code)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "error"
}

func addName(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}

func removeNames(names []string, drop ...string) []string {
	if len(drop) == 0 {
		return names
	}
	skip := make(map[string]struct{}, len(drop))
	for _, d := range drop {
		skip[d] = struct{}{}
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := skip[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
