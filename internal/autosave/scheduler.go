// Package autosave debounces parameter edits into draft writes.
package autosave

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/newthinker/presetd/internal/core"
	"go.uber.org/zap"
)

// Defaults
const (
	DefaultQuietPeriod = time.Second
	DefaultMaxRetries  = 3
	DefaultTimeout     = 10 * time.Second
)

// ErrSkipped is returned by a Persister that declined a write because a
// lifecycle operation owns the session. Skipped writes are not retried.
var ErrSkipped = errors.New("autosave: write skipped")

// Timer is a cancellable deferred call.
type Timer interface {
	Stop() bool
}

// Clock schedules deferred calls.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Persister writes one draft snapshot.
type Persister interface {
	PersistDraft(ctx context.Context, values core.ParameterSet) error
}

// Options configures a Scheduler.
type Options struct {
	QuietPeriod time.Duration
	MaxRetries  int
	Timeout     time.Duration
	Clock       Clock
	Logger      *zap.Logger
}

// Scheduler turns a burst of edits into at most one write per quiet period.
type Scheduler struct {
	persister   Persister
	quietPeriod time.Duration
	maxRetries  int
	timeout     time.Duration
	clock       Clock
	logger      *zap.Logger

	mu        sync.Mutex
	pending   *core.ParameterSet
	timer     Timer
	gen       uint64
	suspended int
	retries   int
	closed    bool
}

// New creates a scheduler that hands snapshots to p.
func New(p Persister, opts Options) *Scheduler {
	s := &Scheduler{
		persister:   p,
		quietPeriod: opts.QuietPeriod,
		maxRetries:  opts.MaxRetries,
		timeout:     opts.Timeout,
		clock:       opts.Clock,
		logger:      opts.Logger,
	}
	if s.quietPeriod <= 0 {
		s.quietPeriod = DefaultQuietPeriod
	}
	if s.maxRetries < 0 {
		s.maxRetries = 0
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// OnValuesChanged records the latest snapshot and restarts the quiet period,
// cancelling any pending write. It reports false when the scheduler is
// suspended or closed and the snapshot was ignored.
func (s *Scheduler) OnValuesChanged(values core.ParameterSet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.suspended > 0 {
		return false
	}
	snapshot := values.Clone()
	s.pending = &snapshot
	s.retries = 0
	s.arm()
	return true
}

// arm must be called with s.mu held.
func (s *Scheduler) arm() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.quietPeriod, func() { s.fire(gen) })
}

// disarm must be called with s.mu held.
func (s *Scheduler) disarm() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.closed || s.suspended > 0 || s.pending == nil {
		s.mu.Unlock()
		return
	}
	values := s.pending.Clone()
	s.timer = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	err := s.persister.PersistDraft(ctx, values)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		// Newer values or a suspension arrived while writing.
		return
	}
	switch {
	case err == nil:
		s.pending = nil
		s.retries = 0
	case errors.Is(err, ErrSkipped):
	case s.closed || s.suspended > 0:
	case s.retries < s.maxRetries:
		s.retries++
		s.logger.Warn("autosave failed, retrying after quiet period",
			zap.Int("attempt", s.retries),
			zap.Error(err),
		)
		s.arm()
	default:
		s.logger.Error("autosave failed, waiting for next edit",
			zap.Int("attempts", s.retries+1),
			zap.Error(err),
		)
	}
}

// Suspend cancels the pending timer and disables scheduling until Resume.
// The pending snapshot, if any, is kept and returned.
func (s *Scheduler) Suspend() (core.ParameterSet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.suspended++
	s.disarm()
	if s.pending == nil {
		return core.ParameterSet{}, false
	}
	return s.pending.Clone(), true
}

// Resume re-enables scheduling. With rearm the kept snapshot gets a fresh
// quiet period; otherwise it is dropped.
func (s *Scheduler) Resume(rearm bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.suspended > 0 {
		s.suspended--
	}
	if s.suspended > 0 || s.closed {
		return
	}
	if rearm && s.pending != nil {
		s.retries = 0
		s.arm()
		return
	}
	s.pending = nil
}

// HasPending reports whether a snapshot is waiting to be written.
func (s *Scheduler) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Close cancels any pending write for good.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.pending = nil
	s.disarm()
}
