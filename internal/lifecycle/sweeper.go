package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/presetd/internal/naming"
	"github.com/newthinker/presetd/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultSweepInterval is used when SweeperOptions.Interval is unset.
const DefaultSweepInterval = 10 * time.Minute

// LiveSet reports which draft family, if any, an open session owns.
type LiveSet interface {
	LiveBase(presetPath string) (string, bool)
}

// SweeperOptions configures a Sweeper.
type SweeperOptions struct {
	Interval   time.Duration
	Namespaces []string
	// Concurrency caps parallel deletes per namespace.
	Concurrency int
	Recorder    Recorder
	Logger      *zap.Logger
}

// Sweeper deletes orphaned drafts: drafts whose base record is gone and
// whose family no open session owns.
type Sweeper struct {
	store      store.Store
	live       LiveSet
	interval   time.Duration
	namespaces []string
	limit      int
	recorder   Recorder
	logger     *zap.Logger
}

// NewSweeper creates a sweeper. live may be nil when no sessions exist.
func NewSweeper(st store.Store, live LiveSet, opts SweeperOptions) *Sweeper {
	s := &Sweeper{
		store:      st,
		live:       live,
		interval:   opts.Interval,
		namespaces: opts.Namespaces,
		limit:      opts.Concurrency,
		recorder:   opts.Recorder,
		logger:     opts.Logger,
	}
	if s.interval <= 0 {
		s.interval = DefaultSweepInterval
	}
	if s.limit <= 0 {
		s.limit = DefaultPurgeConcurrency
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Sweep runs one pass over the configured namespaces, or every namespace
// the store can enumerate. It returns the number of drafts deleted.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	paths := s.namespaces
	if len(paths) == 0 {
		lister, ok := s.store.(store.NamespaceLister)
		if !ok {
			return 0, fmt.Errorf("sweeper: no namespaces configured and store cannot list them")
		}
		var err error
		if paths, err = lister.Namespaces(ctx); err != nil {
			return 0, fmt.Errorf("sweeper: listing namespaces: %w", err)
		}
	}

	var errs []error
	total := 0
	for _, path := range paths {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := s.sweepNamespace(ctx, path)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	if total > 0 {
		s.recorder.RecordDraftsPurged(total)
	}
	return total, errors.Join(errs...)
}

// Orphans returns the orphaned drafts in names.
func Orphans(names []string, liveBase string) []string {
	bases := make(map[string]struct{})
	for _, n := range names {
		if !naming.IsDraft(n) {
			bases[n] = struct{}{}
		}
	}
	var orphans []string
	for _, n := range names {
		if !naming.IsDraft(n) {
			continue
		}
		base := naming.BaseOf(n)
		if _, ok := bases[base]; ok || base == liveBase {
			continue
		}
		orphans = append(orphans, n)
	}
	return orphans
}

func (s *Sweeper) sweepNamespace(ctx context.Context, path string) (int, error) {
	names, err := s.store.List(ctx, path)
	if err != nil {
		return 0, err
	}
	liveBase := ""
	if s.live != nil {
		liveBase, _ = s.live.LiveBase(path)
	}

	var (
		mu      sync.Mutex
		deleted int
		errs    []error
	)
	// One failed delete does not stop the rest of the batch.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for _, name := range Orphans(names, liveBase) {
		g.Go(func() error {
			err := s.store.Delete(gctx, path, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return nil
			}
			deleted++
			s.logger.Info("deleted orphaned draft",
				zap.String("preset_path", path),
				zap.String("draft", name),
			)
			return nil
		})
	}
	_ = g.Wait()
	return deleted, errors.Join(errs...)
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("draft sweeper starting", zap.Duration("interval", s.interval))
	s.sweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("draft sweeper stopping")
			return ctx.Err()
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("sweep failed", zap.Int("deleted", n), zap.Error(err))
		return
	}
	s.logger.Debug("sweep finished", zap.Int("deleted", n))
}
