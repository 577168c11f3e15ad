package lifecycle

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/newthinker/presetd/internal/core"
	"github.com/newthinker/presetd/internal/naming"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultPresetName is resumed when no draft is flagged active.
const DefaultPresetName = "default"

// opContext carries per-call state into an operation body.
type opContext struct {
	cfg        opConfig
	pending    core.ParameterSet
	hasPending bool
	// rearm restores the suspended autosave when the operation leaves the
	// current preset in place.
	rearm bool
}

// run suspends autosave, waits for its turn, and executes fn.
func (c *Controller) run(ctx context.Context, op string, opts []OpOption, fn func(ctx context.Context, oc *opContext) error) error {
	oc := &opContext{cfg: opConfig{confirmer: c.confirmer}}
	for _, o := range opts {
		o(&oc.cfg)
	}

	oc.pending, oc.hasPending = c.scheduler.Suspend()
	defer func() { c.scheduler.Resume(oc.rearm) }()

	release, err := c.acquire(ctx)
	if err != nil {
		oc.rearm = true
		return err
	}
	defer release()

	start := time.Now()
	err = fn(ctx, oc)
	c.recorder.RecordLifecycleOp(op, statusOf(err), time.Since(start).Seconds())
	if err != nil {
		c.logger.Warn("lifecycle operation failed",
			zap.String("op", op),
			zap.Error(err),
		)
	}
	return err
}

// confirm asks for a decision on req. Without a confirmer, or with an empty
// answer, it fails with base carrying a *ConfirmationError.
func (c *Controller) confirm(ctx context.Context, oc *opContext, base *core.Error, req ConfirmationRequest) (Decision, error) {
	req.SessionID = c.id
	req.PresetPath = c.presetPath
	c.publish(Event{Type: EventConfirmationRequired, Snapshot: c.Snapshot(), Confirmation: &req})

	if oc.cfg.confirmer == nil {
		return "", core.WrapError(base, &ConfirmationError{Request: req})
	}
	d, err := oc.cfg.confirmer.Confirm(ctx, req)
	if err != nil {
		return "", err
	}
	if d == "" {
		return "", core.WrapError(base, &ConfirmationError{Request: req})
	}
	return d, nil
}

// Load makes base the active preset and returns its values. The session
// must be idle; use Switch to leave an active preset.
func (c *Controller) Load(ctx context.Context, name string) (core.ParameterSet, error) {
	base := naming.BaseOf(name)
	if !naming.ValidBase(base) {
		return core.ParameterSet{}, core.ErrInvalidName
	}

	var loaded core.ParameterSet
	err := c.run(ctx, "load", nil, func(ctx context.Context, oc *opContext) error {
		c.mu.Lock()
		state := c.state
		c.mu.Unlock()
		if state != StateIdle {
			oc.rearm = true
			return core.ErrPresetActive
		}

		var err error
		loaded, err = c.activate(ctx, base, nil)
		return err
	})
	return loaded, err
}

// activate makes base the live family: it fetches the record (unless values
// are given), purges every draft of base and writes the baseline draft.
// Session state is committed only after all writes succeed.
func (c *Controller) activate(ctx context.Context, base string, values *core.ParameterSet) (core.ParameterSet, error) {
	var ps core.ParameterSet
	if values != nil {
		ps = values.Clone()
	} else {
		var err error
		if ps, err = c.load(ctx, base); err != nil {
			return core.ParameterSet{}, err
		}
	}

	names, baseline, err := c.stage(ctx, base, ps)
	if err != nil {
		return core.ParameterSet{}, err
	}
	return c.commit(base, baseline, ps, names), nil
}

// stage purges base's drafts and writes its baseline draft without touching
// session state. It returns the names left in the store.
func (c *Controller) stage(ctx context.Context, base string, ps core.ParameterSet) ([]string, string, error) {
	names, err := c.purgeFamily(ctx, base)
	if err != nil {
		return nil, "", err
	}
	baseline := naming.DraftName(base, c.tracker.ResetVersion())
	if err := c.save(ctx, baseline, ps.WithActive(true)); err != nil {
		return nil, "", err
	}
	return addName(names, baseline), baseline, nil
}

// commit points the session at a staged baseline.
func (c *Controller) commit(base, baseline string, ps core.ParameterSet, names []string) core.ParameterSet {
	c.mu.Lock()
	c.active = baseline
	c.values = ps.WithActive(false)
	c.state = StateLoaded
	c.known = names
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("preset loaded", zap.String("preset", base))
	c.publish(Event{Type: EventTransition, Snapshot: snap})
	return ps.WithActive(false)
}

// Save writes values under target, discards target's drafts and makes
// target the active preset. Overwriting a different existing preset needs a
// proceed decision. Saving under a new name also discards the drafts of the
// previously active preset.
func (c *Controller) Save(ctx context.Context, target string, values core.ParameterSet, opts ...OpOption) error {
	base := naming.BaseOf(target)
	if !naming.ValidBase(base) {
		return core.ErrInvalidName
	}

	return c.run(ctx, "save", opts, func(ctx context.Context, oc *opContext) error {
		c.mu.Lock()
		from := ""
		if c.active != "" {
			from = naming.BaseOf(c.active)
		}
		c.mu.Unlock()

		names, err := c.list(ctx)
		if err != nil {
			oc.rearm = true
			return err
		}

		if base != from && contains(names, base) {
			d, err := c.confirm(ctx, oc, core.ErrNameConflict, ConfirmationRequest{
				Kind:         ConfirmOverwrite,
				From:         from,
				Target:       base,
				TargetExists: true,
			})
			if err != nil {
				oc.rearm = true
				return err
			}
			if d != DecisionProceed {
				oc.rearm = true
				return core.ErrOperationAborted
			}
		}

		if err := c.save(ctx, base, values.WithActive(false)); err != nil {
			oc.rearm = true
			return err
		}

		remaining, err := c.purgeFamily(ctx, base)
		if err != nil {
			oc.rearm = true
			return err
		}
		if from != "" && from != base {
			if remaining, err = c.purgeFamily(ctx, from); err != nil {
				oc.rearm = true
				return err
			}
		}

		baseline := naming.DraftName(base, c.tracker.ResetVersion())
		if err := c.save(ctx, baseline, values.WithActive(false)); err != nil {
			oc.rearm = true
			return err
		}

		c.mu.Lock()
		c.active = base
		c.values = values.WithActive(false)
		c.state = StateLoaded
		c.known = addName(addName(remaining, base), baseline)
		snap := c.snapshotLocked()
		c.mu.Unlock()

		c.logger.Info("preset saved", zap.String("preset", base), zap.String("from", from))
		c.publish(Event{Type: EventTransition, Snapshot: snap})
		return nil
	})
}

// Switch leaves the active preset for to. Unsaved drafts need a decision:
// proceed discards them, keep saves the current values to the active base
// first, abort leaves everything as it was. From an idle session Switch
// behaves like Load.
func (c *Controller) Switch(ctx context.Context, to string, opts ...OpOption) (core.ParameterSet, error) {
	toBase := naming.BaseOf(to)
	if !naming.ValidBase(toBase) {
		return core.ParameterSet{}, core.ErrInvalidName
	}

	var loaded core.ParameterSet
	err := c.run(ctx, "switch", opts, func(ctx context.Context, oc *opContext) error {
		c.mu.Lock()
		state := c.state
		active := c.active
		current := c.values.Clone()
		c.mu.Unlock()

		if state == StateIdle {
			var err error
			loaded, err = c.activate(ctx, toBase, nil)
			return err
		}
		from := naming.BaseOf(active)

		names, err := c.list(ctx)
		if err != nil {
			oc.rearm = true
			return err
		}

		unsaved := oc.hasPending || state == StateDirty ||
			c.tracker.HasUnsavedChanges(addName(names, active), from)

		var kept *core.ParameterSet
		if unsaved {
			d, err := c.confirm(ctx, oc, core.ErrConfirmationRequired, ConfirmationRequest{
				Kind:          ConfirmSwitch,
				From:          from,
				Target:        toBase,
				TargetExists:  contains(names, toBase),
				UnsavedDrafts: true,
			})
			if err != nil {
				oc.rearm = true
				return err
			}
			switch d {
			case DecisionAbort:
				oc.rearm = true
				return core.ErrOperationAborted
			case DecisionKeep:
				if oc.hasPending {
					current = oc.pending.WithActive(false)
				}
				if err := c.save(ctx, from, current.WithActive(false)); err != nil {
					oc.rearm = true
					return err
				}
				kept = &current
			}
		}

		// Fetch the target before touching the current family so a missing
		// target leaves the session intact.
		var target core.ParameterSet
		if kept != nil && toBase == from {
			target = kept.Clone()
		} else {
			if target, err = c.load(ctx, toBase); err != nil {
				oc.rearm = kept == nil
				return err
			}
		}

		// The target baseline goes in before the current family is purged,
		// so a failed write leaves the session on its own drafts.
		names, baseline, err := c.stage(ctx, toBase, target)
		if err != nil {
			oc.rearm = kept == nil
			return err
		}

		var purgeErr error
		if from != toBase {
			var remaining []string
			if remaining, purgeErr = c.purgeFamily(ctx, from); purgeErr == nil {
				names = addName(remaining, baseline)
			} else {
				c.logger.Warn("switched with stale drafts left behind",
					zap.String("from", from),
					zap.String("to", toBase),
					zap.Error(purgeErr),
				)
			}
		}

		loaded = c.commit(toBase, baseline, target, names)
		return purgeErr
	})
	return loaded, err
}

// Delete removes name's base record and its whole draft family. Deleting
// the active preset returns the session to idle.
func (c *Controller) Delete(ctx context.Context, name string) error {
	base := naming.BaseOf(name)
	if !naming.ValidBase(base) {
		return core.ErrInvalidName
	}

	return c.run(ctx, "delete", nil, func(ctx context.Context, oc *opContext) error {
		c.mu.Lock()
		active := c.active
		c.mu.Unlock()
		self := active != "" && naming.BaseOf(active) == base
		// A failed delete keeps the session, and its pending edit, as is.
		oc.rearm = true

		names, err := c.list(ctx)
		if err != nil {
			return err
		}
		batch := append([]string{base}, naming.Family(names, base)...)
		if self && naming.IsDraft(active) {
			batch = addName(batch, active)
		}
		if err := c.removeAll(ctx, batch); err != nil {
			return err
		}
		oc.rearm = !self
		c.recorder.RecordDraftsPurged(len(batch) - 1)

		c.mu.Lock()
		c.known = removeNames(c.known, batch...)
		if self {
			c.active = ""
			c.values = core.ParameterSet{}
			c.state = StateIdle
		}
		snap := c.snapshotLocked()
		c.mu.Unlock()

		c.logger.Info("preset deleted", zap.String("preset", base), zap.Int("drafts", len(batch)-1))
		c.publish(Event{Type: EventTransition, Snapshot: snap})
		return nil
	})
}

// Resume restores an idle session: the newest draft flagged active is
// picked up with its draft chain intact, otherwise the default preset is
// loaded. It reports whether a preset became active.
func (c *Controller) Resume(ctx context.Context) (bool, error) {
	resumed := false
	err := c.run(ctx, "resume", nil, func(ctx context.Context, oc *opContext) error {
		c.mu.Lock()
		state := c.state
		c.mu.Unlock()
		if state != StateIdle {
			oc.rearm = true
			return nil
		}

		names, err := c.list(ctx)
		if err != nil {
			return err
		}

		for _, name := range resumeCandidates(names) {
			ps, err := c.load(ctx, name)
			if err != nil {
				if errors.Is(err, core.ErrPresetNotFound) {
					continue
				}
				return err
			}
			if !ps.IsActive {
				continue
			}

			c.mu.Lock()
			c.active = name
			c.values = ps.WithActive(false)
			c.state = StateLoaded
			c.known = names
			snap := c.snapshotLocked()
			c.mu.Unlock()

			c.logger.Info("resumed draft", zap.String("draft", name))
			c.publish(Event{Type: EventTransition, Snapshot: snap})
			resumed = true
			return nil
		}

		if contains(names, DefaultPresetName) {
			if _, err := c.activate(ctx, DefaultPresetName, nil); err != nil {
				return err
			}
			resumed = true
			return nil
		}

		c.mu.Lock()
		c.known = names
		c.mu.Unlock()
		return nil
	})
	return resumed, err
}

// resumeCandidates orders drafts by descending version, then name.
func resumeCandidates(names []string) []string {
	type candidate struct {
		name    string
		version uint64
	}
	var drafts []candidate
	for _, n := range names {
		if v, ok := naming.Version(n); ok {
			drafts = append(drafts, candidate{name: n, version: v})
		}
	}
	sort.Slice(drafts, func(i, j int) bool {
		if drafts[i].version != drafts[j].version {
			return drafts[i].version > drafts[j].version
		}
		return drafts[i].name < drafts[j].name
	})
	out := make([]string, len(drafts))
	for i, d := range drafts {
		out[i] = d.name
	}
	return out
}

// purgeFamily deletes every draft of base and returns the names that remain.
func (c *Controller) purgeFamily(ctx context.Context, base string) ([]string, error) {
	names, err := c.list(ctx)
	if err != nil {
		return nil, err
	}
	family := naming.Family(names, base)
	if err := c.removeAll(ctx, family); err != nil {
		return nil, err
	}
	if len(family) > 0 {
		c.recorder.RecordDraftsPurged(len(family))
		c.logger.Debug("purged draft family",
			zap.String("preset", base),
			zap.Int("drafts", len(family)),
		)
	}
	return removeNames(names, family...), nil
}

// removeAll deletes names as one concurrent batch.
func (c *Controller) removeAll(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.purgeLimit)
	for _, name := range names {
		g.Go(func() error {
			return c.remove(gctx, name)
		})
	}
	return g.Wait()
}
