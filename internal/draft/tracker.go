// Package draft computes draft version numbers for a preset family.
package draft

import (
	"strings"

	"github.com/newthinker/presetd/internal/core"
	"github.com/newthinker/presetd/internal/naming"
	"go.uber.org/zap"
)

// BaselineVersion is the version of the draft created by save, load and rename.
const BaselineVersion uint64 = 0

// Tracker derives the next draft version from the persisted name list.
// It keeps no counter of its own.
type Tracker struct {
	logger *zap.Logger
}

// NewTracker creates a tracker. A nil logger discards malformed-name reports.
func NewTracker(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{logger: logger}
}

// NextVersion returns one more than the highest draft version of base in
// names, or 1 when base has no drafts. Malformed draft names are skipped.
func (t *Tracker) NextVersion(names []string, base string) uint64 {
	max, found := t.MaxVersion(names, base)
	if !found {
		return 1
	}
	return max + 1
}

// MaxVersion returns the highest well-formed draft version of base.
func (t *Tracker) MaxVersion(names []string, base string) (uint64, bool) {
	var (
		max   uint64
		found bool
	)
	for _, name := range names {
		if !naming.InFamily(name, base) {
			if looksLikeDraftOf(name, base) {
				t.malformed(name, base)
			}
			continue
		}
		v, ok := naming.Version(name)
		if !ok {
			t.malformed(name, base)
			continue
		}
		if !found || v > max {
			max, found = v, true
		}
	}
	return max, found
}

// ResetVersion returns the baseline version used right after a save, load
// or rename establishes a fresh family.
func (t *Tracker) ResetVersion() uint64 {
	return BaselineVersion
}

// HasUnsavedChanges reports whether the family of base holds more than the
// baseline draft: any version above 0, or more than one draft.
func (t *Tracker) HasUnsavedChanges(names []string, base string) bool {
	family := naming.Family(names, base)
	if len(family) > 1 {
		return true
	}
	max, found := t.MaxVersion(family, base)
	return found && max > BaselineVersion
}

func (t *Tracker) malformed(name, base string) {
	t.logger.Warn("skipping draft name",
		zap.String("name", name),
		zap.String("base", base),
		zap.Error(core.ErrMalformedDraftName),
	)
}

// looksLikeDraftOf matches the loose "__...__base" shape that a draft of base
// would have, so corrupted version segments are reported rather than ignored.
func looksLikeDraftOf(name, base string) bool {
	suffix := "__" + base
	return !naming.IsDraft(name) &&
		strings.HasPrefix(name, "__") &&
		strings.HasSuffix(name, suffix) &&
		len(name) > len(suffix)+2
}
