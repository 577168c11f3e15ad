// Package store holds the persistence backends for preset records.
//
// Records are addressed by (presetPath, presetName). presetPath is a
// directory-like namespace, usually the strategy directory; presetName is
// a base name or a draft name (see package naming).
package store

import (
	"context"

	"github.com/newthinker/presetd/internal/core"
)

// Store is the persistence service consumed by the lifecycle controller.
type Store interface {
	// List returns every preset name in the namespace, drafts included.
	List(ctx context.Context, presetPath string) ([]string, error)

	// Load returns the record, or an error matching core.ErrPresetNotFound.
	Load(ctx context.Context, presetPath, presetName string) (core.ParameterSet, error)

	// Save creates or replaces the record.
	Save(ctx context.Context, presetPath, presetName string, ps core.ParameterSet) error

	// Delete removes the record. Deleting an absent name succeeds.
	Delete(ctx context.Context, presetPath, presetName string) error
}

// NamespaceLister is implemented by backends that can enumerate namespaces.
type NamespaceLister interface {
	Namespaces(ctx context.Context) ([]string, error)
}

func notFound(presetPath, presetName string) error {
	return core.WrapError(core.ErrPresetNotFound, &RecordError{Path: presetPath, Name: presetName})
}

// RecordError identifies the record an error refers to.
type RecordError struct {
	Path string
	Name string
}

func (e *RecordError) Error() string {
	return e.Path + "/" + e.Name
}
