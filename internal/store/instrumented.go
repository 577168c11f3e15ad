package store

import (
	"context"
	"errors"
	"time"

	"github.com/newthinker/presetd/internal/core"
)

// Observer receives one observation per persistence call.
type Observer interface {
	ObserveStoreCall(op, status string, seconds float64)
}

// Instrumented wraps a Store and reports call outcomes to an Observer.
type Instrumented struct {
	Store
	observer Observer
}

// NewInstrumented wraps s. It returns s unchanged when observer is nil.
func NewInstrumented(s Store, observer Observer) Store {
	if observer == nil {
		return s
	}
	return &Instrumented{Store: s, observer: observer}
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, core.ErrPresetNotFound):
		status = "not_found"
	default:
		status = "error"
	}
	i.observer.ObserveStoreCall(op, status, time.Since(start).Seconds())
}

func (i *Instrumented) List(ctx context.Context, presetPath string) (names []string, err error) {
	defer func(start time.Time) { i.observe("list", start, err) }(time.Now())
	return i.Store.List(ctx, presetPath)
}

func (i *Instrumented) Load(ctx context.Context, presetPath, presetName string) (ps core.ParameterSet, err error) {
	defer func(start time.Time) { i.observe("load", start, err) }(time.Now())
	return i.Store.Load(ctx, presetPath, presetName)
}

func (i *Instrumented) Save(ctx context.Context, presetPath, presetName string, ps core.ParameterSet) (err error) {
	defer func(start time.Time) { i.observe("save", start, err) }(time.Now())
	return i.Store.Save(ctx, presetPath, presetName, ps)
}

func (i *Instrumented) Delete(ctx context.Context, presetPath, presetName string) (err error) {
	defer func(start time.Time) { i.observe("delete", start, err) }(time.Now())
	return i.Store.Delete(ctx, presetPath, presetName)
}

// Namespaces forwards to the wrapped store when it can enumerate namespaces.
func (i *Instrumented) Namespaces(ctx context.Context) ([]string, error) {
	lister, ok := i.Store.(NamespaceLister)
	if !ok {
		return nil, errors.ErrUnsupported
	}
	return lister.Namespaces(ctx)
}
