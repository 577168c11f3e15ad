package lifecycle

import (
	"context"
	"fmt"
)

// ConfirmKind names the operation waiting for consent.
type ConfirmKind string

const (
	ConfirmOverwrite ConfirmKind = "overwrite"
	ConfirmSwitch    ConfirmKind = "switch"
)

// Decision is the user's answer to a confirmation request.
type Decision string

const (
	// DecisionProceed overwrites on save, or discards unsaved drafts on switch.
	DecisionProceed Decision = "proceed"
	// DecisionKeep saves the current edits to their base before switching.
	DecisionKeep Decision = "keep"
	// DecisionAbort cancels the operation before any write.
	DecisionAbort Decision = "abort"
)

// ParseDecision accepts the wire form of a decision. Empty means undecided.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(s); d {
	case "", DecisionProceed, DecisionKeep, DecisionAbort:
		return d, nil
	}
	return "", fmt.Errorf("unknown decision %q", s)
}

// ConfirmationRequest carries what a caller needs to prompt the user.
type ConfirmationRequest struct {
	Kind          ConfirmKind `json:"kind"`
	SessionID     string      `json:"session_id,omitempty"`
	PresetPath    string      `json:"preset_path"`
	From          string      `json:"from,omitempty"`
	Target        string      `json:"target"`
	TargetExists  bool        `json:"target_exists"`
	UnsavedDrafts bool        `json:"unsaved_drafts"`
}

// ConfirmationError is the cause attached to errors returned when no
// decision was available.
type ConfirmationError struct {
	Request ConfirmationRequest
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("%s of %q needs confirmation", e.Request.Kind, e.Request.Target)
}

// Confirmer answers confirmation requests, typically by prompting a user.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmationRequest) (Decision, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, req ConfirmationRequest) (Decision, error)

func (f ConfirmFunc) Confirm(ctx context.Context, req ConfirmationRequest) (Decision, error) {
	return f(ctx, req)
}

// Always answers every request with d.
func Always(d Decision) Confirmer {
	return ConfirmFunc(func(context.Context, ConfirmationRequest) (Decision, error) { return d, nil })
}

// OpOption adjusts a single lifecycle call.
type OpOption func(*opConfig)

type opConfig struct {
	confirmer Confirmer
}

// WithDecision answers any confirmation of this call with d. An empty d
// leaves the call undecided.
func WithDecision(d Decision) OpOption {
	return func(c *opConfig) {
		if d != "" {
			c.confirmer = Always(d)
		}
	}
}

// WithConfirmer routes confirmations of this call to cf.
func WithConfirmer(cf Confirmer) OpOption {
	return func(c *opConfig) { c.confirmer = cf }
}
