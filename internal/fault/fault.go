// Package fault defines the error taxonomy shared by the engine, the
// dispatcher, and the HTTP layer. Each kind carries the offending entity id
// and its current state so callers can decide whether to retry, refresh, or
// abandon without parsing message text.
package fault

import (
	"errors"
	"fmt"
)

// NotFoundError indicates a missing entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ForbiddenError indicates the caller is not authorized for the action.
type ForbiddenError struct {
	Action string
	Reason string
}

func (e ForbiddenError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Action, e.Reason)
	}
	return fmt.Sprintf("not allowed to %s", e.Action)
}

// InvalidArgumentError indicates malformed or missing input, detected before
// any mutation.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// InvalidStateError indicates the entity is not in an operable state for the
// action, e.g. editing an already decided quote.
type InvalidStateError struct {
	Kind   string
	ID     string
	Status string
	Action string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s: status is %s", e.Action, e.Kind, e.ID, e.Status)
}

// ConflictError indicates a transition or uniqueness violation, including a
// competing writer winning the race. Status holds the state observed at
// failure time, verbatim.
type ConflictError struct {
	Kind   string
	ID     string
	Status string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s %s already %s", e.Kind, e.ID, e.Status)
}

// DuplicateQuoteError indicates the provider already has a live quote on the
// project.
type DuplicateQuoteError struct {
	ProjectID  string
	ProviderID string
}

func (e DuplicateQuoteError) Error() string {
	return fmt.Sprintf("provider %s already has an active quote on project %s", e.ProviderID, e.ProjectID)
}

// IllegalTransitionError indicates a project status edge outside the
// transition table.
type IllegalTransitionError struct {
	ProjectID string
	From      string
	To        string
}

func (e IllegalTransitionError) Error() string {
	return fmt.Sprintf("project %s: illegal transition %s -> %s", e.ProjectID, e.From, e.To)
}

// TransientError wraps an infrastructure failure that is safe to retry.
type TransientError struct {
	Op  string
	Err error
}

func (e TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e TransientError) Unwrap() error { return e.Err }

// Retryable reports whether the caller may safely retry the whole operation
// after re-reading current state.
func Retryable(err error) bool {
	var te TransientError
	var ce ConflictError
	return errors.As(err, &te) || errors.As(err, &ce)
}
