// Package fsmutil adapts error-returning callbacks to the looplab/fsm
// callback signature.
package fsmutil

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent lifts an error-returning function into an fsm.Callback,
// propagating the error through the event.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// IsRealError reports whether err is an actual transition failure rather
// than the benign "no transition" outcome of a guard cancelling an event.
func IsRealError(err error) bool {
	if err == nil {
		return false
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return false
	}
	var canceled fsm.CanceledError
	if errors.As(err, &canceled) {
		return canceled.Err != nil
	}
	return true
}
