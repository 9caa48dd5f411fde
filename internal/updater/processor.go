package updater

import (
	"context"
	"fmt"
	"sync"

	"github.com/updrive-io/updrive/pkg/log"
)

// EventType discriminates processor events.
type EventType int

const (
	// EventActionCompleted is emitted after each action finishes.
	EventActionCompleted EventType = iota

	// EventProcessingDone is the terminal event of a run: the whole
	// sequence succeeded, or an action failed and the rest was discarded.
	EventProcessingDone

	// EventProcessingStopped is the terminal event of a cancelled run.
	EventProcessingStopped
)

// ActionResult identifies a completed action and its completion code.
type ActionResult struct {
	Index int
	Type  string
	Code  ExitCode
}

// Event is delivered on the processor's event channel. The orchestrator
// owns and drains the channel; there is no back-pointer from the processor
// to its delegate.
type Event struct {
	Type EventType

	// Action is the just-completed action for EventActionCompleted, and
	// the failing action for an aborted EventProcessingDone.
	Action ActionResult

	// Code is the overall outcome for terminal events.
	Code ExitCode
}

// SequenceProcessor executes an enqueued sequence of actions strictly in
// order. The concrete implementation is ActionProcessor; the orchestrator
// depends on this interface so tests can substitute a recording fake.
type SequenceProcessor interface {
	// EnqueueAction appends an action. Only valid while idle.
	EnqueueAction(a Action) error

	// StartProcessing begins executing the sequence asynchronously.
	// Only valid while idle and non-empty.
	StartProcessing(ctx context.Context) error

	// StopProcessing requests a stop at the next action boundary. An
	// in-flight action always runs to its own completion first.
	StopProcessing()

	// IsRunning reports whether a sequence is in flight.
	IsRunning() bool

	// Events returns the channel terminal and per-action events are
	// delivered on.
	Events() <-chan Event
}

type procState int

const (
	procIdle procState = iota
	procRunning
	procStopping
)

// ActionProcessor runs actions one at a time in enqueue order. No two
// actions ever overlap: the run loop performs each action to completion
// before looking at the next one. After the terminal event the processor
// returns to idle and may be reused for the next cycle.
type ActionProcessor struct {
	mu      sync.Mutex
	state   procState
	actions []Action

	events chan Event
}

var _ SequenceProcessor = (*ActionProcessor)(nil)

// NewActionProcessor creates an idle processor. The event channel is buffered
// generously so the run loop never blocks on a briefly busy consumer.
func NewActionProcessor() *ActionProcessor {
	return &ActionProcessor{
		events: make(chan Event, 64),
	}
}

func (p *ActionProcessor) EnqueueAction(a Action) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != procIdle {
		return fmt.Errorf("cannot enqueue %s: processor is running", a.Type())
	}
	p.actions = append(p.actions, a)
	return nil
}

func (p *ActionProcessor) StartProcessing(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != procIdle {
		return fmt.Errorf("processor already running")
	}
	if len(p.actions) == 0 {
		return fmt.Errorf("cannot start processing an empty sequence")
	}

	p.state = procRunning
	actions := p.actions
	go p.run(ctx, actions)
	return nil
}

func (p *ActionProcessor) StopProcessing() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == procRunning {
		p.state = procStopping
	}
}

func (p *ActionProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state != procIdle
}

func (p *ActionProcessor) Events() <-chan Event {
	return p.events
}

// run executes the sequence. It is the only goroutine that ever calls
// Perform, which is what guarantees single-writer semantics for everything
// downstream of the event channel.
func (p *ActionProcessor) run(ctx context.Context, actions []Action) {
	for i, a := range actions {
		if p.stopRequested() || ctx.Err() != nil {
			log.Info("Processing stopped between actions", "nextAction", a.Type())
			p.finish(Event{Type: EventProcessingStopped, Code: ExitCodeError})
			return
		}

		code := a.Perform(ctx)
		res := ActionResult{Index: i, Type: a.Type(), Code: code}
		p.events <- Event{Type: EventActionCompleted, Action: res, Code: code}

		if code != ExitCodeSuccess {
			// Abort: the remaining actions are discarded, not skipped.
			log.Info("Action failed, aborting sequence",
				"action", a.Type(), "code", code, "remaining", len(actions)-i-1)
			p.finish(Event{Type: EventProcessingDone, Action: res, Code: code})
			return
		}
	}

	last := actions[len(actions)-1]
	p.finish(Event{
		Type:   EventProcessingDone,
		Action: ActionResult{Index: len(actions) - 1, Type: last.Type(), Code: ExitCodeSuccess},
		Code:   ExitCodeSuccess,
	})
}

// finish emits the terminal event and resets the processor for reuse. The
// reset lands before the event is handled, so IsRunning alone says nothing
// about whether the previous cycle has finished winding down.
func (p *ActionProcessor) finish(ev Event) {
	p.mu.Lock()
	p.state = procIdle
	p.actions = nil
	p.mu.Unlock()

	p.events <- ev
}

func (p *ActionProcessor) stopRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == procStopping
}
