package updater

import (
	"fmt"
	"sync"
)

// Pipe binds one action's output object to the next action's input. It is
// a single-value holder, not a queue: the upstream action puts at most one
// object, the downstream action takes it after the upstream has completed.
type Pipe struct {
	kind string

	mu    sync.Mutex
	value any
	set   bool
}

// NewPipe creates a pipe carrying objects of the given kind.
func NewPipe(kind string) *Pipe {
	return &Pipe{kind: kind}
}

// Kind returns the object kind the pipe carries.
func (p *Pipe) Kind() string { return p.kind }

// Put stores the upstream output object.
func (p *Pipe) Put(v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = v
	p.set = true
}

// Take returns the stored object and whether one was put.
func (p *Pipe) Take() (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.set
}

// BindPipe wires a pipe from an upstream action's output to a downstream
// action's input. The object kinds must agree; a mismatch is a
// construction-time fault that rejects the cycle before it starts.
func BindPipe(from, to Action) error {
	outKind, inKind := from.OutputKind(), to.InputKind()
	if outKind == KindNone || inKind == KindNone {
		return fmt.Errorf("cannot bind %s -> %s: no object on one side", from.Type(), to.Type())
	}
	if outKind != inKind {
		return fmt.Errorf("pipe kind mismatch: %s produces %s, %s consumes %s",
			from.Type(), outKind, to.Type(), inKind)
	}

	p := NewPipe(outKind)
	from.SetOutPipe(p)
	to.SetInPipe(p)
	return nil
}
