package updater

import (
	"context"
)

// Known action type identifiers. Type identity is stable, available without
// performing the action, and is what error classification keys on.
const (
	OmahaRequestActionType         = "OmahaRequestAction"
	OmahaResponseHandlerActionType = "OmahaResponseHandlerAction"
	FilesystemCopierActionType     = "FilesystemCopierAction"
	DownloadActionType             = "DownloadAction"
	PostinstallRunnerActionType    = "PostinstallRunnerAction"
	SetBootableFlagActionType      = "SetBootableFlagAction"
)

// Action is one unit of update work. An action reports completion exactly
// once, as the return value of Perform; the processor is the only caller.
// Whatever I/O an action does internally is opaque to the pipeline.
type Action interface {
	// Type returns the stable type identifier.
	Type() string

	// InputKind and OutputKind declare the object kinds the action consumes
	// and produces. KindNone means no pipe on that side.
	InputKind() string
	OutputKind() string

	// SetInPipe and SetOutPipe attach the pipes wired by the sequence
	// builder. Either may stay nil.
	SetInPipe(p *Pipe)
	SetOutPipe(p *Pipe)

	// Perform runs the action to completion and returns its completion
	// code. It must honor ctx cancellation for long-running work.
	Perform(ctx context.Context) ExitCode
}

// actionBase carries the pipe plumbing shared by all concrete actions.
type actionBase struct {
	in  *Pipe
	out *Pipe
}

func (b *actionBase) SetInPipe(p *Pipe)  { b.in = p }
func (b *actionBase) SetOutPipe(p *Pipe) { b.out = p }

// takeInput fetches the threaded input object, if any.
func (b *actionBase) takeInput() (any, bool) {
	if b.in == nil {
		return nil, false
	}
	return b.in.Take()
}

// putOutput publishes the output object for the downstream action.
func (b *actionBase) putOutput(v any) {
	if b.out != nil {
		b.out.Put(v)
	}
}
