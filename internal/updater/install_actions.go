package updater

import (
	"context"

	"github.com/updrive-io/updrive/pkg/log"
)

// FilesystemCopierAction copies or verifies one partition from the install
// plan, then passes the plan through unchanged.
type FilesystemCopierAction struct {
	actionBase

	copier         FilesystemCopier
	partitionIndex int
	verifyOnly     bool
}

func NewFilesystemCopierAction(copier FilesystemCopier, partitionIndex int, verifyOnly bool) *FilesystemCopierAction {
	return &FilesystemCopierAction{
		copier:         copier,
		partitionIndex: partitionIndex,
		verifyOnly:     verifyOnly,
	}
}

func (a *FilesystemCopierAction) Type() string       { return FilesystemCopierActionType }
func (a *FilesystemCopierAction) InputKind() string  { return KindInstallPlan }
func (a *FilesystemCopierAction) OutputKind() string { return KindInstallPlan }

func (a *FilesystemCopierAction) Perform(ctx context.Context) ExitCode {
	plan, ok := a.takePlan()
	if !ok {
		return ExitCodeError
	}
	if a.partitionIndex < 0 || a.partitionIndex >= len(plan.Partitions) {
		log.Warn("Copier partition index out of range",
			"index", a.partitionIndex, "partitions", len(plan.Partitions))
		return ExitCodeError
	}

	p := plan.Partitions[a.partitionIndex]
	if err := a.copier.Copy(ctx, p.Source, p.Target, a.verifyOnly); err != nil {
		log.Error(err, "Filesystem copy failed",
			"source", p.Source, "target", p.Target, "verifyOnly", a.verifyOnly)
		return ExitCodeError
	}

	a.putOutput(plan)
	return ExitCodeSuccess
}

// DownloadAction fetches the update payload. It notifies its delegate when
// the transfer becomes active and inactive, and streams progress through it.
type DownloadAction struct {
	actionBase

	downloader Downloader
	delegate   DownloadDelegate
}

func NewDownloadAction(downloader Downloader) *DownloadAction {
	return &DownloadAction{downloader: downloader}
}

func (a *DownloadAction) Type() string       { return DownloadActionType }
func (a *DownloadAction) InputKind() string  { return KindInstallPlan }
func (a *DownloadAction) OutputKind() string { return KindInstallPlan }

// SetDelegate installs the lifecycle observer.
func (a *DownloadAction) SetDelegate(d DownloadDelegate) { a.delegate = d }

// Delegate returns the installed lifecycle observer.
func (a *DownloadAction) Delegate() DownloadDelegate { return a.delegate }

func (a *DownloadAction) Perform(ctx context.Context) ExitCode {
	plan, ok := a.takePlan()
	if !ok {
		return ExitCodeError
	}

	if a.delegate != nil {
		a.delegate.SetDownloadStatus(true)
		// The inactive notification must fire on every exit path.
		defer a.delegate.SetDownloadStatus(false)
	}

	progress := func(received, total uint64) {
		if a.delegate != nil {
			a.delegate.BytesReceived(received, total)
		}
	}

	if err := a.downloader.Download(ctx, plan, progress); err != nil {
		log.Error(err, "Payload download failed", "url", plan.DownloadURL)
		return ExitCodeError
	}

	a.putOutput(plan)
	return ExitCodeSuccess
}

// PostinstallRunnerAction runs the payload's postinstall step on the target
// partition. The finalize instance additionally switches the running system
// over to the new partition.
type PostinstallRunnerAction struct {
	actionBase

	runner          PostinstallRunner
	switchPartition bool
}

func NewPostinstallRunnerAction(runner PostinstallRunner, switchPartition bool) *PostinstallRunnerAction {
	return &PostinstallRunnerAction{runner: runner, switchPartition: switchPartition}
}

func (a *PostinstallRunnerAction) Type() string       { return PostinstallRunnerActionType }
func (a *PostinstallRunnerAction) InputKind() string  { return KindInstallPlan }
func (a *PostinstallRunnerAction) OutputKind() string { return KindInstallPlan }

func (a *PostinstallRunnerAction) Perform(ctx context.Context) ExitCode {
	plan, ok := a.takePlan()
	if !ok {
		return ExitCodeError
	}

	target := plan.TargetPartition().Target
	if err := a.runner.Run(ctx, target, a.switchPartition); err != nil {
		log.Error(err, "Postinstall failed", "target", target, "switch", a.switchPartition)
		return ExitCodeError
	}

	a.putOutput(plan)
	return ExitCodeSuccess
}

// SetBootableFlagAction flips the active-boot designation to the freshly
// written partition.
type SetBootableFlagAction struct {
	actionBase

	setter BootFlagSetter
}

func NewSetBootableFlagAction(setter BootFlagSetter) *SetBootableFlagAction {
	return &SetBootableFlagAction{setter: setter}
}

func (a *SetBootableFlagAction) Type() string       { return SetBootableFlagActionType }
func (a *SetBootableFlagAction) InputKind() string  { return KindInstallPlan }
func (a *SetBootableFlagAction) OutputKind() string { return KindInstallPlan }

func (a *SetBootableFlagAction) Perform(ctx context.Context) ExitCode {
	plan, ok := a.takePlan()
	if !ok {
		return ExitCodeError
	}

	target := plan.TargetPartition().Target
	if err := a.setter.SetBootable(ctx, target); err != nil {
		log.Error(err, "Setting bootable flag failed", "target", target)
		return ExitCodeError
	}

	a.putOutput(plan)
	return ExitCodeSuccess
}

// takePlan fetches the threaded install plan, logging when it is missing.
func (b *actionBase) takePlan() (*InstallPlan, bool) {
	in, ok := b.takeInput()
	if !ok {
		log.Warn("Action input pipe is empty")
		return nil, false
	}
	plan, ok := in.(*InstallPlan)
	if !ok || plan == nil {
		return nil, false
	}
	return plan, true
}
