package updater

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/updrive-io/updrive/internal/pkg/fsmutil"
	"github.com/updrive-io/updrive/internal/pkg/metrics"
	"github.com/updrive-io/updrive/pkg/log"
)

// Config assembles an Attempter from its collaborators.
type Config struct {
	// CompletedMarkerPath is where the update-completed marker lives.
	CompletedMarkerPath string

	// Partitions updated per cycle, in apply order.
	Partitions []Partition

	Client      UpdateCheckClient
	Copier      FilesystemCopier
	Downloader  Downloader
	Postinstall PostinstallRunner
	BootFlag    BootFlagSetter

	// Processor is optional; the default is a fresh ActionProcessor.
	Processor SequenceProcessor
}

// Attempter drives one update cycle at a time: it builds the action
// sequence, hands it to the processor, and turns processor events into
// tracker transitions, error classification and the completion marker.
type Attempter struct {
	tracker   *Tracker
	marker    CompletionMarker
	processor SequenceProcessor

	client      UpdateCheckClient
	copier      FilesystemCopier
	downloader  Downloader
	postinstall PostinstallRunner
	bootFlag    BootFlagSetter

	partitions []Partition

	mu sync.Mutex
	// actions owns the in-flight sequence; indices are stable only while
	// the cycle is in flight.
	actions []Action
	// responseHandlerIndex is a validated index into actions, not a second
	// owning reference.
	responseHandlerIndex int
	lastParams           RequestParams
}

var _ DownloadDelegate = (*Attempter)(nil)

// NewAttempter constructs the orchestrator. If the completion marker is
// already present, a finished update is awaiting reboot and the initial
// status reflects that instead of idle.
func NewAttempter(cfg Config) *Attempter {
	marker := NewCompletionMarker(cfg.CompletedMarkerPath)

	initial := StatusIdle
	if marker.Exists() {
		log.Info("Completion marker present, update awaits reboot", "path", marker.Path())
		initial = StatusUpdatedNeedReboot
	}

	processor := cfg.Processor
	if processor == nil {
		processor = NewActionProcessor()
	}

	return &Attempter{
		tracker:              NewTracker(initial),
		marker:               marker,
		processor:            processor,
		client:               cfg.Client,
		copier:               cfg.Copier,
		downloader:           cfg.Downloader,
		postinstall:          cfg.Postinstall,
		bootFlag:             cfg.BootFlag,
		partitions:           cfg.Partitions,
		responseHandlerIndex: -1,
	}
}

// Tracker exposes the status tracker for the query surface and telemetry.
func (a *Attempter) Tracker() *Tracker { return a.tracker }

// Update starts a full update cycle against the given application track and
// server. It returns once the sequence is built and processing has started;
// the cycle itself completes asynchronously. At most one cycle exists at a
// time: a.mu is held across the busy check and the start, and the gate is
// the tracker status, which leaves idle synchronously here and returns to
// idle only after the previous cycle's terminal handling has finished.
func (a *Attempter) Update(ctx context.Context, appID, serverURL string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	status := a.tracker.Status()
	if status == StatusUpdatedNeedReboot {
		log.Info("Update already completed, waiting for reboot")
		return nil
	}
	// The processor goes idle before the orchestrator has handled the
	// terminal event, so its state alone is not enough: the status stays
	// non-idle through the error report and only finishCycle clears it.
	if status != StatusIdle || a.processor.IsRunning() {
		log.Info("Update already in progress, ignoring new request", "status", status.String())
		return nil
	}

	a.tracker.StartNewCycle()
	metrics.DownloadProgress.Set(0)

	params := RequestParams{
		AppID:     appID,
		ServerURL: serverURL,
		// Consuming the prior response code resets it to zero.
		PriorResponseCode: a.tracker.ConsumeHTTPResponseCode(),
	}

	actions, handlerIdx, err := a.buildSequence(params)
	if err != nil {
		// Construction-time fault: reject the cycle before starting it.
		return fmt.Errorf("build update sequence: %w", err)
	}

	a.actions = actions
	a.responseHandlerIndex = handlerIdx
	a.lastParams = params

	for _, act := range actions {
		if err := a.processor.EnqueueAction(act); err != nil {
			a.actions, a.responseHandlerIndex = nil, -1
			return fmt.Errorf("enqueue %s: %w", act.Type(), err)
		}
	}
	if err := a.processor.StartProcessing(ctx); err != nil {
		a.actions, a.responseHandlerIndex = nil, -1
		return fmt.Errorf("start processing: %w", err)
	}

	a.setStatus(StatusCheckingForUpdate)

	go a.drainEvents(ctx)
	return nil
}

// buildSequence assembles the ordered cycle for a full negotiation +
// download + apply flow and wires pipes between producers and consumers.
// Event pings sit between bonded pairs without breaking the object chain.
func (a *Attempter) buildSequence(params RequestParams) ([]Action, int, error) {
	check := NewOmahaRequestAction(a.client, params)
	handler := NewOmahaResponseHandlerAction(a.partitions)

	copiers := make([]*FilesystemCopierAction, 0, len(a.partitions))
	for i := range a.partitions {
		copiers = append(copiers, NewFilesystemCopierAction(a.copier, i, false))
	}

	download := NewDownloadAction(a.downloader)
	download.SetDelegate(a)

	postinstall := NewPostinstallRunnerAction(a.postinstall, false)
	bootFlag := NewSetBootableFlagAction(a.bootFlag)
	finalize := NewPostinstallRunnerAction(a.postinstall, true)

	actions := []Action{check, handler}
	for _, c := range copiers {
		actions = append(actions, c)
	}
	actions = append(actions,
		a.eventAction(params, EventKindInstallSuccess),
		download,
		a.eventAction(params, EventKindDownloadComplete),
		postinstall,
		bootFlag,
		finalize,
		a.eventAction(params, EventKindUpdateComplete),
	)

	// Wire the object chain: response into the handler, then the install
	// plan through copiers, download and the finalize steps.
	bonds := [][2]Action{{check, handler}}
	var prev Action = handler
	for _, c := range copiers {
		bonds = append(bonds, [2]Action{prev, c})
		prev = c
	}
	bonds = append(bonds,
		[2]Action{prev, download},
		[2]Action{download, postinstall},
		[2]Action{postinstall, bootFlag},
		[2]Action{bootFlag, finalize},
	)
	for _, b := range bonds {
		if err := BindPipe(b[0], b[1]); err != nil {
			return nil, -1, err
		}
	}

	return actions, 1, nil
}

func (a *Attempter) eventAction(params RequestParams, kind string) *OmahaRequestAction {
	p := params
	p.PriorResponseCode = 0
	p.Event = &UpdateEvent{Kind: kind, Result: ExitCodeSuccess}
	return NewOmahaRequestAction(a.client, p)
}

// drainEvents consumes processor events until the cycle's terminal event.
// It is the single goroutine mutating the tracker while a cycle runs.
func (a *Attempter) drainEvents(ctx context.Context) {
	for ev := range a.processor.Events() {
		switch ev.Type {
		case EventActionCompleted:
			a.handleActionCompleted(ev.Action)
		case EventProcessingDone:
			a.handleProcessingDone(ctx, ev)
			return
		case EventProcessingStopped:
			log.Info("Update cycle stopped")
			a.finishCycle(StatusIdle)
			return
		}
	}
}

func (a *Attempter) handleActionCompleted(res ActionResult) {
	log.Info("Action completed", "action", res.Type, "index", res.Index, "code", res.Code)

	a.mu.Lock()
	var action Action
	if res.Index >= 0 && res.Index < len(a.actions) {
		action = a.actions[res.Index]
	}
	a.mu.Unlock()

	switch act := action.(type) {
	case *OmahaRequestAction:
		a.tracker.SetHTTPResponseCode(act.HTTPResponseCode())
		if !act.IsEvent() {
			now := time.Now().Unix()
			a.tracker.SetLastCheckedTime(now)
			metrics.LastCheckedTime.Set(float64(now))
		}
	case *OmahaResponseHandlerAction:
		if res.Code == ExitCodeSuccess {
			if resp := act.Response(); resp != nil {
				a.tracker.SetNewUpdate(resp.Version, resp.PayloadSize)
			}
			a.setStatus(StatusUpdateAvailable)
		}
	case *DownloadAction:
		if res.Code == ExitCodeSuccess {
			a.setStatus(StatusVerifying)
		}
	case *PostinstallRunnerAction:
		if res.Code == ExitCodeSuccess {
			a.setStatus(StatusFinalizing)
		}
	}
}

func (a *Attempter) handleProcessingDone(ctx context.Context, ev Event) {
	if ev.Code == ExitCodeSuccess {
		log.Info("Update cycle completed, reboot required")
		// A marker write failure must not invalidate the finished update.
		if err := a.marker.Write(); err != nil {
			log.Error(err, "Failed to write completion marker", "path", a.marker.Path())
		}
		a.clearSequence()
		a.setStatus(StatusUpdatedNeedReboot)
		metrics.AttemptsTotal.WithLabelValues("success").Inc()
		return
	}

	if ev.Action.Code == ExitCodeOmahaRequestNoUpdate {
		log.Info("No update available")
		a.finishCycle(StatusIdle)
		metrics.AttemptsTotal.WithLabelValues("no_update").Inc()
		return
	}

	classified := CodeForAction(ev.Action.Type, ev.Action.Code)
	log.Warn("Update cycle failed",
		"action", ev.Action.Type, "code", ev.Action.Code, "classified", classified)
	metrics.AttemptsTotal.WithLabelValues("failure").Inc()

	a.setStatus(StatusReportingErrorEvent)
	a.reportErrorEvent(ctx, classified)
	a.finishCycle(StatusIdle)
}

// reportErrorEvent sends a best-effort classified failure report to the
// update server. Its own failure is logged and otherwise ignored.
func (a *Attempter) reportErrorEvent(ctx context.Context, code ExitCode) {
	a.mu.Lock()
	params := a.lastParams
	a.mu.Unlock()
	params.Event = &UpdateEvent{Kind: EventKindUpdateError, Result: code}

	action := NewOmahaRequestAction(a.client, params)
	if c := action.Perform(ctx); c != ExitCodeSuccess {
		log.Warn("Error event report failed", "code", c)
	}
}

// finishCycle drops the finished sequence and lands on the given status.
// The status assignment is last: until it happens, Update keeps rejecting
// new cycles.
func (a *Attempter) finishCycle(status UpdateStatus) {
	a.clearSequence()
	a.setStatus(status)
}

func (a *Attempter) clearSequence() {
	a.mu.Lock()
	a.actions = nil
	a.responseHandlerIndex = -1
	a.mu.Unlock()
}

func (a *Attempter) setStatus(s UpdateStatus) {
	if err := a.tracker.SetStatus(s); fsmutil.IsRealError(err) {
		log.Error(err, "Status transition rejected", "target", s.String())
	}
}

// SetDownloadStatus implements DownloadDelegate. While the download is
// active the whole process runs at background priority so the update never
// starves foreground work; normal priority is restored on every exit path.
func (a *Attempter) SetDownloadStatus(active bool) {
	if err := setProcessPriority(active); err != nil {
		// Infrastructure fault: the update outcome is unaffected.
		log.Warn("Failed to adjust process priority", "background", active, "err", err)
	}
	if active {
		a.setStatus(StatusDownloading)
	}
}

// BytesReceived implements DownloadDelegate.
func (a *Attempter) BytesReceived(received, total uint64) {
	if total == 0 {
		return
	}
	progress := float64(received) / float64(total)
	a.tracker.SetDownloadProgress(progress)
	metrics.DownloadProgress.Set(progress)
}
