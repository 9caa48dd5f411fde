package updater

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"

	"github.com/updrive-io/updrive/internal/pkg/fsmutil"
	"github.com/updrive-io/updrive/pkg/log"
)

// Status transition events. The state machine encodes which moves the
// orchestrator may make; an illegal move is a programming error surfaced as
// an error return, never silently applied.
const (
	eventCheck           = "check"
	eventUpdateAvailable = "update_available"
	eventDownload        = "download"
	eventVerify          = "verify"
	eventFinalize        = "finalize"
	eventComplete        = "complete"
	eventReportError     = "report_error"
	eventReset           = "reset"
)

// statusEvents maps a target status to the event reaching it.
var statusEvents = map[UpdateStatus]string{
	StatusIdle:                eventReset,
	StatusCheckingForUpdate:   eventCheck,
	StatusUpdateAvailable:     eventUpdateAvailable,
	StatusDownloading:         eventDownload,
	StatusVerifying:           eventVerify,
	StatusFinalizing:          eventFinalize,
	StatusUpdatedNeedReboot:   eventComplete,
	StatusReportingErrorEvent: eventReportError,
}

var statusByName = func() map[string]UpdateStatus {
	m := make(map[string]UpdateStatus, len(statusNames))
	for s, name := range statusNames {
		m[name] = s
	}
	return m
}()

// Snapshot is a read-only copy of the tracker state, shaped for the status
// query surface.
type Snapshot struct {
	Status           UpdateStatus `json:"-"`
	StatusName       string       `json:"status"`
	DownloadProgress float64      `json:"download_progress"`
	NewVersion       string       `json:"new_version"`
	NewPayloadSize   uint64       `json:"new_payload_size"`
	LastCheckedTime  int64        `json:"last_checked_time"`
}

// Tracker holds the publicly observable update state. The orchestrator is
// the only writer; concurrent external readers take snapshots under the
// read lock.
type Tracker struct {
	mu sync.RWMutex

	machine *fsm.FSM

	downloadProgress float64
	newVersion       string
	newPayloadSize   uint64
	lastCheckedTime  int64
	httpResponseCode int

	onChange func(Snapshot)
}

// NewTracker creates a tracker starting in the given status. The initial
// status is StatusUpdatedNeedReboot when the completion marker survived a
// restart, StatusIdle otherwise.
func NewTracker(initial UpdateStatus) *Tracker {
	inProgress := []string{
		StatusCheckingForUpdate.String(),
		StatusUpdateAvailable.String(),
		StatusDownloading.String(),
		StatusVerifying.String(),
		StatusFinalizing.String(),
	}

	machine := fsm.NewFSM(
		initial.String(),
		fsm.Events{
			{Name: eventCheck, Src: []string{StatusIdle.String()}, Dst: StatusCheckingForUpdate.String()},
			{Name: eventUpdateAvailable, Src: []string{StatusCheckingForUpdate.String()}, Dst: StatusUpdateAvailable.String()},
			{Name: eventDownload, Src: []string{StatusCheckingForUpdate.String(), StatusUpdateAvailable.String()}, Dst: StatusDownloading.String()},
			{Name: eventVerify, Src: []string{StatusDownloading.String()}, Dst: StatusVerifying.String()},
			{Name: eventFinalize, Src: []string{StatusUpdateAvailable.String(), StatusDownloading.String(), StatusVerifying.String()}, Dst: StatusFinalizing.String()},
			{Name: eventComplete, Src: []string{StatusVerifying.String(), StatusFinalizing.String()}, Dst: StatusUpdatedNeedReboot.String()},
			{Name: eventReportError, Src: append([]string{StatusIdle.String()}, inProgress...), Dst: StatusReportingErrorEvent.String()},
			{Name: eventReset, Src: append([]string{StatusReportingErrorEvent.String()}, inProgress...), Dst: StatusIdle.String()},
		},
		fsm.Callbacks{
			"enter_state": fsmutil.WrapEvent(func(_ context.Context, e *fsm.Event) error {
				log.Debug("Status transition", "from", e.Src, "to", e.Dst)
				return nil
			}),
		},
	)

	return &Tracker{
		machine:    machine,
		newVersion: "0.0.0.0",
	}
}

// SetOnChange installs a hook invoked with a snapshot after every visible
// mutation. The hook runs outside the tracker lock.
func (t *Tracker) SetOnChange(fn func(Snapshot)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Status returns the current status enum.
func (t *Tracker) Status() UpdateStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return statusByName[t.machine.Current()]
}

// Snapshot returns a consistent copy of all tracked fields.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	status := statusByName[t.machine.Current()]
	return Snapshot{
		Status:           status,
		StatusName:       status.String(),
		DownloadProgress: t.downloadProgress,
		NewVersion:       t.newVersion,
		NewPayloadSize:   t.newPayloadSize,
		LastCheckedTime:  t.lastCheckedTime,
	}
}

// SetStatus moves the tracker to the given status. Setting the current
// status again is a no-op. An illegal transition is returned as an error
// and leaves the state unchanged.
func (t *Tracker) SetStatus(s UpdateStatus) error {
	t.mu.Lock()
	if statusByName[t.machine.Current()] == s {
		t.mu.Unlock()
		return nil
	}

	event, ok := statusEvents[s]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("no transition event for status %d", s)
	}
	if err := t.machine.Event(context.Background(), event); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("cannot move from %s to %s: %w", t.machine.Current(), s, err)
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snap)
	return nil
}

// StartNewCycle resets the per-cycle fields. Download progress drops back
// to zero here and nowhere else.
func (t *Tracker) StartNewCycle() {
	t.mu.Lock()
	t.downloadProgress = 0
	t.mu.Unlock()
}

// SetDownloadProgress records download progress in [0,1]. Progress is
// monotonically non-decreasing within a cycle; regressions are dropped.
func (t *Tracker) SetDownloadProgress(p float64) {
	t.mu.Lock()
	if p < t.downloadProgress || p < 0 || p > 1 {
		t.mu.Unlock()
		return
	}
	t.downloadProgress = p
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snap)
}

// SetNewUpdate records the negotiated version and payload size.
func (t *Tracker) SetNewUpdate(version string, payloadSize uint64) {
	t.mu.Lock()
	t.newVersion = version
	t.newPayloadSize = payloadSize
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snap)
}

// SetLastCheckedTime records the unix timestamp of the last server check.
// The timestamp is part of the snapshot, so listeners hear about it.
func (t *Tracker) SetLastCheckedTime(ts int64) {
	t.mu.Lock()
	t.lastCheckedTime = ts
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snap)
}

// SetHTTPResponseCode records the last HTTP status seen by the negotiation
// client. The code never appears in snapshots, so no notification fires.
func (t *Tracker) SetHTTPResponseCode(code int) {
	t.mu.Lock()
	t.httpResponseCode = code
	t.mu.Unlock()
}

// HTTPResponseCode returns the last recorded HTTP status.
func (t *Tracker) HTTPResponseCode() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.httpResponseCode
}

// ConsumeHTTPResponseCode returns the last recorded HTTP status and resets
// it to zero. The sequence builder is the consumer.
func (t *Tracker) ConsumeHTTPResponseCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	code := t.httpResponseCode
	t.httpResponseCode = 0
	return code
}

func (t *Tracker) notify(snap Snapshot) {
	t.mu.RLock()
	fn := t.onChange
	t.mu.RUnlock()
	if fn != nil {
		fn(snap)
	}
}
