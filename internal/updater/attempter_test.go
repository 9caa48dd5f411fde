package updater

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/updrive-io/updrive/internal/pkg/metrics"
)

// fakeProcessor records the sequence handed to it without running anything.
type fakeProcessor struct {
	mu       sync.Mutex
	enqueued []Action
	starts   int
	events   chan Event
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{events: make(chan Event)}
}

func (p *fakeProcessor) EnqueueAction(a Action) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enqueued = append(p.enqueued, a)
	return nil
}

func (p *fakeProcessor) StartProcessing(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts++
	return nil
}

func (p *fakeProcessor) StopProcessing()      {}
func (p *fakeProcessor) IsRunning() bool      { return false }
func (p *fakeProcessor) Events() <-chan Event { return p.events }

// recordingClient answers update checks and records every request it sees.
type recordingClient struct {
	mu       sync.Mutex
	requests []RequestParams

	resp *Response
	err  error
}

func (c *recordingClient) Request(ctx context.Context, params RequestParams) (*Response, int, error) {
	c.mu.Lock()
	c.requests = append(c.requests, params)
	c.mu.Unlock()
	if c.err != nil {
		return nil, 500, c.err
	}
	return c.resp, 200, nil
}

func (c *recordingClient) recorded() []RequestParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]RequestParams(nil), c.requests...)
}

type recordingCopier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (c *recordingCopier) Copy(ctx context.Context, source, target string, verifyOnly bool) error {
	c.mu.Lock()
	c.calls = append(c.calls, source+">"+target)
	c.mu.Unlock()
	return c.err
}

type recordingDownloader struct {
	mu     sync.Mutex
	called bool
	err    error
}

func (d *recordingDownloader) Download(ctx context.Context, plan *InstallPlan, progress func(received, total uint64)) error {
	d.mu.Lock()
	d.called = true
	d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	progress(plan.DownloadSize/2, plan.DownloadSize)
	progress(plan.DownloadSize, plan.DownloadSize)
	return nil
}

func (d *recordingDownloader) wasCalled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.called
}

type recordingRunner struct {
	mu    sync.Mutex
	calls []bool
	err   error
}

func (r *recordingRunner) Run(ctx context.Context, target string, switchPartition bool) error {
	r.mu.Lock()
	r.calls = append(r.calls, switchPartition)
	r.mu.Unlock()
	return r.err
}

type recordingBootFlag struct {
	mu     sync.Mutex
	target string
	err    error
}

func (b *recordingBootFlag) SetBootable(ctx context.Context, target string) error {
	b.mu.Lock()
	b.target = target
	b.mu.Unlock()
	return b.err
}

var testPartitions = []Partition{
	{Source: "/dev/sda2", Target: "/dev/sda4"},
	{Source: "/dev/sda3", Target: "/dev/sda5"},
}

func testConfig(t *testing.T) (Config, *recordingClient, *recordingCopier, *recordingDownloader, *recordingRunner, *recordingBootFlag) {
	t.Helper()
	client := &recordingClient{resp: &Response{
		UpdateExists: true,
		Version:      "1.2.3.4",
		PayloadURL:   "http://server/payload",
		PayloadHash:  "abc",
		PayloadSize:  1 << 20,
	}}
	copier := &recordingCopier{}
	downloader := &recordingDownloader{}
	runner := &recordingRunner{}
	bootFlag := &recordingBootFlag{}

	cfg := Config{
		CompletedMarkerPath: filepath.Join(t.TempDir(), "update_completed"),
		Partitions:          testPartitions,
		Client:              client,
		Copier:              copier,
		Downloader:          downloader,
		Postinstall:         runner,
		BootFlag:            bootFlag,
	}
	return cfg, client, copier, downloader, runner, bootFlag
}

func waitForStatus(t *testing.T, tr *Tracker, want UpdateStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tr.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", tr.Status(), want)
}

func TestAttempterBuildsExpectedSequence(t *testing.T) {
	cfg, _, _, _, _, _ := testConfig(t)
	proc := newFakeProcessor()
	cfg.Processor = proc
	t.Cleanup(func() { close(proc.events) })

	a := NewAttempter(cfg)
	a.Tracker().SetHTTPResponseCode(500)

	if err := a.Update(context.Background(), "app-1", "http://server"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	want := []string{
		OmahaRequestActionType,
		OmahaResponseHandlerActionType,
		FilesystemCopierActionType,
		FilesystemCopierActionType,
		OmahaRequestActionType,
		DownloadActionType,
		OmahaRequestActionType,
		PostinstallRunnerActionType,
		SetBootableFlagActionType,
		PostinstallRunnerActionType,
		OmahaRequestActionType,
	}
	proc.mu.Lock()
	got := append([]Action(nil), proc.enqueued...)
	starts := proc.starts
	proc.mu.Unlock()

	if len(got) != len(want) {
		t.Fatalf("enqueued %d actions, want %d", len(got), len(want))
	}
	for i, typ := range want {
		if got[i].Type() != typ {
			t.Errorf("action %d = %s, want %s", i, got[i].Type(), typ)
		}
	}
	if starts != 1 {
		t.Errorf("StartProcessing called %d times, want 1", starts)
	}

	check, ok := got[0].(*OmahaRequestAction)
	if !ok || check.IsEvent() {
		t.Errorf("action 0 is not the update check")
	}
	if check.params.PriorResponseCode != 500 {
		t.Errorf("prior response code = %d, want 500", check.params.PriorResponseCode)
	}
	if _, ok := got[1].(*OmahaResponseHandlerAction); !ok {
		t.Errorf("action 1 is not the response handler")
	}
	a.mu.Lock()
	handlerIdx := a.responseHandlerIndex
	a.mu.Unlock()
	if handlerIdx != 1 {
		t.Errorf("responseHandlerIndex = %d, want 1", handlerIdx)
	}
	for _, i := range []int{4, 6, 10} {
		if req, ok := got[i].(*OmahaRequestAction); !ok || !req.IsEvent() {
			t.Errorf("action %d is not an event ping", i)
		}
	}
	if dl, ok := got[5].(*DownloadAction); !ok || dl.Delegate() != DownloadDelegate(a) {
		t.Errorf("download action does not report to the orchestrator")
	}

	if got := a.Tracker().HTTPResponseCode(); got != 0 {
		t.Errorf("http response code after Update = %d, want reset to 0", got)
	}
	if got := a.Tracker().Status(); got != StatusCheckingForUpdate {
		t.Errorf("status after Update = %s, want CHECKING_FOR_UPDATE", got)
	}
}

func TestAttempterInitialStatusFromMarker(t *testing.T) {
	cfg, _, _, _, _, _ := testConfig(t)
	if got := NewAttempter(cfg).Tracker().Status(); got != StatusIdle {
		t.Errorf("status without marker = %s, want IDLE", got)
	}

	if err := NewCompletionMarker(cfg.CompletedMarkerPath).Write(); err != nil {
		t.Fatalf("writing marker failed: %v", err)
	}
	a := NewAttempter(cfg)
	if got := a.Tracker().Status(); got != StatusUpdatedNeedReboot {
		t.Errorf("status with marker = %s, want UPDATED_NEED_REBOOT", got)
	}

	// A finished update blocks further cycles until reboot.
	if err := a.Update(context.Background(), "app-1", "http://server"); err != nil {
		t.Fatalf("Update returned %v", err)
	}
	if got := a.Tracker().Status(); got != StatusUpdatedNeedReboot {
		t.Errorf("status after rejected Update = %s", got)
	}
}

func TestAttempterFullCycleSuccess(t *testing.T) {
	cfg, client, copier, downloader, runner, bootFlag := testConfig(t)
	a := NewAttempter(cfg)

	if err := a.Update(context.Background(), "app-1", "http://server"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	waitForStatus(t, a.Tracker(), StatusUpdatedNeedReboot)

	if !NewCompletionMarker(cfg.CompletedMarkerPath).Exists() {
		t.Errorf("completion marker missing after successful cycle")
	}

	snap := a.Tracker().Snapshot()
	if snap.NewVersion != "1.2.3.4" {
		t.Errorf("NewVersion = %q, want negotiated version", snap.NewVersion)
	}
	if snap.DownloadProgress != 1 {
		t.Errorf("DownloadProgress = %v, want 1", snap.DownloadProgress)
	}
	if snap.LastCheckedTime == 0 {
		t.Errorf("LastCheckedTime not recorded")
	}

	copier.mu.Lock()
	copies := append([]string(nil), copier.calls...)
	copier.mu.Unlock()
	if len(copies) != 2 || copies[0] != "/dev/sda2>/dev/sda4" || copies[1] != "/dev/sda3>/dev/sda5" {
		t.Errorf("copier calls = %v", copies)
	}
	if !downloader.wasCalled() {
		t.Errorf("downloader never invoked")
	}
	runner.mu.Lock()
	runs := append([]bool(nil), runner.calls...)
	runner.mu.Unlock()
	if len(runs) != 2 || runs[0] != false || runs[1] != true {
		t.Errorf("postinstall calls = %v, want plain run then finalizing switch", runs)
	}
	bootFlag.mu.Lock()
	target := bootFlag.target
	bootFlag.mu.Unlock()
	if target != "/dev/sda5" {
		t.Errorf("bootable flag set on %q, want the last target partition", target)
	}

	// Check + three event pings, all transport-successful.
	var events []string
	for _, req := range client.recorded() {
		if req.Event != nil {
			events = append(events, req.Event.Kind)
		}
	}
	wantEvents := []string{EventKindInstallSuccess, EventKindDownloadComplete, EventKindUpdateComplete}
	if len(events) != len(wantEvents) {
		t.Fatalf("event pings = %v, want %v", events, wantEvents)
	}
	for i := range wantEvents {
		if events[i] != wantEvents[i] {
			t.Errorf("event %d = %s, want %s", i, events[i], wantEvents[i])
		}
	}
}

func TestAttempterAbortReportsClassifiedError(t *testing.T) {
	cfg, client, copier, downloader, runner, _ := testConfig(t)
	copier.err = errors.New("short write on target")

	a := NewAttempter(cfg)
	if err := a.Update(context.Background(), "app-1", "http://server"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	waitForStatus(t, a.Tracker(), StatusIdle)

	if downloader.wasCalled() {
		t.Errorf("downloader ran after the copier aborted the cycle")
	}
	runner.mu.Lock()
	runs := len(runner.calls)
	runner.mu.Unlock()
	if runs != 0 {
		t.Errorf("postinstall ran after the copier aborted the cycle")
	}
	if NewCompletionMarker(cfg.CompletedMarkerPath).Exists() {
		t.Errorf("completion marker written for a failed cycle")
	}

	var errorEvents []*UpdateEvent
	for _, req := range client.recorded() {
		if req.Event != nil && req.Event.Kind == EventKindUpdateError {
			ev := req.Event
			errorEvents = append(errorEvents, ev)
		}
	}
	if len(errorEvents) != 1 {
		t.Fatalf("got %d error event reports, want 1", len(errorEvents))
	}
	if errorEvents[0].Result != ExitCodeFilesystemCopierError {
		t.Errorf("error event result = %v, want the copier-specific code", errorEvents[0].Result)
	}
}

func TestAttempterNoUpdateFinishesIdle(t *testing.T) {
	cfg, client, _, downloader, _, _ := testConfig(t)
	client.resp = &Response{UpdateExists: false}

	a := NewAttempter(cfg)
	if err := a.Update(context.Background(), "app-1", "http://server"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	waitForStatus(t, a.Tracker(), StatusIdle)

	if downloader.wasCalled() {
		t.Errorf("downloader ran without an update offer")
	}
	for _, req := range client.recorded() {
		if req.Event != nil {
			t.Errorf("no-update outcome produced an event report: %+v", req.Event)
		}
	}
	if snap := a.Tracker().Snapshot(); snap.LastCheckedTime == 0 {
		t.Errorf("no-update check did not record the checked time")
	}
}

func TestAttempterIgnoresConcurrentUpdate(t *testing.T) {
	cfg, client, copier, _, _, _ := testConfig(t)

	release := make(chan struct{})
	copier.err = nil
	blockingClient := &blockingCheckClient{inner: client, release: release}
	cfg.Client = blockingClient

	a := NewAttempter(cfg)
	if err := a.Update(context.Background(), "app-1", "http://server"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	// A second request while the first cycle is in flight is a no-op.
	if err := a.Update(context.Background(), "app-1", "http://server"); err != nil {
		t.Fatalf("concurrent Update returned %v", err)
	}

	close(release)
	waitForStatus(t, a.Tracker(), StatusUpdatedNeedReboot)

	checks := 0
	for _, req := range client.recorded() {
		if req.Event == nil {
			checks++
		}
	}
	if checks != 1 {
		t.Errorf("server saw %d update checks, want 1", checks)
	}
}

// blockingCheckClient holds the first update check until released.
type blockingCheckClient struct {
	inner   *recordingClient
	release chan struct{}
	once    sync.Once
}

func (c *blockingCheckClient) Request(ctx context.Context, params RequestParams) (*Response, int, error) {
	if params.Event == nil {
		c.once.Do(func() { <-c.release })
	}
	return c.inner.Request(ctx, params)
}

// The processor goes idle before the error report of an aborted cycle has
// gone out. A new cycle must still be rejected in that window, and the wound
// down cycle must not disturb the one that starts after it.
func TestAttempterRejectsUpdateWhileReportingError(t *testing.T) {
	cfg, client, copier, _, _, _ := testConfig(t)
	copier.err = errors.New("short write on target")

	release := make(chan struct{})
	cfg.Client = &errorReportGate{inner: client, release: release}

	a := NewAttempter(cfg)
	if err := a.Update(context.Background(), "app-1", "http://server"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	waitForStatus(t, a.Tracker(), StatusReportingErrorEvent)

	if err := a.Update(context.Background(), "app-1", "http://server"); err != nil {
		t.Fatalf("Update during error report returned %v", err)
	}
	if got := a.Tracker().Status(); got != StatusReportingErrorEvent {
		t.Fatalf("status after rejected Update = %s, want REPORTING_ERROR_EVENT", got)
	}

	close(release)
	waitForStatus(t, a.Tracker(), StatusIdle)

	checks := 0
	for _, req := range client.recorded() {
		if req.Event == nil {
			checks++
		}
	}
	if checks != 1 {
		t.Errorf("server saw %d update checks, want 1", checks)
	}

	// Once the failed cycle has fully wound down, a fresh one runs clean.
	copier.err = nil
	if err := a.Update(context.Background(), "app-1", "http://server"); err != nil {
		t.Fatalf("follow-up Update failed: %v", err)
	}
	waitForStatus(t, a.Tracker(), StatusUpdatedNeedReboot)
	if !NewCompletionMarker(cfg.CompletedMarkerPath).Exists() {
		t.Errorf("completion marker missing after the follow-up cycle")
	}
}

// errorReportGate holds the update-error report until released.
type errorReportGate struct {
	inner   *recordingClient
	release chan struct{}
	once    sync.Once
}

func (c *errorReportGate) Request(ctx context.Context, params RequestParams) (*Response, int, error) {
	if params.Event != nil && params.Event.Kind == EventKindUpdateError {
		c.once.Do(func() { <-c.release })
	}
	return c.inner.Request(ctx, params)
}

func TestAttempterUpdateResetsDownloadGauge(t *testing.T) {
	metrics.DownloadProgress.Set(0.75)

	cfg, _, _, _, _, _ := testConfig(t)
	proc := newFakeProcessor()
	cfg.Processor = proc
	t.Cleanup(func() { close(proc.events) })

	a := NewAttempter(cfg)
	if err := a.Update(context.Background(), "app-1", "http://server"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got := testutil.ToFloat64(metrics.DownloadProgress); got != 0 {
		t.Errorf("download progress gauge = %v at cycle start, want 0", got)
	}
}
