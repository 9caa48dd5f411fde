package updater

import (
	"context"
	"sync/atomic"

	"github.com/updrive-io/updrive/pkg/log"
)

// OmahaRequestAction performs one exchange with the update server. Without
// an event it is the cycle's update check and produces the parsed response;
// with an event it is a fire-and-forget ping producing nothing.
type OmahaRequestAction struct {
	actionBase

	client UpdateCheckClient
	params RequestParams

	httpStatus atomic.Int64
}

func NewOmahaRequestAction(client UpdateCheckClient, params RequestParams) *OmahaRequestAction {
	return &OmahaRequestAction{client: client, params: params}
}

func (a *OmahaRequestAction) Type() string      { return OmahaRequestActionType }
func (a *OmahaRequestAction) InputKind() string { return KindNone }

func (a *OmahaRequestAction) OutputKind() string {
	if a.params.Event != nil {
		return KindNone
	}
	return KindResponse
}

// IsEvent reports whether this request is an event ping rather than the
// update check.
func (a *OmahaRequestAction) IsEvent() bool { return a.params.Event != nil }

// HTTPResponseCode returns the transport status of the performed exchange.
func (a *OmahaRequestAction) HTTPResponseCode() int {
	return int(a.httpStatus.Load())
}

func (a *OmahaRequestAction) Perform(ctx context.Context) ExitCode {
	resp, httpStatus, err := a.client.Request(ctx, a.params)
	a.httpStatus.Store(int64(httpStatus))

	if err != nil {
		log.Error(err, "Update server request failed", "httpStatus", httpStatus)
		return ExitCodeError
	}

	if a.params.Event != nil {
		// Pings carry no response; their outcome never gates the cycle
		// beyond transport success.
		return ExitCodeSuccess
	}

	if resp == nil || !resp.UpdateExists {
		return ExitCodeOmahaRequestNoUpdate
	}

	a.putOutput(resp)
	return ExitCodeSuccess
}

// OmahaResponseHandlerAction turns the negotiated response into the install
// plan that drives the rest of the pipeline. The partition list comes from
// device configuration, not from the response.
type OmahaResponseHandlerAction struct {
	actionBase

	partitions []Partition

	resp *Response
	plan *InstallPlan
}

func NewOmahaResponseHandlerAction(partitions []Partition) *OmahaResponseHandlerAction {
	return &OmahaResponseHandlerAction{partitions: partitions}
}

func (a *OmahaResponseHandlerAction) Type() string       { return OmahaResponseHandlerActionType }
func (a *OmahaResponseHandlerAction) InputKind() string  { return KindResponse }
func (a *OmahaResponseHandlerAction) OutputKind() string { return KindInstallPlan }

// Response returns the handled response after a successful Perform.
func (a *OmahaResponseHandlerAction) Response() *Response { return a.resp }

// InstallPlan returns the derived plan after a successful Perform.
func (a *OmahaResponseHandlerAction) InstallPlan() *InstallPlan { return a.plan }

func (a *OmahaResponseHandlerAction) Perform(ctx context.Context) ExitCode {
	in, ok := a.takeInput()
	if !ok {
		log.Warn("Response handler has no input response")
		return ExitCodeError
	}
	resp, ok := in.(*Response)
	if !ok || resp == nil {
		return ExitCodeError
	}

	if len(a.partitions) == 0 {
		log.Warn("Response handler has no partitions to update")
		return ExitCodeError
	}

	a.resp = resp
	a.plan = &InstallPlan{
		IsFullUpdate: !resp.IsDelta,
		DownloadURL:  resp.PayloadURL,
		DownloadHash: resp.PayloadHash,
		DownloadSize: resp.PayloadSize,
		Partitions:   a.partitions,
	}

	a.putOutput(a.plan)
	return ExitCodeSuccess
}
