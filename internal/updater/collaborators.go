package updater

import (
	"context"
)

// Event kinds reported to the update server mid-cycle.
const (
	EventKindInstallSuccess   = "install_success"
	EventKindDownloadComplete = "download_complete"
	EventKindUpdateComplete   = "update_complete"
	EventKindUpdateError      = "update_error"
)

// UpdateEvent is a fire-and-forget notification sent to the update server.
type UpdateEvent struct {
	Kind   string
	Result ExitCode
}

// RequestParams describes one exchange with the update server.
type RequestParams struct {
	AppID     string
	ServerURL string

	// PriorResponseCode is the HTTP status of the previous exchange,
	// consumed from the tracker when the sequence is built.
	PriorResponseCode int

	// Event, when set, turns the request into an event ping that produces
	// no response object.
	Event *UpdateEvent
}

// UpdateCheckClient negotiates with the update-metadata server. The
// orchestrator never parses server payloads itself.
type UpdateCheckClient interface {
	// Request performs one exchange. resp is nil for event pings.
	// httpStatus is the transport-level status of the exchange, zero if
	// the exchange never reached the server.
	Request(ctx context.Context, params RequestParams) (resp *Response, httpStatus int, err error)
}

// FilesystemCopier copies one partition image to its target, optionally
// only verifying an existing copy.
type FilesystemCopier interface {
	Copy(ctx context.Context, source, target string, verifyOnly bool) error
}

// Downloader fetches the update payload described by a plan, reporting
// progress as it goes. Internal concurrency is its own business; the
// pipeline observes a single completion.
type Downloader interface {
	Download(ctx context.Context, plan *InstallPlan, progress func(received, total uint64)) error
}

// PostinstallRunner runs the payload's postinstall step against the target
// partition, once post-copy and once at finalize.
type PostinstallRunner interface {
	Run(ctx context.Context, targetPartition string, switchPartition bool) error
}

// BootFlagSetter flips the active-boot designation to the target partition.
type BootFlagSetter interface {
	SetBootable(ctx context.Context, targetPartition string) error
}

// DownloadDelegate observes the download action's lifecycle. The
// orchestrator implements it to manage process priority and progress.
type DownloadDelegate interface {
	// SetDownloadStatus is called with true when the download starts and
	// with false when it ends, on every exit path.
	SetDownloadStatus(active bool)

	// BytesReceived reports cumulative download progress.
	BytesReceived(received, total uint64)
}
