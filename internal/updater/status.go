package updater

// UpdateStatus is the coarse externally visible state of the orchestrator.
type UpdateStatus int

const (
	StatusIdle UpdateStatus = iota
	StatusCheckingForUpdate
	StatusUpdateAvailable
	StatusDownloading
	StatusVerifying
	StatusFinalizing
	StatusUpdatedNeedReboot
	StatusReportingErrorEvent
)

// statusNames holds the exact renderings consumed by logging and telemetry.
// Initialized once, read-only afterwards.
var statusNames = map[UpdateStatus]string{
	StatusIdle:                "UPDATE_STATUS_IDLE",
	StatusCheckingForUpdate:   "UPDATE_STATUS_CHECKING_FOR_UPDATE",
	StatusUpdateAvailable:     "UPDATE_STATUS_UPDATE_AVAILABLE",
	StatusDownloading:         "UPDATE_STATUS_DOWNLOADING",
	StatusVerifying:           "UPDATE_STATUS_VERIFYING",
	StatusFinalizing:          "UPDATE_STATUS_FINALIZING",
	StatusUpdatedNeedReboot:   "UPDATE_STATUS_UPDATED_NEED_REBOOT",
	StatusReportingErrorEvent: "UPDATE_STATUS_REPORTING_ERROR_EVENT",
}

// String renders the status. Out-of-range values render as a fixed sentinel
// rather than failing.
func (s UpdateStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown status"
}
