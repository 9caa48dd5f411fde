package updater

import (
	"testing"
)

func TestUpdateStatusString(t *testing.T) {
	tests := []struct {
		status UpdateStatus
		want   string
	}{
		{StatusIdle, "UPDATE_STATUS_IDLE"},
		{StatusCheckingForUpdate, "UPDATE_STATUS_CHECKING_FOR_UPDATE"},
		{StatusUpdateAvailable, "UPDATE_STATUS_UPDATE_AVAILABLE"},
		{StatusDownloading, "UPDATE_STATUS_DOWNLOADING"},
		{StatusVerifying, "UPDATE_STATUS_VERIFYING"},
		{StatusFinalizing, "UPDATE_STATUS_FINALIZING"},
		{StatusUpdatedNeedReboot, "UPDATE_STATUS_UPDATED_NEED_REBOOT"},
		{StatusReportingErrorEvent, "UPDATE_STATUS_REPORTING_ERROR_EVENT"},
		{UpdateStatus(-1), "unknown status"},
		{UpdateStatus(100), "unknown status"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("UpdateStatus(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}
