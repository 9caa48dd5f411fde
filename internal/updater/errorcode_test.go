package updater

import (
	"testing"
)

func TestCodeForAction(t *testing.T) {
	tests := []struct {
		name       string
		actionType string
		code       ExitCode
		want       ExitCode
	}{
		{"nil action with success", "", ExitCodeSuccess, ExitCodeSuccess},
		{"request error", OmahaRequestActionType, ExitCodeError, ExitCodeOmahaRequestError},
		{"response handler error", OmahaResponseHandlerActionType, ExitCodeError, ExitCodeOmahaResponseHandlerError},
		{"copier error", FilesystemCopierActionType, ExitCodeError, ExitCodeFilesystemCopierError},
		{"postinstall error", PostinstallRunnerActionType, ExitCodeError, ExitCodePostinstallRunnerError},
		{"bootable flag error", SetBootableFlagActionType, ExitCodeError, ExitCodeSetBootableFlagError},
		{"unknown type falls through", "SomeOtherAction", ExitCodeError, ExitCodeError},
		{"success never remapped", FilesystemCopierActionType, ExitCodeSuccess, ExitCodeSuccess},
		{"sentinel never remapped", OmahaRequestActionType, ExitCodeOmahaRequestNoUpdate, ExitCodeOmahaRequestNoUpdate},
		{"download error stays generic", DownloadActionType, ExitCodeError, ExitCodeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeForAction(tt.actionType, tt.code); got != tt.want {
				t.Errorf("CodeForAction(%q, %v) = %v, want %v", tt.actionType, tt.code, got, tt.want)
			}
			// Classification is a pure function: a second call with the
			// same inputs must agree with the first.
			if again := CodeForAction(tt.actionType, tt.code); again != tt.want {
				t.Errorf("CodeForAction is not idempotent for (%q, %v)", tt.actionType, tt.code)
			}
		})
	}
}
