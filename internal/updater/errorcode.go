package updater

// ExitCode is the completion code an action reports exactly once.
type ExitCode int

const (
	ExitCodeSuccess ExitCode = iota
	ExitCodeError

	// Action-specific error codes produced by classification.
	ExitCodeOmahaRequestError
	ExitCodeOmahaResponseHandlerError
	ExitCodeFilesystemCopierError
	ExitCodePostinstallRunnerError
	ExitCodeSetBootableFlagError

	// Sentinel outcomes that are not failures of the action itself.
	ExitCodeOmahaRequestNoUpdate
	ExitCodeOmahaRequestPolicyLoaded
)

var exitCodeNames = map[ExitCode]string{
	ExitCodeSuccess:                   "success",
	ExitCodeError:                     "error",
	ExitCodeOmahaRequestError:         "omaha_request_error",
	ExitCodeOmahaResponseHandlerError: "omaha_response_handler_error",
	ExitCodeFilesystemCopierError:     "filesystem_copier_error",
	ExitCodePostinstallRunnerError:    "postinstall_runner_error",
	ExitCodeSetBootableFlagError:      "set_bootable_flag_error",
	ExitCodeOmahaRequestNoUpdate:      "omaha_request_no_update",
	ExitCodeOmahaRequestPolicyLoaded:  "omaha_request_policy_loaded",
}

func (c ExitCode) String() string {
	if name, ok := exitCodeNames[c]; ok {
		return name
	}
	return "unknown exit code"
}

// specificErrorCodes maps a known action type to the error code its generic
// failure is reported as. Initialized once, read-only afterwards.
var specificErrorCodes = map[string]ExitCode{
	OmahaRequestActionType:         ExitCodeOmahaRequestError,
	OmahaResponseHandlerActionType: ExitCodeOmahaResponseHandlerError,
	FilesystemCopierActionType:     ExitCodeFilesystemCopierError,
	PostinstallRunnerActionType:    ExitCodePostinstallRunnerError,
	SetBootableFlagActionType:      ExitCodeSetBootableFlagError,
}

// CodeForAction classifies a generic completion code into the code specific
// to the failing action type. Success passes through unchanged for every
// action type, including the empty one. A generic error from an action type
// without a registered code falls back to the generic code; classification
// never fails on an unrecognized type.
func CodeForAction(actionType string, code ExitCode) ExitCode {
	if code != ExitCodeError {
		return code
	}
	if specific, ok := specificErrorCodes[actionType]; ok {
		return specific
	}
	return code
}
