package webhook

import "errors"

// Sentinel errors for job-time connector resolution failures.
var (
	ErrMissingConnector       = errors.New("missing_connector")
	ErrMissingHostPermission  = errors.New("missing_host_permission")
)
