package extractor

import "errors"

// Step-level failures of the export flow. Each maps to exactly one FSM
// transition so callers can tell where the upstream broke.
var (
	ErrNavigationTimeout = errors.New("login page did not load")
	ErrLoginFormNotFound = errors.New("login form not found")
	ErrLoginFailed       = errors.New("login did not reach the export page")
	ErrDownloadTimeout   = errors.New("export download did not complete")
)
