package replayapi

import "errors"

// Sentinel kinds for replay service errors.
var (
	ErrUnexpectedStatus = errors.New("unexpected replay service status")
	ErrDecode           = errors.New("undecodable replay payload")
)
