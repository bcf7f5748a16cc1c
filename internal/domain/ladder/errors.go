package ladder

import "errors"

// Sentinel kinds for the ladder driver.
var (
	// ErrAlreadySettled means the submission id was accepted or rejected by
	// an earlier run. It is a no-op, not a rejection.
	ErrAlreadySettled = errors.New("submission already settled")
)
