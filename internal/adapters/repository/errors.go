package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("document not found")
	ErrCorruptState = errors.New("state document is corrupt")
	ErrCommitFailed = errors.New("commit failed")
)
