package service

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds for service errors.
var (
	ErrUnknownMode    = errors.New("unknown run mode")
	ErrLoad           = errors.New("load ladder")
	ErrPlayerNotFound = errors.New("player not found")
)

// NotFoundError reports an unknown player with the closest known names.
type NotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("player %q not found", e.Name)
	}
	return fmt.Sprintf("player %q not found; did you mean %s?", e.Name, strings.Join(e.Suggestions, ", "))
}

func (e *NotFoundError) Unwrap() error { return ErrPlayerNotFound }

// Alternatives lists the suggested names.
func (e *NotFoundError) Alternatives() []string { return e.Suggestions }
